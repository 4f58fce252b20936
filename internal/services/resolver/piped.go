package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/IbrahimO9/discord-music-bot/config"
)

// Piped resolves streams through a Piped instance's JSON API
type Piped struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	now       func() time.Time
}

type pipedStreams struct {
	Title        string        `json:"title"`
	Uploader     string        `json:"uploader"`
	ThumbnailURL string        `json:"thumbnailUrl"`
	AudioStreams []pipedStream `json:"audioStreams"`
	Error        string        `json:"error"`
}

type pipedStream struct {
	URL      string `json:"url"`
	Format   string `json:"format"`
	Codec    string `json:"codec"`
	MimeType string `json:"mimeType"`
	Bitrate  int    `json:"bitrate"`
	Itag     int    `json:"itag"`
}

func NewPiped(cfg config.ResolverConfig) *Piped {
	burst := cfg.PipedBurst
	if burst < 1 {
		burst = 1
	}
	return &Piped{
		baseURL:   cfg.PipedInstance,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.PipedRateLimit), burst),
		now:       time.Now,
	}
}

func (p *Piped) Resolve(ctx context.Context, sourceURL string) (Result, error) {
	id, ok := VideoID(sourceURL)
	if !ok {
		return Result{}, unresolvable(config.BackendPiped, sourceURL, "not a YouTube video URL", nil)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return Result{}, unresolvable(config.BackendPiped, sourceURL, "rate limiter", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/streams/%s", p.baseURL, id), nil)
	if err != nil {
		return Result{}, unresolvable(config.BackendPiped, sourceURL, "building request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, unresolvable(config.BackendPiped, sourceURL, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, unresolvable(config.BackendPiped, sourceURL, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var body pipedStreams
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, unresolvable(config.BackendPiped, sourceURL, "decoding response", err)
	}
	if body.Error != "" {
		return Result{}, unresolvable(config.BackendPiped, sourceURL, body.Error, nil)
	}

	streams := lo.FilterMap(body.AudioStreams, func(s pipedStream, _ int) (Stream, bool) {
		return Stream{
			URL:      s.URL,
			Format:   s.Format,
			Codec:    s.Codec,
			MimeType: s.MimeType,
			Bitrate:  s.Bitrate,
			Itag:     s.Itag,
		}, s.URL != ""
	})

	best, ok := SelectStream(streams)
	if !ok {
		return Result{}, unresolvable(config.BackendPiped, sourceURL, "no audio streams", nil)
	}

	return Result{
		URL:      best.URL,
		IssuedAt: p.now(),
		Backend:  config.BackendPiped,
		Stream:   best,
	}, nil
}
