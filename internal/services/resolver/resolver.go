package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/IbrahimO9/discord-music-bot/config"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

// ErrUnresolvable matches every failure to produce a playable stream URL
var ErrUnresolvable = errors.New("stream unresolvable")

// Resolver turns a track's source URL into a short-lived direct audio URL
type Resolver interface {
	Resolve(ctx context.Context, sourceURL string) (Result, error)
}

// Result is one successful resolution
type Result struct {
	URL      string
	IssuedAt time.Time
	Backend  string
	Stream   Stream
}

// Stream describes one audio rendition offered by a source
type Stream struct {
	URL      string
	Format   string
	Codec    string
	MimeType string
	Bitrate  int
	Itag     int
}

// IsOpusWebm reports whether the stream is Opus in a WebM container
func (s Stream) IsOpusWebm() bool {
	return strings.EqualFold(s.Format, "WEBM") && strings.Contains(strings.ToLower(s.Codec), "opus")
}

// Error describes why a backend could not resolve a source URL
type Error struct {
	Backend   string
	SourceURL string
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: resolving %s: %s", e.Backend, e.SourceURL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrUnresolvable }

func unresolvable(backend, sourceURL, reason string, err error) *Error {
	return &Error{Backend: backend, SourceURL: sourceURL, Reason: reason, Err: err}
}

// SelectStream picks the stream to play. Opus in WebM wins over everything else,
// then the highest bitrate; equal candidates keep their input order.
func SelectStream(streams []Stream) (Stream, bool) {
	if len(streams) == 0 {
		return Stream{}, false
	}

	candidates := lo.Filter(streams, func(s Stream, _ int) bool { return s.IsOpusWebm() })
	if len(candidates) == 0 {
		candidates = streams
	}

	return lo.MaxBy(candidates, func(a, b Stream) bool { return a.Bitrate > b.Bitrate }), true
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID extracts the 11 character YouTube id from a URL or bare id
func VideoID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if videoIDPattern.MatchString(raw) {
		return raw, true
	}
	return VideoIDFromURL(raw)
}

// VideoIDFromURL is VideoID without bare ids, for input where an 11 letter
// word is more likely a search term than a video.
func VideoIDFromURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = segments[0]
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case u.Query().Get("v") != "":
			id = u.Query().Get("v")
		case len(segments) >= 2 && lo.Contains([]string{"shorts", "embed", "live", "v"}, segments[0]):
			id = segments[1]
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// WatchURL is the canonical URL for a video id
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// New builds the backend named in cfg.Backend
func New(cfg config.ResolverConfig) (Resolver, error) {
	switch cfg.Backend {
	case config.BackendPiped:
		return NewPiped(cfg), nil
	case config.BackendYtdlp:
		return NewYtdlp(cfg), nil
	case config.BackendYouTube:
		return NewNative(cfg), nil
	default:
		return nil, fmt.Errorf("unknown resolver backend %q", cfg.Backend)
	}
}

type instrumented struct {
	next    Resolver
	backend string
	log     *logger.Logger
	metrics *metrics.Metrics
}

// Instrument wraps a resolver with logging and latency metrics
func Instrument(next Resolver, backend string, log *logger.Logger, m *metrics.Metrics) Resolver {
	return &instrumented{
		next:    next,
		backend: backend,
		log:     log.WithComponent("resolver").WithFields(logger.Fields{"backend": backend}),
		metrics: m,
	}
}

func (r *instrumented) Resolve(ctx context.Context, sourceURL string) (Result, error) {
	start := time.Now()
	res, err := r.next.Resolve(ctx, sourceURL)
	elapsed := time.Since(start)

	if r.metrics != nil {
		r.metrics.RecordResolve(r.backend, err == nil, elapsed)
	}

	fields := logger.Fields{"source_url": sourceURL, "duration_ms": elapsed.Milliseconds()}
	if err != nil {
		r.log.Warn("stream resolution failed: "+err.Error(), fields)
		return Result{}, err
	}

	fields["format"] = res.Stream.Format
	fields["codec"] = res.Stream.Codec
	fields["bitrate"] = res.Stream.Bitrate
	r.log.Debug("stream resolved", fields)
	return res, nil
}
