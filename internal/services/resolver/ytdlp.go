package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/IbrahimO9/discord-music-bot/config"
)

// Ytdlp resolves streams by asking the yt-dlp binary for the selected format's URL
type Ytdlp struct {
	format string
	run    func(ctx context.Context, format, sourceURL string) (stdout, stderr string, err error)
	now    func() time.Time
}

func NewYtdlp(cfg config.ResolverConfig) *Ytdlp {
	return &Ytdlp{
		format: cfg.YtdlpFormat,
		run:    runYtdlp,
		now:    time.Now,
	}
}

func runYtdlp(ctx context.Context, format, sourceURL string) (string, string, error) {
	res, err := ytdlp.New().
		Format(format).
		Print("%(url)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, sourceURL)
	if res == nil {
		return "", "", err
	}
	return res.Stdout, res.Stderr, err
}

func (y *Ytdlp) Resolve(ctx context.Context, sourceURL string) (Result, error) {
	if _, ok := VideoID(sourceURL); !ok {
		return Result{}, unresolvable(config.BackendYtdlp, sourceURL, "not a YouTube video URL", nil)
	}

	stdout, stderr, err := y.run(ctx, y.format, sourceURL)
	if err != nil {
		reason := "yt-dlp failed"
		if line := lastLine(stderr); line != "" {
			reason = line
		}
		return Result{}, unresolvable(config.BackendYtdlp, sourceURL, reason, err)
	}

	streamURL := firstURL(stdout)
	if streamURL == "" {
		return Result{}, unresolvable(config.BackendYtdlp, sourceURL, "yt-dlp printed no URL", nil)
	}

	return Result{
		URL:      streamURL,
		IssuedAt: y.now(),
		Backend:  config.BackendYtdlp,
		Stream:   Stream{URL: streamURL},
	}, nil
}

func firstURL(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line
		}
	}
	return ""
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
