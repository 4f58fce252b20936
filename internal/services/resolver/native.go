package resolver

import (
	"context"
	"mime"
	"strings"
	"time"

	yt "github.com/kkdai/youtube/v2"
	"github.com/samber/lo"

	"github.com/IbrahimO9/discord-music-bot/config"
)

// Native resolves streams in-process with the kkdai YouTube client
type Native struct {
	client *yt.Client
	now    func() time.Time
}

func NewNative(cfg config.ResolverConfig) *Native {
	return &Native{
		client: &yt.Client{},
		now:    time.Now,
	}
}

func (n *Native) Resolve(ctx context.Context, sourceURL string) (Result, error) {
	id, ok := VideoID(sourceURL)
	if !ok {
		return Result{}, unresolvable(config.BackendYouTube, sourceURL, "not a YouTube video URL", nil)
	}

	video, err := n.client.GetVideoContext(ctx, id)
	if err != nil {
		return Result{}, unresolvable(config.BackendYouTube, sourceURL, "fetching video", err)
	}

	formats := video.Formats.WithAudioChannels()
	best, ok := SelectStream(streamsFromFormats(formats))
	if !ok {
		return Result{}, unresolvable(config.BackendYouTube, sourceURL, "no audio streams", nil)
	}

	format, found := lo.Find(formats, func(f yt.Format) bool { return f.ItagNo == best.Itag })
	if !found {
		return Result{}, unresolvable(config.BackendYouTube, sourceURL, "selected format vanished", nil)
	}

	streamURL, err := n.client.GetStreamURLContext(ctx, video, &format)
	if err != nil {
		return Result{}, unresolvable(config.BackendYouTube, sourceURL, "deciphering stream URL", err)
	}
	best.URL = streamURL

	return Result{
		URL:      streamURL,
		IssuedAt: n.now(),
		Backend:  config.BackendYouTube,
		Stream:   best,
	}, nil
}

// streamsFromFormats prefers audio-only renditions, falling back to muxed ones.
func streamsFromFormats(formats yt.FormatList) []Stream {
	streams := lo.Map(formats, func(f yt.Format, _ int) Stream {
		container, codec := parseMimeType(f.MimeType)
		bitrate := f.AverageBitrate
		if bitrate == 0 {
			bitrate = f.Bitrate
		}
		return Stream{
			Format:   container,
			Codec:    codec,
			MimeType: f.MimeType,
			Bitrate:  bitrate,
			Itag:     f.ItagNo,
		}
	})

	audioOnly := lo.Filter(streams, func(s Stream, _ int) bool {
		return strings.HasPrefix(s.MimeType, "audio/")
	})
	if len(audioOnly) > 0 {
		return audioOnly
	}
	return streams
}

// parseMimeType maps `audio/webm; codecs="opus"` to ("WEBM", "opus").
func parseMimeType(mimeType string) (container, codec string) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", ""
	}
	if _, sub, ok := strings.Cut(mediaType, "/"); ok {
		container = strings.ToUpper(sub)
	}
	return container, strings.Trim(params["codecs"], `"`)
}
