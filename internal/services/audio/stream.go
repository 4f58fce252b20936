package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/jonas747/dca"

	"github.com/IbrahimO9/discord-music-bot/config"
)

// encodeOptions builds dca options from config. StdEncodeOptions is a shared
// pointer, so it is copied before anything is changed.
func encodeOptions(cfg config.AudioConfig) *dca.EncodeOptions {
	opts := *dca.StdEncodeOptions
	opts.RawOutput = true
	opts.Application = dca.AudioApplicationLowDelay
	opts.VBR = cfg.EnableVBR

	if cfg.Bitrate > 0 {
		opts.Bitrate = cfg.Bitrate
	}
	if cfg.Volume > 0 {
		opts.Volume = cfg.Volume
	}
	if cfg.FrameRate > 0 {
		opts.FrameRate = cfg.FrameRate
	}
	if cfg.FrameDuration > 0 {
		opts.FrameDuration = cfg.FrameDuration
	}
	if cfg.CompressionLevel > 0 {
		opts.CompressionLevel = cfg.CompressionLevel
	}
	if cfg.PacketLoss > 0 {
		opts.PacketLoss = cfg.PacketLoss
	}
	if cfg.BufferedFrames > 0 {
		opts.BufferedFrames = cfg.BufferedFrames
	}
	return &opts
}

// httpOpener fetches stream URLs with the headers the CDNs expect.
func httpOpener(client *http.Client, userAgent string) openFunc {
	return func(ctx context.Context, streamURL string) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build stream request: %w", err)
		}
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}
		req.Header.Set("Accept", "*/*")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch stream: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
}

// dcaPipeline pipes ffmpeg output into a voice connection
type dcaPipeline struct {
	enc    *dca.EncodeSession
	stream *dca.StreamingSession
}

func dcaStarter(vc *discordgo.VoiceConnection, opts *dca.EncodeOptions) startFunc {
	return func(src io.Reader, done chan error) (pipeline, error) {
		enc, err := dca.EncodeMem(src, opts)
		if err != nil {
			return nil, err
		}
		return &dcaPipeline{enc: enc, stream: dca.NewStream(enc, vc, done)}, nil
	}
}

func (d *dcaPipeline) SetPaused(paused bool) {
	d.stream.SetPaused(paused)
}

// Stop unpauses first so the sender drains and sees the encoder's EOF.
func (d *dcaPipeline) Stop() {
	if d.stream.Paused() {
		d.stream.SetPaused(false)
	}
	d.enc.Cleanup()
}
