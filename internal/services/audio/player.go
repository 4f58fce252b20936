package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/IbrahimO9/discord-music-bot/internal/services/playback"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
)

// pipeline is a running encode and send of one stream
type pipeline interface {
	SetPaused(paused bool)
	Stop()
}

type (
	openFunc  func(ctx context.Context, streamURL string) (io.ReadCloser, error)
	startFunc func(src io.Reader, done chan error) (pipeline, error)
)

// Player is the single playback actor of a voice connection. It plays one
// stream at a time and reports how each playback ended on Events.
type Player struct {
	open  openFunc
	start startFunc
	speak func(bool) error
	log   *logger.Logger

	events chan playback.PlayerEvent

	mu      sync.Mutex
	seq     uint64
	status  playback.PlayerStatus
	pipe    pipeline
	stopped chan struct{}
}

func newPlayer(open openFunc, start startFunc, speak func(bool) error, log *logger.Logger) *Player {
	return &Player{
		open:   open,
		start:  start,
		speak:  speak,
		log:    log,
		events: make(chan playback.PlayerEvent, 16),
	}
}

// Play stops anything in progress and starts streaming streamURL.
func (p *Player) Play(ctx context.Context, streamURL string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	body, err := p.open(ctx, streamURL)
	if err != nil {
		return 0, err
	}

	done := make(chan error, 1)
	pipe, err := p.start(body, done)
	if err != nil {
		body.Close()
		return 0, fmt.Errorf("failed to start encoder: %w", err)
	}

	p.seq++
	p.pipe = pipe
	p.status = playback.StatusPlaying
	p.stopped = make(chan struct{})
	p.setSpeaking(true)

	go p.watch(p.seq, body, done, p.stopped)
	return p.seq, nil
}

func (p *Player) watch(seq uint64, body io.Closer, done <-chan error, stopped <-chan struct{}) {
	var err error
	select {
	case err = <-done:
	case <-stopped:
	}
	body.Close()

	p.mu.Lock()
	if p.seq == seq {
		p.status = playback.StatusIdle
		p.pipe = nil
		p.setSpeaking(false)
	}
	p.mu.Unlock()

	ev := playback.PlayerEvent{Kind: playback.EventIdle, Seq: seq}
	if err != nil && !errors.Is(err, io.EOF) {
		ev.Kind = playback.EventError
		ev.Err = err
	}

	select {
	case p.events <- ev:
	default:
		p.log.Warn("dropped player event", logger.Fields{"seq": seq})
	}
}

// Pause holds the current stream where it is
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != playback.StatusPlaying {
		return fmt.Errorf("not playing")
	}
	p.pipe.SetPaused(true)
	p.status = playback.StatusPaused
	p.setSpeaking(false)
	return nil
}

// Resume continues a paused stream
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != playback.StatusPaused {
		return fmt.Errorf("not paused")
	}
	p.pipe.SetPaused(false)
	p.status = playback.StatusPlaying
	p.setSpeaking(true)
	return nil
}

// Stop ends the current playback, which then reports EventIdle
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.pipe == nil {
		return
	}
	p.pipe.Stop()
	p.pipe = nil
	p.status = playback.StatusIdle
	close(p.stopped)
}

func (p *Player) Status() playback.PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Player) Events() <-chan playback.PlayerEvent {
	return p.events
}

func (p *Player) setSpeaking(on bool) {
	if p.speak == nil {
		return
	}
	if err := p.speak(on); err != nil {
		p.log.Debug("failed to set speaking state", logger.Fields{"speaking": on, "error": err.Error()})
	}
}
