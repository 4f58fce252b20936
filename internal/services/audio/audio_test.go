package audio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonas747/dca"

	"github.com/IbrahimO9/discord-music-bot/config"
	"github.com/IbrahimO9/discord-music-bot/internal/services/playback"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
)

type fakePipeline struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	done    chan error
}

func (f *fakePipeline) SetPaused(paused bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = paused
}

func (f *fakePipeline) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

type nopBody struct{ closed atomic.Bool }

func (b *nopBody) Read([]byte) (int, error) { return 0, io.EOF }
func (b *nopBody) Close() error             { b.closed.Store(true); return nil }

type playerFixture struct {
	player   *Player
	pipes    []*fakePipeline
	bodies   []*nopBody
	speaking []bool
	openErr  error
	mu       sync.Mutex
}

func newPlayerFixture() *playerFixture {
	f := &playerFixture{}
	open := func(context.Context, string) (io.ReadCloser, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.openErr != nil {
			return nil, f.openErr
		}
		b := &nopBody{}
		f.bodies = append(f.bodies, b)
		return b, nil
	}
	start := func(_ io.Reader, done chan error) (pipeline, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		p := &fakePipeline{done: done}
		f.pipes = append(f.pipes, p)
		return p, nil
	}
	speak := func(on bool) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.speaking = append(f.speaking, on)
		return nil
	}
	f.player = newPlayer(open, start, speak, logger.Nop())
	return f
}

func (f *playerFixture) pipe(i int) *fakePipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pipes[i]
}

func nextEvent(t *testing.T, p *Player) playback.PlayerEvent {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for player event")
		return playback.PlayerEvent{}
	}
}

func TestPlayer_EndOfStream(t *testing.T) {
	tests := []struct {
		name     string
		doneErr  error
		wantKind playback.EventKind
	}{
		{"eof", io.EOF, playback.EventIdle},
		{"nil", nil, playback.EventIdle},
		{"encoder failure", errors.New("ffmpeg exited with status 1"), playback.EventError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPlayerFixture()
			seq, err := f.player.Play(context.Background(), "https://cdn/a")
			if err != nil {
				t.Fatalf("Play() error = %v", err)
			}
			if f.player.Status() != playback.StatusPlaying {
				t.Fatalf("status = %v, want playing", f.player.Status())
			}

			f.pipe(0).done <- tt.doneErr
			ev := nextEvent(t, f.player)
			if ev.Seq != seq || ev.Kind != tt.wantKind {
				t.Errorf("event = %+v, want seq %d kind %v", ev, seq, tt.wantKind)
			}
			if f.player.Status() != playback.StatusIdle {
				t.Errorf("status = %v, want idle", f.player.Status())
			}
			if !f.bodies[0].closed.Load() {
				t.Error("stream body should be closed")
			}
		})
	}
}

func TestPlayer_StopEmitsIdle(t *testing.T) {
	f := newPlayerFixture()
	seq, _ := f.player.Play(context.Background(), "https://cdn/a")

	f.player.Stop()
	ev := nextEvent(t, f.player)
	if ev.Kind != playback.EventIdle || ev.Seq != seq {
		t.Errorf("event = %+v", ev)
	}
	if !f.pipe(0).stopped {
		t.Error("pipeline should be stopped")
	}

	// Stopping an idle player is a no-op.
	f.player.Stop()
	select {
	case ev := <-f.player.Events():
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPlayer_PlayReplacesCurrent(t *testing.T) {
	f := newPlayerFixture()
	first, _ := f.player.Play(context.Background(), "https://cdn/a")
	second, _ := f.player.Play(context.Background(), "https://cdn/b")
	if second != first+1 {
		t.Fatalf("seq = %d, want %d", second, first+1)
	}

	ev := nextEvent(t, f.player)
	if ev.Seq != first {
		t.Errorf("replaced playback reported seq %d, want %d", ev.Seq, first)
	}
	if f.player.Status() != playback.StatusPlaying {
		t.Error("the late event of the first playback must not idle the second")
	}
}

func TestPlayer_PauseResume(t *testing.T) {
	f := newPlayerFixture()
	if err := f.player.Pause(); err == nil {
		t.Error("Pause() on idle player should fail")
	}

	f.player.Play(context.Background(), "https://cdn/a")
	if err := f.player.Resume(); err == nil {
		t.Error("Resume() while playing should fail")
	}
	if err := f.player.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if !f.pipe(0).paused || f.player.Status() != playback.StatusPaused {
		t.Error("pipeline should be paused")
	}
	if err := f.player.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if f.pipe(0).paused || f.player.Status() != playback.StatusPlaying {
		t.Error("pipeline should be running")
	}

	f.mu.Lock()
	got := append([]bool(nil), f.speaking...)
	f.mu.Unlock()
	want := []bool{true, false, true}
	if len(got) != len(want) {
		t.Fatalf("speaking = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("speaking = %v, want %v", got, want)
		}
	}
}

func TestPlayer_OpenFailure(t *testing.T) {
	f := newPlayerFixture()
	f.openErr = errors.New("stream returned status 403")

	if _, err := f.player.Play(context.Background(), "https://cdn/a"); err == nil {
		t.Fatal("Play() should fail when the stream cannot be opened")
	}
	if f.player.Status() != playback.StatusIdle {
		t.Error("player should stay idle")
	}
}

func TestHTTPOpener(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/expired" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Write([]byte("OggS"))
	}))
	defer srv.Close()

	open := httpOpener(srv.Client(), "test-agent")

	body, err := open(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "OggS" {
		t.Errorf("body = %q", data)
	}
	if gotUA != "test-agent" {
		t.Errorf("User-Agent = %q", gotUA)
	}

	_, err = open(context.Background(), srv.URL+"/expired")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("open() error = %v, want status 403", err)
	}
}

func TestEncodeOptions(t *testing.T) {
	before := *dca.StdEncodeOptions

	opts := encodeOptions(config.AudioConfig{Bitrate: 128, Volume: 200, BufferedFrames: 500, EnableVBR: true})
	if opts.Bitrate != 128 || opts.Volume != 200 || opts.BufferedFrames != 500 || !opts.VBR {
		t.Errorf("options not applied: %+v", opts)
	}
	if !opts.RawOutput || opts.Application != dca.AudioApplicationLowDelay {
		t.Errorf("raw low-delay output expected: %+v", opts)
	}
	if opts.FrameRate != before.FrameRate {
		t.Errorf("unset FrameRate should keep default %d, got %d", before.FrameRate, opts.FrameRate)
	}
	if dca.StdEncodeOptions.Bitrate != before.Bitrate || dca.StdEncodeOptions.RawOutput != before.RawOutput {
		t.Error("StdEncodeOptions was mutated")
	}
}

func TestConnection_WatchReportsDrops(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	c := &Connection{
		gw:           NewGateway(nil, config.AudioConfig{}, "", logger.Nop()),
		guildID:      "g1",
		ready:        ready.Load,
		disconnected: make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	go c.watch()
	defer c.Close()

	ready.Store(false)
	select {
	case <-c.Disconnected():
	case <-time.After(2 * time.Second):
		t.Fatal("drop was not reported")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		time.Sleep(50 * time.Millisecond)
		ready.Store(true)
	}()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
}

func TestConnection_WaitReadyTimeout(t *testing.T) {
	c := &Connection{
		gw:    NewGateway(nil, config.AudioConfig{}, "", logger.Nop()),
		ready: func() bool { return false },
		stop:  make(chan struct{}),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := c.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() error = %v, want deadline exceeded", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
