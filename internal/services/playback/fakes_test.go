package playback

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/IbrahimO9/discord-music-bot/internal/services/queue"
	"github.com/IbrahimO9/discord-music-bot/internal/services/resolver"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

type fakePlayer struct {
	mu       sync.Mutex
	seq      uint64
	status   PlayerStatus
	played   []string
	failURLs map[string]error
	events   chan PlayerEvent
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{failURLs: map[string]error{}, events: make(chan PlayerEvent, 64)}
}

func (p *fakePlayer) Play(_ context.Context, streamURL string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failURLs[streamURL]; err != nil {
		return 0, err
	}
	p.seq++
	p.status = StatusPlaying
	p.played = append(p.played, streamURL)
	return p.seq, nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusPaused
	return nil
}

func (p *fakePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusPlaying
	return nil
}

func (p *fakePlayer) Stop() {
	p.finish(EventIdle, nil)
}

// finish ends the current playback the way a real stream would.
func (p *fakePlayer) finish(kind EventKind, err error) {
	p.mu.Lock()
	if p.status == StatusIdle {
		p.mu.Unlock()
		return
	}
	p.status = StatusIdle
	seq := p.seq
	p.mu.Unlock()
	p.emit(PlayerEvent{Kind: kind, Seq: seq, Err: err})
}

func (p *fakePlayer) emit(ev PlayerEvent) {
	select {
	case p.events <- ev:
	default:
	}
}

func (p *fakePlayer) Status() PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakePlayer) Events() <-chan PlayerEvent { return p.events }

func (p *fakePlayer) playedURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.played)
}

type fakeConn struct {
	player       *fakePlayer
	disconnected chan struct{}
	recover      bool
	closeGate    chan struct{}

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) NewPlayer() (Player, error) { return c.player, nil }

func (c *fakeConn) Disconnected() <-chan struct{} { return c.disconnected }

func (c *fakeConn) WaitReady(ctx context.Context) error {
	if c.recover {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeConn) Close() error {
	if c.closeGate != nil {
		<-c.closeGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) drop() {
	c.disconnected <- struct{}{}
}

type fakeVoice struct {
	mu      sync.Mutex
	joins   int
	// overlaps counts joins made while the guild's previous connection was still open.
	overlaps int
	err     error
	block   bool
	recover bool
	// closeGate, when set, holds Close on connections joined afterwards.
	closeGate chan struct{}
	conns     map[string]*fakeConn
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{conns: map[string]*fakeConn{}}
}

func (v *fakeVoice) Join(ctx context.Context, guildID, _ string) (Connection, error) {
	v.mu.Lock()
	v.joins++
	block, err, closeGate := v.block, v.err, v.closeGate
	if prev := v.conns[guildID]; prev != nil && !prev.isClosed() {
		v.overlaps++
	}
	v.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	conn := &fakeConn{player: newFakePlayer(), disconnected: make(chan struct{}, 1), recover: v.recover, closeGate: closeGate}
	v.mu.Lock()
	v.conns[guildID] = conn
	v.mu.Unlock()
	return conn, nil
}

func (v *fakeVoice) conn(guildID string) *fakeConn {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conns[guildID]
}

func (v *fakeVoice) joinCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.joins
}

func (v *fakeVoice) overlapCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.overlaps
}

type fakeResolver struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	block   bool
	entered chan string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{fail: map[string]error{}, entered: make(chan string, 64)}
}

func (r *fakeResolver) Resolve(ctx context.Context, sourceURL string) (resolver.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, sourceURL)
	block, err := r.block, r.fail[sourceURL]
	r.mu.Unlock()

	select {
	case r.entered <- sourceURL:
	default:
	}
	if block {
		<-ctx.Done()
		return resolver.Result{}, ctx.Err()
	}
	if err != nil {
		return resolver.Result{}, err
	}
	return resolver.Result{URL: "stream:" + sourceURL, IssuedAt: time.Now(), Backend: "fake"}, nil
}

func (r *fakeResolver) setBlock(block bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.block = block
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeNotifier struct {
	mu            sync.Mutex
	next          int
	nowPlaying    []string
	deleted       []string
	announcements []string
	// announceGate, when set, holds every Announce until it is closed.
	announceGate chan struct{}
}

func (n *fakeNotifier) NowPlaying(_ context.Context, _ string, track *queue.Track, _ int) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	n.nowPlaying = append(n.nowPlaying, track.Title)
	return fmt.Sprintf("msg-%d", n.next), nil
}

func (n *fakeNotifier) DeleteMessage(_ context.Context, _, messageID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, messageID)
	return nil
}

func (n *fakeNotifier) Announce(ctx context.Context, _, content string) error {
	n.mu.Lock()
	n.announcements = append(n.announcements, content)
	gate := n.announceGate
	n.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (n *fakeNotifier) holdAnnouncements() chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announceGate = make(chan struct{})
	return n.announceGate
}

func (n *fakeNotifier) snapshot() (nowPlaying, deleted, announcements []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.nowPlaying), slices.Clone(n.deleted), slices.Clone(n.announcements)
}

type harness struct {
	ctrl     *Controller
	voice    *fakeVoice
	resolver *fakeResolver
	notifier *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		voice:    newFakeVoice(),
		resolver: newFakeResolver(),
		notifier: &fakeNotifier{},
	}
	h.ctrl = NewController(h.voice, h.resolver, h.notifier, Options{
		StreamTTL:        5 * time.Minute,
		ConnectTimeout:   time.Second,
		ReconnectTimeout: 50 * time.Millisecond,
		ResolveTimeout:   time.Second,
		StopTimeout:      time.Second,
	}, logger.Nop(), metrics.NewMetrics())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.ctrl.Shutdown(ctx)
	})
	return h
}

func (h *harness) play(t *testing.T, guildID, title string) PlayResult {
	t.Helper()
	res, err := h.ctrl.Play(context.Background(), PlayRequest{
		GuildID:        guildID,
		VoiceChannelID: "voice-" + guildID,
		TextChannelID:  "text-" + guildID,
		Track:          &queue.Track{Title: title, SourceURL: "src:" + title, Requester: "alice"},
	})
	if err != nil {
		t.Fatalf("Play(%q) error = %v", title, err)
	}
	return res
}

func (h *harness) player(guildID string) *fakePlayer {
	if c := h.voice.conn(guildID); c != nil {
		return c.player
	}
	return nil
}

func (h *harness) waitPlayed(t *testing.T, guildID string, n int) {
	t.Helper()
	waitFor(t, fmt.Sprintf("%d tracks played in %s", n, guildID), func() bool {
		p := h.player(guildID)
		return p != nil && len(p.playedURLs()) >= n && h.ctrl.State(guildID) == StatePlaying
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
