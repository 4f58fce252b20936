package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IbrahimO9/discord-music-bot/internal/errs"
	"github.com/IbrahimO9/discord-music-bot/internal/services/queue"
	"github.com/IbrahimO9/discord-music-bot/internal/services/resolver"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

var (
	ErrNoSession      = errors.New("no active session")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrAlreadyPaused  = errors.New("already paused")
	ErrNotPaused      = errors.New("not paused")
	// ErrSessionClosed means the session was stopped while the request was in flight.
	ErrSessionClosed = errors.New("session closed")
)

// errSessionGone aborts a track when its session was torn down mid-flight.
var errSessionGone = errors.New("session gone")

const (
	msgQueueFinished = "✅ Queue finished!"
	msgPlayError     = "❌ Error playing song. Skipping..."
	msgPlayFailed    = "❌ Failed to play. Skipping..."
	msgJoinDropped   = "❌ Could not join the voice channel. Dropped %d queued songs."

	uiTimeout = 10 * time.Second
)

// Options holds the controller's timing knobs
type Options struct {
	StreamTTL        time.Duration
	ConnectTimeout   time.Duration
	ReconnectTimeout time.Duration
	ResolveTimeout   time.Duration
	StopTimeout      time.Duration
}

// PlayRequest asks for a track to be played in a guild
type PlayRequest struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	Track          *queue.Track
}

// PlayResult tells the caller whether a new session started and where the track landed
type PlayResult struct {
	SessionID string
	Started   bool
	Position  int
}

// Controller owns every session and drives each through its state machine
type Controller struct {
	registry *Registry
	voice    Voice
	resolver resolver.Resolver
	notifier Notifier
	opts     Options
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewController(voice Voice, res resolver.Resolver, notifier Notifier, opts Options, log *logger.Logger, m *metrics.Metrics) *Controller {
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Controller{
		registry: NewRegistry(),
		voice:    voice,
		resolver: res,
		notifier: notifier,
		opts:     opts,
		log:      log.WithComponent("playback"),
		metrics:  m,
		now:      time.Now,
	}
}

// Registry exposes the read side of the session table
func (c *Controller) Registry() *Registry {
	return c.registry
}

// Play enqueues the track, starting a session and joining voice when the guild has none
func (c *Controller) Play(ctx context.Context, req PlayRequest) (PlayResult, error) {
	track := req.Track
	track.GuildID = req.GuildID
	if track.ChannelID == "" {
		track.ChannelID = req.TextChannelID
	}

	// A track that would start a session is resolved before anything joins
	// voice, so the requester hears about an unplayable video right away.
	if _, ok := c.registry.Get(req.GuildID); !ok {
		if err := c.refresh(ctx, track); err != nil {
			c.metrics.RecordTrackEvent("failed")
			return PlayResult{}, err
		}
	}

	sess, created, position := c.registry.enqueueOrCreate(req.GuildID, track, func() *Session {
		return newSession(req.GuildID, req.VoiceChannelID, req.TextChannelID, c.log)
	})
	c.metrics.RecordQueueEvent("enqueued", position)

	if !created {
		sess.log.Debug("track queued", logger.Fields{"title": track.Title, "position": position})
		return PlayResult{SessionID: sess.ID, Position: position}, nil
	}

	c.metrics.RecordSessionEvent("created", c.registry.Len())
	if err := c.start(ctx, sess); err != nil {
		return PlayResult{}, err
	}
	return PlayResult{SessionID: sess.ID, Started: true, Position: position}, nil
}

func (c *Controller) start(ctx context.Context, sess *Session) error {
	joinCtx, cancel := context.WithTimeout(sess.ctx, c.opts.ConnectTimeout)
	defer cancel()

	// The caller's context is short-lived; only its cancellation matters here.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	conn, err := c.join(joinCtx, sess)
	if err != nil {
		// abandon cancels the session context, so read it first.
		closed := sess.ctx.Err() != nil
		c.abandon(sess)
		if closed {
			return ErrSessionClosed
		}
		return errs.Connection("joining voice channel", err).
			WithContext("guild_id", sess.GuildID).
			WithContext("channel_id", sess.VoiceChannelID)
	}

	if !c.registry.Owns(sess) || sess.ctx.Err() != nil {
		conn.Close()
		c.abandon(sess)
		return ErrSessionClosed
	}

	player, err := conn.NewPlayer()
	if err != nil {
		conn.Close()
		c.abandon(sess)
		return errs.Connection("creating player", err)
	}

	sess.attach(conn, player)
	sess.log.Info("joined voice channel", logger.Fields{"channel_id": sess.VoiceChannelID})

	c.wg.Add(1)
	go c.run(sess, conn, player)
	return nil
}

// join waits for the guild's previous session to leave voice, then joins.
// discordgo keeps one voice connection per guild, so joining earlier would
// hand back the connection the previous session is about to close.
func (c *Controller) join(ctx context.Context, sess *Session) (Connection, error) {
	if prev := sess.prev; prev != nil {
		select {
		case <-prev.VoiceReleased():
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for previous session to leave voice: %w", ctx.Err())
		}
	}
	return c.voice.Join(ctx, sess.GuildID, sess.VoiceChannelID)
}

// abandon releases a session that never reached its run loop. Tracks other
// requesters queued during the join are dropped with a notice in the channel.
func (c *Controller) abandon(sess *Session) {
	sess.endOnce.Do(func() {
		c.registry.remove(sess)
		dropped := sess.Queue.Clear() - 1
		sess.cancel()
		sess.transition(StateIdle)
		c.releaseVoice(sess)
		c.metrics.RecordSessionEvent("abandoned", c.registry.Len())
		if dropped > 0 {
			sess.log.Warn("dropped tracks queued during failed join", logger.Fields{"dropped": dropped})
			c.announce(sess, fmt.Sprintf(msgJoinDropped, dropped))
		}
	})
	sess.closeDone()
}

func (c *Controller) releaseVoice(sess *Session) {
	sess.closeVoice()
	c.registry.forget(sess)
}

func (c *Controller) run(sess *Session, conn Connection, player Player) {
	defer c.wg.Done()
	defer sess.closeDone()
	defer c.releaseVoice(sess)
	defer errs.Recover(func(err error) {
		sess.log.Error("session loop panicked", err)
		c.teardown(sess, conn, player)
	})

	if !c.advance(sess, player) {
		c.end(sess, conn, player)
		return
	}

	for {
		select {
		case <-sess.ctx.Done():
			c.teardown(sess, conn, player)
			return

		case ev := <-player.Events():
			seq, active := sess.currentSeq()
			if !active || ev.Seq != seq {
				sess.log.Debug("ignored stale player event", logger.Fields{"seq": ev.Seq, "current": seq})
				continue
			}

			if ev.Kind == EventError {
				sess.log.Warn("playback error", logger.Fields{"error": fmt.Sprint(ev.Err)})
				c.metrics.RecordTrackEvent("errored")
				c.announce(sess, msgPlayError)
			} else {
				c.metrics.RecordTrackEvent("finished")
			}

			if !c.advance(sess, player) {
				c.end(sess, conn, player)
				return
			}

		case <-conn.Disconnected():
			sess.log.Warn("voice connection lost, waiting for reconnect", logger.Fields{"timeout": c.opts.ReconnectTimeout.String()})
			waitCtx, cancel := context.WithTimeout(sess.ctx, c.opts.ReconnectTimeout)
			err := conn.WaitReady(waitCtx)
			cancel()
			if err != nil {
				sess.log.Warn("voice connection did not recover", logger.Fields{"error": err.Error()})
				c.teardown(sess, conn, player)
				return
			}
			sess.log.Info("voice connection recovered")
		}
	}
}

// advance plays the next track that can be started. It returns false once the
// queue is drained or the session is gone, after which the loop must end.
func (c *Controller) advance(sess *Session, player Player) bool {
	for {
		if sess.ctx.Err() != nil {
			return false
		}

		track, next := c.registry.nextOrRelease(sess)
		switch next {
		case nextGone:
			return false
		case nextDrained:
			sess.setCurrent(nil, 0)
			sess.transition(StateIdle)
			return false
		}

		err := c.playTrack(sess, player, track)
		if err == nil {
			return true
		}
		if errors.Is(err, errSessionGone) {
			return false
		}

		sess.log.WithTrack(track.Title, track.SourceURL).Warn("skipping track", logger.Fields{"error": err.Error()})
		c.metrics.RecordTrackEvent("failed")
		c.announce(sess, msgPlayFailed)
	}
}

// refresh resolves the track's stream unless a fresh one is cached. The
// track must not be shared with other goroutines while this runs.
func (c *Controller) refresh(ctx context.Context, track *queue.Track) error {
	if !track.NeedsRefresh(c.now(), c.opts.StreamTTL) {
		c.metrics.RecordTrackEvent("reused_stream")
		return nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, c.opts.ResolveTimeout)
	defer cancel()
	res, err := c.resolver.Resolve(resolveCtx, track.SourceURL)
	if err != nil {
		return errs.Resolution("resolving stream", err).WithContext("source_url", track.SourceURL)
	}
	track.StreamURL = res.URL
	track.ResolvedAt = res.IssuedAt
	c.metrics.RecordTrackEvent("resolved")
	return nil
}

func (c *Controller) playTrack(sess *Session, player Player, track *queue.Track) error {
	err := c.refresh(sess.ctx, track)
	// Anything resolved for a session that was torn down meanwhile is discarded.
	if sess.ctx.Err() != nil || !c.registry.Owns(sess) {
		return errSessionGone
	}
	if err != nil {
		return err
	}

	seq, err := player.Play(sess.ctx, track.StreamURL)
	if err != nil {
		if sess.ctx.Err() != nil {
			return errSessionGone
		}
		return errs.Transport("starting playback", err)
	}

	sess.setCurrent(track, seq)
	sess.transition(StatePlaying)
	c.metrics.RecordTrackEvent("started")
	sess.log.WithTrack(track.Title, track.SourceURL).Info("now playing", logger.Fields{"pending": sess.Queue.Size()})

	c.showNowPlaying(sess, track)
	return nil
}

// showNowPlaying replaces the previous now-playing message with a fresh one.
func (c *Controller) showNowPlaying(sess *Session, track *queue.Track) {
	ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
	defer cancel()

	c.deleteNowPlaying(ctx, sess)

	id, err := c.notifier.NowPlaying(ctx, sess.TextChannelID, track, sess.Queue.Size())
	if err != nil {
		sess.log.Warn("failed to send now playing message", logger.Fields{"error": err.Error()})
		return
	}
	sess.swapNowPlaying(id)
}

func (c *Controller) deleteNowPlaying(ctx context.Context, sess *Session) {
	old := sess.swapNowPlaying("")
	if old == "" {
		return
	}
	if err := c.notifier.DeleteMessage(ctx, sess.TextChannelID, old); err != nil {
		sess.log.Debug("failed to delete now playing message", logger.Fields{"error": err.Error()})
	}
}

func (c *Controller) announce(sess *Session, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
	defer cancel()
	if err := c.notifier.Announce(ctx, sess.TextChannelID, content); err != nil {
		sess.log.Warn("failed to send announcement", logger.Fields{"error": err.Error()})
	}
}

// end finishes a session whose queue ran dry, or tears it down if it was stopped.
func (c *Controller) end(sess *Session, conn Connection, player Player) {
	if sess.ctx.Err() != nil || sess.State() != StateIdle {
		c.teardown(sess, conn, player)
		return
	}

	sess.endOnce.Do(func() {
		if err := conn.Close(); err != nil {
			sess.log.Debug("closing voice connection", logger.Fields{"error": err.Error()})
		}
		c.releaseVoice(sess)

		ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
		defer cancel()
		c.deleteNowPlaying(ctx, sess)
		c.announce(sess, msgQueueFinished)
		sess.cancel()
		c.metrics.RecordSessionEvent("finished", c.registry.Len())
		sess.log.Info("queue finished, session released")
	})
}

// teardown force-releases a session: drains its queue, stops the actor and leaves voice.
func (c *Controller) teardown(sess *Session, conn Connection, player Player) {
	sess.endOnce.Do(func() {
		c.registry.remove(sess)
		sess.Queue.Clear()
		sess.cancel()
		player.Stop()
		sess.setCurrent(nil, 0)
		if !sess.State().Terminal() {
			sess.transition(StateStopped)
		}

		if err := conn.Close(); err != nil {
			sess.log.Debug("closing voice connection", logger.Fields{"error": err.Error()})
		}
		c.releaseVoice(sess)

		ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
		defer cancel()
		c.deleteNowPlaying(ctx, sess)
		c.metrics.RecordSessionEvent("stopped", c.registry.Len())
		sess.log.Info("session torn down")
	})
}

func (c *Controller) session(guildID string) (*Session, error) {
	sess, ok := c.registry.Get(guildID)
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

func (c *Controller) activePlayer(guildID string) (*Session, Player, error) {
	sess, err := c.session(guildID)
	if err != nil {
		return nil, nil, err
	}
	_, player := sess.handles()
	if player == nil || sess.State() != StatePlaying {
		return nil, nil, ErrNothingPlaying
	}
	return sess, player, nil
}

// Pause pauses the guild's current track
func (c *Controller) Pause(guildID string) error {
	_, player, err := c.activePlayer(guildID)
	if err != nil {
		return err
	}
	switch player.Status() {
	case StatusPaused:
		return ErrAlreadyPaused
	case StatusIdle:
		return ErrNothingPlaying
	}
	return player.Pause()
}

// Resume resumes a paused track
func (c *Controller) Resume(guildID string) error {
	_, player, err := c.activePlayer(guildID)
	if err != nil {
		return err
	}
	if player.Status() != StatusPaused {
		return ErrNotPaused
	}
	return player.Resume()
}

// Skip stops the current track; the session loop then advances to the next one.
// Between tracks, while the next one resolves, there is nothing to skip.
func (c *Controller) Skip(guildID string) (queue.Track, error) {
	sess, player, err := c.activePlayer(guildID)
	if err != nil {
		return queue.Track{}, err
	}
	snap := sess.snapshot()
	if snap.Current == nil || player.Status() == StatusIdle {
		return queue.Track{}, ErrNothingPlaying
	}
	player.Stop()
	c.metrics.RecordTrackEvent("skipped")
	return *snap.Current, nil
}

// Stop drains the guild's queue, ends playback and leaves voice.
// It returns the number of pending tracks discarded.
func (c *Controller) Stop(ctx context.Context, guildID string) (int, error) {
	sess, err := c.session(guildID)
	if err != nil {
		return 0, err
	}

	c.registry.remove(sess)
	dropped := sess.Queue.Clear()
	sess.cancel()

	wait := time.NewTimer(c.opts.StopTimeout)
	defer wait.Stop()
	select {
	case <-sess.Done():
	case <-ctx.Done():
		return dropped, ctx.Err()
	case <-wait.C:
		sess.log.Warn("session did not release in time", logger.Fields{"timeout": c.opts.StopTimeout.String()})
	}
	return dropped, nil
}

// Snapshot returns the current and pending tracks of a guild
func (c *Controller) Snapshot(guildID string) (Snapshot, error) {
	sess, err := c.session(guildID)
	if err != nil {
		return Snapshot{State: StateIdle}, err
	}
	return sess.snapshot(), nil
}

// State reports the guild's playback state; guilds without a session are idle.
func (c *Controller) State(guildID string) State {
	sess, ok := c.registry.Get(guildID)
	if !ok {
		return StateIdle
	}
	return sess.State()
}

// Shutdown stops every session and waits for their loops to exit
func (c *Controller) Shutdown(ctx context.Context) error {
	for _, guildID := range c.registry.GuildIDs() {
		if _, err := c.Stop(ctx, guildID); err != nil && !errors.Is(err, ErrNoSession) {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
