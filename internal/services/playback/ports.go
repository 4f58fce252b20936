package playback

import (
	"context"

	"github.com/IbrahimO9/discord-music-bot/internal/services/queue"
)

// Voice joins voice channels on behalf of a session
type Voice interface {
	Join(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Connection is a joined voice channel
type Connection interface {
	// NewPlayer creates the single playback actor bound to this connection.
	NewPlayer() (Player, error)
	// Disconnected fires each time the connection drops out of the ready state.
	Disconnected() <-chan struct{}
	// WaitReady blocks until the connection is ready again or ctx ends.
	WaitReady(ctx context.Context) error
	Close() error
}

// PlayerStatus is what the playback actor is doing right now
type PlayerStatus int

const (
	StatusIdle PlayerStatus = iota
	StatusPlaying
	StatusPaused
)

// EventKind distinguishes terminal playback events
type EventKind int

const (
	// EventIdle means the stream ended or was stopped.
	EventIdle EventKind = iota
	// EventError means the stream failed part-way.
	EventError
)

// PlayerEvent reports the end of the playback identified by Seq
type PlayerEvent struct {
	Kind EventKind
	Seq  uint64
	Err  error
}

// Player streams one audio URL at a time into a connection
type Player interface {
	// Play stops anything in progress and starts streamURL. The returned
	// sequence number tags the events emitted for this playback.
	Play(ctx context.Context, streamURL string) (uint64, error)
	Pause() error
	Resume() error
	// Stop ends the current playback, which then emits EventIdle.
	Stop()
	Status() PlayerStatus
	Events() <-chan PlayerEvent
}

// Notifier renders session updates into the guild's text channel
type Notifier interface {
	NowPlaying(ctx context.Context, channelID string, track *queue.Track, pending int) (messageID string, err error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	Announce(ctx context.Context, channelID, content string) error
}
