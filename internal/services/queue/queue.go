package queue

import (
	"errors"
	"sync"
	"time"
)

// ErrEmpty is returned when dequeuing from a queue with no pending tracks
var ErrEmpty = errors.New("queue is empty")

// Track is a single playable item requested by a guild member
type Track struct {
	Title     string
	SourceURL string
	Thumbnail string
	Requester string
	GuildID   string
	ChannelID string

	// StreamURL and ResolvedAt stay zero until the controller resolves the track.
	StreamURL  string
	ResolvedAt time.Time
}

// NeedsRefresh reports whether the stream URL is missing or older than ttl
func (t *Track) NeedsRefresh(now time.Time, ttl time.Duration) bool {
	if t.StreamURL == "" || t.ResolvedAt.IsZero() {
		return true
	}
	return now.Sub(t.ResolvedAt) > ttl
}

// Queue is an unbounded FIFO of pending tracks for one guild
type Queue struct {
	mu     sync.Mutex
	tracks []*Track
}

// New creates an empty queue
func New() *Queue {
	return &Queue{}
}

// Enqueue appends a track to the back of the queue
func (q *Queue) Enqueue(track *Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, track)
}

// Dequeue removes and returns the front track
func (q *Queue) Dequeue() (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		return nil, ErrEmpty
	}

	track := q.tracks[0]
	q.tracks[0] = nil
	q.tracks = q.tracks[1:]
	if len(q.tracks) == 0 {
		q.tracks = nil
	}
	return track, nil
}

// Size returns the number of pending tracks
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

// IsEmpty reports whether no tracks are pending
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// PeekAll returns a copy of the pending tracks in playback order
func (q *Queue) PeekAll() []Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Track, len(q.tracks))
	for i, t := range q.tracks {
		out[i] = *t
	}
	return out
}

// Clear discards every pending track and returns how many were dropped
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tracks)
	q.tracks = nil
	return n
}
