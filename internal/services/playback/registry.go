package playback

import (
	"sort"
	"sync"

	"github.com/IbrahimO9/discord-music-bot/internal/services/queue"
)

// Registry maps guild ids to their active session. Only the controller mutates it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// leaving holds released sessions until they have closed their voice connection.
	leaving map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		leaving:  make(map[string]*Session),
	}
}

// Get returns the active session for a guild
func (r *Registry) Get(guildID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Owns reports whether s is still the registered session for its guild
func (r *Registry) Owns(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[s.GuildID] == s
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// GuildIDs lists guilds with an active session in sorted order
func (r *Registry) GuildIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// enqueueOrCreate appends track to the guild's session, creating the session
// with create when none exists. position is the queue length after the append.
// A new session remembers a predecessor that is still leaving voice.
func (r *Registry) enqueueOrCreate(guildID string, track *queue.Track, create func() *Session) (s *Session, created bool, position int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[guildID]
	if !ok {
		s = create()
		if prev, leaving := r.leaving[guildID]; leaving {
			s.prev = prev
			delete(r.leaving, guildID)
		}
		r.sessions[guildID] = s
		created = true
	}
	s.Queue.Enqueue(track)
	return s, created, s.Queue.Size()
}

type nextResult int

const (
	nextTrack nextResult = iota
	nextDrained
	nextGone
)

// nextOrRelease pops the next track, or removes the session when its queue is
// drained. Both decisions happen under the registry lock so a concurrent
// enqueueOrCreate either lands before the release or creates a fresh session.
func (r *Registry) nextOrRelease(s *Session) (*queue.Track, nextResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.GuildID] != s {
		return nil, nextGone
	}
	track, err := s.Queue.Dequeue()
	if err != nil {
		r.releaseLocked(s)
		return nil, nextDrained
	}
	return track, nextTrack
}

// remove drops s if it is still the guild's registered session
func (r *Registry) remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.GuildID] != s {
		return false
	}
	r.releaseLocked(s)
	return true
}

func (r *Registry) releaseLocked(s *Session) {
	delete(r.sessions, s.GuildID)
	r.leaving[s.GuildID] = s
}

// forget drops s from the leaving set once its voice connection is closed
func (r *Registry) forget(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leaving[s.GuildID] == s {
		delete(r.leaving, s.GuildID)
	}
}
