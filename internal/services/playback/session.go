package playback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IbrahimO9/discord-music-bot/internal/services/queue"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
)

// Session is the live playback state of one guild
type Session struct {
	ID             string
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	Queue          *queue.Queue
	CreatedAt      time.Time

	mu           sync.Mutex
	state        State
	conn         Connection
	player       Player
	current      *queue.Track
	seq          uint64
	nowPlayingID string

	// prev is the guild's previous session if it was still leaving voice
	// when this one was created.
	prev *Session

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	doneOnce  sync.Once
	voiceDone chan struct{}
	voiceOnce sync.Once
	endOnce   sync.Once
	log       *logger.Logger
}

func newSession(guildID, voiceChannelID, textChannelID string, log *logger.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		ID:             id,
		GuildID:        guildID,
		VoiceChannelID: voiceChannelID,
		TextChannelID:  textChannelID,
		Queue:          queue.New(),
		CreatedAt:      time.Now(),
		state:          StateStarting,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		voiceDone:      make(chan struct{}),
		log:            log.WithSession(guildID, id),
	}
}

// State returns the session's current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session loop has exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// VoiceReleased is closed once the session no longer holds the guild's voice connection
func (s *Session) VoiceReleased() <-chan struct{} {
	return s.voiceDone
}

func (s *Session) closeVoice() {
	s.voiceOnce.Do(func() { close(s.voiceDone) })
}

// transition moves to next if legal; illegal moves are logged and ignored.
func (s *Session) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.state, next) {
		s.log.Warn("ignored illegal state transition", logger.Fields{"from": s.state.String(), "to": next.String()})
		return false
	}
	s.state = next
	return true
}

func (s *Session) attach(conn Connection, player Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.player = player
}

func (s *Session) handles() (Connection, Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.player
}

func (s *Session) setCurrent(track *queue.Track, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = track
	s.seq = seq
}

func (s *Session) currentSeq() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, s.current != nil
}

func (s *Session) swapNowPlaying(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.nowPlayingID
	s.nowPlayingID = id
	return old
}

// Snapshot is a read-only view of a session for rendering
type Snapshot struct {
	SessionID string
	State     State
	Paused    bool
	Current   *queue.Track
	Pending   []queue.Track
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{SessionID: s.ID, State: s.state}
	if s.current != nil {
		current := *s.current
		snap.Current = &current
	}
	player := s.player
	s.mu.Unlock()

	if player != nil {
		snap.Paused = player.Status() == StatusPaused
	}
	snap.Pending = s.Queue.PeekAll()
	return snap
}
