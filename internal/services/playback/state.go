package playback

import "fmt"

// State is the lifecycle position of a guild's playback session
type State int

const (
	StateIdle State = iota
	StateStarting
	StatePlaying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Idle and Stopped are terminal for a session; a guild without a session reports Idle.
var transitions = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StateStarting, StatePlaying, StateIdle, StateStopped},
	StatePlaying:  {StatePlaying, StateIdle, StateStopped},
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a session in this state is finished
func (s State) Terminal() bool {
	return s == StateIdle || s == StateStopped
}
