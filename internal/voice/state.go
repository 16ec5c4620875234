package voice

import "fmt"

// State is the lifecycle position of a guild's playback session.
type State int

const (
	NoSession State = iota
	Connecting
	Ready
	Playing
	Idle
	Disconnected
	Destroyed
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no-session"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Idle:
		return "idle"
	case Disconnected:
		return "disconnected"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OutcomeKind tells whether a request started playing or was queued.
type OutcomeKind int

const (
	PlayingNow OutcomeKind = iota + 1
	Queued
)

// Outcome is the result of an accepted EnqueueOrPlay call.
type Outcome struct {
	Kind OutcomeKind
	// Position is the 1-based place in the queue when Kind is Queued.
	Position int
}

func (o Outcome) String() string {
	switch o.Kind {
	case PlayingNow:
		return "playing now"
	case Queued:
		return fmt.Sprintf("queued at #%d", o.Position)
	default:
		return "unknown"
	}
}

// Snapshot is a read-only view of a session for diagnostics.
type Snapshot struct {
	Connected   bool
	State       State
	QueueLength int
	ChannelID   string
}
