package voice

import (
	"context"
	"io"
)

// LinkEvent is an asynchronous signal from an established connection.
type LinkEvent int

const (
	// LinkLost reports an unexpected drop of the voice link.
	LinkLost LinkEvent = iota + 1
	// LinkRestored reports that a lost link is usable again.
	LinkRestored
	// LinkMoved reports that the connection was moved to another channel;
	// ChannelID already returns the new one.
	LinkMoved
)

func (e LinkEvent) String() string {
	switch e {
	case LinkLost:
		return "lost"
	case LinkRestored:
		return "restored"
	case LinkMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// Connection is one joined voice channel.
type Connection interface {
	ChannelID() string
	// Ready reports whether audio can currently be sent.
	Ready() bool
	// Play streams one clip and returns when it finished or failed.
	Play(ctx context.Context, audio io.Reader) error
	// Events is closed after Disconnect.
	Events() <-chan LinkEvent
	Disconnect() error
}

// Transport joins voice channels. Connect returns once the connection is
// ready or ctx is done. An implementation may hand back an existing
// connection when it already sits in the requested channel.
type Transport interface {
	Connect(ctx context.Context, groupID, channelID string) (Connection, error)
}

// Resource is an audio clip owned by the session until it is released.
type Resource interface {
	Open() (io.ReadCloser, error)
	Release() error
}
