package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed completes jobs dropped by Leave or Close.
	ErrSessionClosed = errors.New("voice session closed")
	// ErrManagerClosed is returned for requests made after Close.
	ErrManagerClosed = errors.New("voice manager closed")
	// ErrInvalidRequest is returned when a request lacks a guild, channel or audio.
	ErrInvalidRequest = errors.New("invalid playback request")

	errConnectTimeout   = errors.New("voice connection was not ready in time")
	errReconnectTimeout = errors.New("voice connection was not recovered in time")
)

// ConnectionError means the voice link could not be established or recovered.
type ConnectionError struct {
	GroupID   string
	ChannelID string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("voice connection to channel %s in guild %s failed: %v", e.ChannelID, e.GroupID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PlaybackError means the audio engine failed while starting or playing a clip.
type PlaybackError struct {
	GroupID string
	Err     error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback in guild %s failed: %v", e.GroupID, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
