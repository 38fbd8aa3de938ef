package session

import (
	"errors"
	"fmt"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrConnectionLost   = errors.New("connection lost before acknowledgement")
	ErrAckTimeout       = errors.New("timed out waiting for acknowledgement")
	ErrInvalidVolume    = errors.New("volume must be between 0 and 1")
	ErrUnknownIntent    = errors.New("unknown intent")
	ErrNotPlaybackOwner = errors.New("only the display can author playback state")
)

// CommandError is returned when the relay acknowledges a request with success=false
type CommandError struct {
	Command protocol.Command
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Command, e.Message)
}

// JoinError is returned when a room cannot be joined. Err is
// protocol.ErrPasswordRequired or protocol.ErrInvalidPassword when the
// failure is about credentials.
type JoinError struct {
	RoomID string
	Err    error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join room %s: %v", e.RoomID, e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}

// NeedsPassword reports whether err means the caller should prompt for a password
func NeedsPassword(err error) bool {
	return errors.Is(err, protocol.ErrPasswordRequired) || errors.Is(err, protocol.ErrInvalidPassword)
}
