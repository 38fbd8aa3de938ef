package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

// QueueSong asks the playback owner to append entry to the queue
func (s *Session) QueueSong(ctx context.Context, entry protocol.Entry) (json.RawMessage, error) {
	return s.SendCommandWithAck(ctx, protocol.CmdQueueSong, entry, 0)
}

// RemoveSong removes a queue item by its queue item id
func (s *Session) RemoveSong(ctx context.Context, itemID string) (json.RawMessage, error) {
	return s.SendCommandWithAck(ctx, protocol.CmdRemoveSong, protocol.EntryIDPayload{EntryID: itemID}, 0)
}

func (s *Session) PlaySong(ctx context.Context) (json.RawMessage, error) {
	return s.SendCommandWithAck(ctx, protocol.CmdPlaySong, nil, 0)
}

func (s *Session) PauseSong(ctx context.Context) (json.RawMessage, error) {
	return s.SendCommandWithAck(ctx, protocol.CmdPauseSong, nil, 0)
}

func (s *Session) PlayNext(ctx context.Context) (json.RawMessage, error) {
	return s.SendCommandWithAck(ctx, protocol.CmdPlayNext, nil, 0)
}

func (s *Session) ClearQueue(ctx context.Context) (json.RawMessage, error) {
	return s.SendCommandWithAck(ctx, protocol.CmdClearQueue, nil, 0)
}

// QueueNextSong moves a queue item to the front. It is fire-and-forget.
func (s *Session) QueueNextSong(itemID string) error {
	return s.SendCommand(protocol.CmdQueueNextSong, protocol.EntryIDPayload{EntryID: itemID})
}

// SetVolume asks the playback owner to change volume. Nothing is sent when
// volume is outside [0, 1].
func (s *Session) SetVolume(ctx context.Context, volume float64) (json.RawMessage, error) {
	if volume < 0 || volume > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	return s.SendCommandWithAck(ctx, protocol.CmdSetVolume, protocol.VolumePayload{Volume: volume}, 0)
}

// Intent is a raw user intent from the presentation layer
type Intent struct {
	Command protocol.Command `json:"command"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

// Perform maps an intent onto the command set. Fire-and-forget intents
// return a nil result.
func (s *Session) Perform(ctx context.Context, intent Intent) (json.RawMessage, error) {
	frame := protocol.Frame{Command: intent.Command, Payload: intent.Payload}

	switch intent.Command {
	case protocol.CmdQueueSong:
		var entry protocol.Entry
		if err := frame.Decode(&entry); err != nil {
			return nil, err
		}
		return s.QueueSong(ctx, entry)

	case protocol.CmdRemoveSong:
		var target protocol.EntryIDPayload
		if err := frame.Decode(&target); err != nil {
			return nil, err
		}
		return s.RemoveSong(ctx, target.EntryID)

	case protocol.CmdQueueNextSong:
		var target protocol.EntryIDPayload
		if err := frame.Decode(&target); err != nil {
			return nil, err
		}
		return nil, s.QueueNextSong(target.EntryID)

	case protocol.CmdSetVolume:
		volume, err := protocol.DecodeVolume(frame)
		if err != nil {
			return nil, err
		}
		return s.SetVolume(ctx, volume)

	case protocol.CmdPlaySong:
		return s.PlaySong(ctx)
	case protocol.CmdPauseSong:
		return s.PauseSong(ctx)
	case protocol.CmdPlayNext:
		return s.PlayNext(ctx)
	case protocol.CmdClearQueue:
		return s.ClearQueue(ctx)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, intent.Command)
}
