package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Command is the first element of every frame exchanged with the relay
type Command string

// Inbound commands (relay -> client)
const (
	CmdClientCount        Command = "client_count"
	CmdQueueUpdate        Command = "queue_update"
	CmdPlayerState        Command = "player_state"
	CmdPlaySong           Command = "play_song"
	CmdPauseSong          Command = "pause_song"
	CmdRequestPlayerState Command = "request_player_state"
	CmdLeaderStatus       Command = "leader_status"
	CmdPing               Command = "ping"
	CmdAck                Command = "ack"
	CmdSendCurrentQueue   Command = "send_current_queue"
	CmdSetVolume          Command = "set_volume"
	CmdError              Command = "error"
)

// Outbound commands (client -> relay). play_song, pause_song, set_volume and
// queue_update share their names with the inbound constants above.
const (
	CmdHandshake          Command = "handshake"
	CmdJoinRoom           Command = "join_room"
	CmdRequestFullState   Command = "request_full_state"
	CmdRequestQueueUpdate Command = "request_queue_update"
	CmdQueueSong          Command = "queue_song"
	CmdRemoveSong         Command = "remove_song"
	CmdPlayNext           Command = "play_next"
	CmdQueueNextSong      Command = "queue_next_song"
	CmdClearQueue         Command = "clear_queue"
	CmdUpdatePlayerState  Command = "update_player_state"
	CmdPong               Command = "pong"
)

var (
	// ErrMalformedFrame is returned when a frame is not a [command, payload] array
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrPayloadNotObject is returned when a request id cannot be attached to a payload
	ErrPayloadNotObject = errors.New("payload must be a JSON object")
)

var nullPayload = json.RawMessage("null")

// Frame is a single [command, payload] message on the duplex connection
type Frame struct {
	Command Command
	Payload json.RawMessage
}

// NewFrame encodes payload and builds a frame. A nil payload is sent as null.
func NewFrame(cmd Command, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Command: cmd, Payload: nullPayload}, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return Frame{Command: cmd, Payload: raw}, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", cmd, err)
	}
	return Frame{Command: cmd, Payload: data}, nil
}

// MarshalJSON encodes the frame as a two element array
func (f Frame) MarshalJSON() ([]byte, error) {
	payload := f.Payload
	if len(payload) == 0 {
		payload = nullPayload
	}
	return json.Marshal([]any{string(f.Command), payload})
}

// UnmarshalJSON decodes a two element array. A missing payload decodes as null.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(parts) == 0 || len(parts) > 2 {
		return fmt.Errorf("%w: expected 2 elements, got %d", ErrMalformedFrame, len(parts))
	}

	var cmd string
	if err := json.Unmarshal(parts[0], &cmd); err != nil {
		return fmt.Errorf("%w: command is not a string", ErrMalformedFrame)
	}

	f.Command = Command(cmd)
	f.Payload = nullPayload
	if len(parts) == 2 {
		f.Payload = parts[1]
	}
	return nil
}

// Decode unmarshals the payload into v
func (f Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Command, err)
	}
	return nil
}

// HasPayload reports whether the payload is anything other than null
func (f Frame) HasPayload() bool {
	trimmed := bytes.TrimSpace(f.Payload)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, nullPayload)
}

// WithRequestID returns a copy of an object payload with request_id set.
// A null payload becomes {"request_id": id}.
func WithRequestID(payload json.RawMessage, requestID string) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, nullPayload) {
		if trimmed[0] != '{' {
			return nil, ErrPayloadNotObject
		}
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadNotObject, err)
		}
	}

	id, err := json.Marshal(requestID)
	if err != nil {
		return nil, err
	}
	fields["request_id"] = id

	return json.Marshal(fields)
}
