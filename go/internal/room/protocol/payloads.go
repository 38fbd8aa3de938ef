package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// Role identifies what kind of device a client is
type Role string

const (
	RoleController Role = "controller"
	RoleDisplay    Role = "display"
)

// Valid reports whether r is a role the relay accepts
func (r Role) Valid() bool {
	return r == RoleController || r == RoleDisplay
}

// PlayState represents the playback status reported by the display
type PlayState string

const (
	PlayStatePlaying   PlayState = "playing"
	PlayStatePaused    PlayState = "paused"
	PlayStateFinished  PlayState = "finished"
	PlayStateBuffering PlayState = "buffering"
)

// Entry is a song that can be queued. Identity is ID.
type Entry struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Artist   string   `json:"artist"`
	VideoURL string   `json:"video_url,omitempty"`
	Source   string   `json:"source"`
	Uploader string   `json:"uploader"`
	Duration *float64 `json:"duration,omitempty"`
}

// QueueItem wraps an entry with a queue-local id so the same song can be queued twice
type QueueItem struct {
	ID    string `json:"id"`
	Entry Entry  `json:"entry"`
}

// Stamp orders snapshots authored by the playback owner
type Stamp struct {
	Version   int64
	Timestamp float64
}

// Newer reports whether s supersedes other: higher version, or equal version
// with a later timestamp.
func (s Stamp) Newer(other Stamp) bool {
	if s.Version != other.Version {
		return s.Version > other.Version
	}
	return s.Timestamp > other.Timestamp
}

// Queue is the ordered list of songs waiting to be sung
type Queue struct {
	Items     []QueueItem `json:"items"`
	Version   int64       `json:"version"`
	Timestamp float64     `json:"timestamp"`
}

// Stamp returns the ordering key of the queue
func (q Queue) Stamp() Stamp {
	return Stamp{Version: q.Version, Timestamp: q.Timestamp}
}

// PlayerState is the display's authoritative playback snapshot
type PlayerState struct {
	Entry       *Entry    `json:"entry"`
	PlayState   PlayState `json:"play_state"`
	CurrentTime float64   `json:"current_time"`
	Duration    float64   `json:"duration"`
	Volume      float64   `json:"volume"`
	Version     int64     `json:"version"`
	Timestamp   float64   `json:"timestamp"`
}

// Stamp returns the ordering key of the player state
func (p PlayerState) Stamp() Stamp {
	return Stamp{Version: p.Version, Timestamp: p.Timestamp}
}

// EntryID returns the id of the current entry, or "" when nothing is loaded
func (p *PlayerState) EntryID() string {
	if p == nil || p.Entry == nil {
		return ""
	}
	return p.Entry.ID
}

// JoinRoomPayload is sent with join_room
type JoinRoomPayload struct {
	RoomID    string `json:"room_id"`
	RequestID string `json:"request_id"`
}

// EntryIDPayload carries the queue item targeted by remove_song / queue_next_song
type EntryIDPayload struct {
	EntryID string `json:"entry_id"`
}

// VolumePayload is the set_volume payload
type VolumePayload struct {
	Volume float64 `json:"volume"`
}

// LeaderStatusPayload is pushed by the relay whenever leadership changes
type LeaderStatusPayload struct {
	IsLeader bool `json:"is_leader"`
}

// PingPayload is used for both ping and pong
type PingPayload struct {
	Timestamp float64 `json:"timestamp"`
}

// AckPayload correlates a response with a request id
type AckPayload struct {
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// ErrorPayload is the structured form of an error frame
type ErrorPayload struct {
	ErrorType string `json:"error_type,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// DecodeError accepts both the structured error payload and a bare string
func DecodeError(f Frame) ErrorPayload {
	var msg string
	if err := json.Unmarshal(f.Payload, &msg); err == nil {
		return ErrorPayload{Message: msg}
	}

	var structured ErrorPayload
	if err := json.Unmarshal(f.Payload, &structured); err == nil && structured.Message != "" {
		return structured
	}
	return ErrorPayload{Message: string(f.Payload)}
}

// DecodeVolume accepts set_volume payloads sent either as a number or as {"volume": n}
func DecodeVolume(f Frame) (float64, error) {
	var v float64
	if err := json.Unmarshal(f.Payload, &v); err == nil {
		return v, nil
	}

	var p VolumePayload
	if err := f.Decode(&p); err != nil {
		return 0, err
	}
	return p.Volume, nil
}

var (
	// ErrPasswordRequired means the room is private and no password was given
	ErrPasswordRequired = errors.New("password required")
	// ErrInvalidPassword means the given password was rejected
	ErrInvalidPassword = errors.New("invalid password")
)

// ClassifyRoomError maps a relay or registry error message onto the password
// sentinels. Any other message is returned as a plain error.
func ClassifyRoomError(message string) error {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "password required":
		return ErrPasswordRequired
	case "invalid password":
		return ErrInvalidPassword
	}
	return errors.New(message)
}
