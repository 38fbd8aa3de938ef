package reconcile

import (
	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

// State is the client's view of the room session. Values are immutable once
// published: Reduce always returns a fresh copy and never patches snapshots
// in place.
type State struct {
	Role        protocol.Role         `json:"role"`
	RoomID      string                `json:"room_id,omitempty"`
	Connected   bool                  `json:"connected"`
	Handshaken  bool                  `json:"handshaken"`
	Joined      bool                  `json:"joined"`
	IsLeader    bool                  `json:"is_leader"`
	ClientCount int                   `json:"client_count"`
	Queue       *protocol.Queue       `json:"queue"`
	PlayerState *protocol.PlayerState `json:"player_state"`
	LastError   string                `json:"last_error,omitempty"`
}

// NewState returns the initial disconnected state for a role
func NewState(role protocol.Role) State {
	return State{Role: role}
}

// Ready reports whether commands can be transmitted immediately
func (s State) Ready() bool {
	return s.Connected && s.Handshaken && s.Joined
}

// OwnsTiming reports whether this client observes raw playback timing. The
// display drives the video element; a controller only when told it leads.
func (s State) OwnsTiming() bool {
	return s.Role == protocol.RoleDisplay || s.IsLeader
}

// UpNext returns the queue projection without the playing entry
func (s State) UpNext() protocol.Queue {
	return UpNext(s.Queue, s.PlayerState)
}

// Event is an input to Reduce
type Event interface {
	isEvent()
}

type (
	// Opened is emitted when a physical connection comes up
	Opened struct{}
	// Closed is emitted when the physical connection goes away
	Closed struct{}
	// HandshakeDone marks the relay as having accepted the handshake
	HandshakeDone struct{}
	// JoinStarted is emitted when join_room is sent for RoomID
	JoinStarted struct{ RoomID string }
	// JoinAccepted is emitted when join_room is acknowledged
	JoinAccepted struct{ RoomID string }
	// JoinRejected is emitted when join_room fails
	JoinRejected struct{ Reason string }
	// ClientCountChanged carries client_count
	ClientCountChanged struct{ Count int }
	// QueueReceived carries a queue_update snapshot
	QueueReceived struct{ Queue protocol.Queue }
	// PlayerStateReceived carries a player_state snapshot
	PlayerStateReceived struct{ PlayerState protocol.PlayerState }
	// PlayStateNudged carries play_song / pause_song
	PlayStateNudged struct{ PlayState protocol.PlayState }
	// LeaderChanged carries leader_status
	LeaderChanged struct{ IsLeader bool }
	// ErrorReceived carries an error frame
	ErrorReceived struct{ Message string }
)

func (Opened) isEvent()              {}
func (Closed) isEvent()              {}
func (HandshakeDone) isEvent()       {}
func (JoinStarted) isEvent()         {}
func (JoinAccepted) isEvent()        {}
func (JoinRejected) isEvent()        {}
func (ClientCountChanged) isEvent()  {}
func (QueueReceived) isEvent()       {}
func (PlayerStateReceived) isEvent() {}
func (PlayStateNudged) isEvent()     {}
func (LeaderChanged) isEvent()       {}
func (ErrorReceived) isEvent()       {}

// Reduce applies an event to the state and returns the new state
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case Opened:
		s.Connected = true
		s.Handshaken = false
		s.Joined = false
		if s.Role == protocol.RoleController {
			// the relay re-asserts leadership after the join
			s.IsLeader = false
		}
		s.LastError = ""

	case Closed:
		// replicas are dropped too: a restarted relay may restart versions
		// and the next join always requests a full snapshot
		s.Connected = false
		s.Handshaken = false
		s.Joined = false
		s.IsLeader = false
		s.ClientCount = 0
		s.Queue = nil
		s.PlayerState = nil

	case HandshakeDone:
		s.Handshaken = true

	case JoinStarted:
		// leaving a joined room: nothing may go out until the new join is
		// acked, and the old room's replicas and leadership do not carry over
		if s.Joined && e.RoomID != s.RoomID {
			s.Joined = false
			s.IsLeader = false
			s.ClientCount = 0
			s.Queue = nil
			s.PlayerState = nil
		}

	case JoinAccepted:
		s.Joined = true
		s.RoomID = e.RoomID
		s.LastError = ""

	case JoinRejected:
		s.Joined = false
		s.LastError = e.Reason

	case ClientCountChanged:
		s.ClientCount = e.Count

	case QueueReceived:
		incoming := e.Queue
		s.Queue, _ = Accept(s.Queue, &incoming)

	case PlayerStateReceived:
		incoming := e.PlayerState
		s.PlayerState, _ = Accept(s.PlayerState, &incoming)

	case PlayStateNudged:
		if s.PlayerState != nil {
			patched := *s.PlayerState
			patched.PlayState = e.PlayState
			s.PlayerState = &patched
		}

	case LeaderChanged:
		s.IsLeader = e.IsLeader

	case ErrorReceived:
		s.LastError = e.Message
	}

	return s
}
