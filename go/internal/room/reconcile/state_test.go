package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

func joinedState(role protocol.Role) State {
	s := NewState(role)
	for _, ev := range []Event{Opened{}, HandshakeDone{}, JoinAccepted{RoomID: "demo-room"}} {
		s = Reduce(s, ev)
	}
	return s
}

func TestReduce_ConnectionLifecycle(t *testing.T) {
	s := NewState(protocol.RoleController)
	assert.False(t, s.Ready())

	s = Reduce(s, Opened{})
	assert.True(t, s.Connected)
	assert.False(t, s.Handshaken)

	s = Reduce(s, HandshakeDone{})
	assert.True(t, s.Handshaken)
	assert.False(t, s.Ready())

	s = Reduce(s, JoinAccepted{RoomID: "demo-room"})
	assert.True(t, s.Ready())
	assert.Equal(t, "demo-room", s.RoomID)

	s = Reduce(s, LeaderChanged{IsLeader: true})
	s = Reduce(s, QueueReceived{Queue: *queueAt(1, 1, "A")})
	s = Reduce(s, Closed{})

	assert.False(t, s.Connected)
	assert.False(t, s.Handshaken)
	assert.False(t, s.Joined)
	assert.False(t, s.IsLeader)
	assert.Nil(t, s.Queue)
	assert.Equal(t, "demo-room", s.RoomID)
}

func TestReduce_OpenedResetsLeaderForControllerOnly(t *testing.T) {
	controller := Reduce(joinedState(protocol.RoleController), LeaderChanged{IsLeader: true})
	controller = Reduce(controller, Opened{})
	assert.False(t, controller.IsLeader)

	display := Reduce(joinedState(protocol.RoleDisplay), LeaderChanged{IsLeader: true})
	display = Reduce(display, Opened{})
	assert.True(t, display.IsLeader)
}

func TestReduce_JoinRejected(t *testing.T) {
	s := Reduce(Reduce(NewState(protocol.RoleController), Opened{}), HandshakeDone{})
	s = Reduce(s, JoinRejected{Reason: "Invalid password"})

	assert.False(t, s.Joined)
	assert.True(t, s.Connected)
	assert.Equal(t, "Invalid password", s.LastError)
}

func TestReduce_JoinStarted(t *testing.T) {
	joined := Reduce(Reduce(Reduce(NewState(protocol.RoleController), Opened{}), HandshakeDone{}), JoinAccepted{RoomID: "room-a"})
	joined = Reduce(joined, LeaderChanged{IsLeader: true})
	joined = Reduce(joined, QueueReceived{Queue: protocol.Queue{Version: 3}})

	same := Reduce(joined, JoinStarted{RoomID: "room-a"})
	assert.True(t, same.Ready())
	assert.NotNil(t, same.Queue)

	switched := Reduce(joined, JoinStarted{RoomID: "room-b"})
	assert.False(t, switched.Ready())
	assert.False(t, switched.IsLeader)
	assert.Nil(t, switched.Queue)
	assert.Equal(t, "room-a", switched.RoomID)

	// nothing to leave before the first join
	fresh := Reduce(Reduce(NewState(protocol.RoleDisplay), Opened{}), QueueReceived{Queue: protocol.Queue{Version: 1}})
	assert.NotNil(t, Reduce(fresh, JoinStarted{RoomID: "room-a"}).Queue)
}

func TestReduce_StaleQueueIsDiscarded(t *testing.T) {
	s := joinedState(protocol.RoleController)

	first := *queueAt(1, 1000, "A")
	s = Reduce(s, QueueReceived{Queue: first})

	stale := *queueAt(1, 900, "X", "Y")
	s = Reduce(s, QueueReceived{Queue: stale})

	require.NotNil(t, s.Queue)
	assert.Equal(t, int64(1), s.Queue.Version)
	assert.Equal(t, 1000.0, s.Queue.Timestamp)
	require.Len(t, s.Queue.Items, 1)
	assert.Equal(t, "A", s.Queue.Items[0].Entry.ID)
}

func TestReduce_PlayStateNudge(t *testing.T) {
	s := joinedState(protocol.RoleController)

	// no snapshot yet: nothing to patch
	s = Reduce(s, PlayStateNudged{PlayState: protocol.PlayStatePlaying})
	assert.Nil(t, s.PlayerState)

	original := protocol.PlayerState{PlayState: protocol.PlayStatePaused, Version: 3, Timestamp: 10, CurrentTime: 42}
	s = Reduce(s, PlayerStateReceived{PlayerState: original})
	before := s.PlayerState

	s = Reduce(s, PlayStateNudged{PlayState: protocol.PlayStatePlaying})
	require.NotNil(t, s.PlayerState)
	assert.Equal(t, protocol.PlayStatePlaying, s.PlayerState.PlayState)
	assert.Equal(t, int64(3), s.PlayerState.Version)
	assert.Equal(t, 42.0, s.PlayerState.CurrentTime)

	// the previously published snapshot is not mutated
	assert.Equal(t, protocol.PlayStatePaused, before.PlayState)
}

func TestState_UpNextAndOwnsTiming(t *testing.T) {
	s := joinedState(protocol.RoleController)
	s = Reduce(s, QueueReceived{Queue: *queueAt(2, 1, "A", "B", "C")})
	s = Reduce(s, PlayerStateReceived{PlayerState: protocol.PlayerState{Entry: &protocol.Entry{ID: "A"}, Version: 1}})

	upNext := s.UpNext()
	require.Len(t, upNext.Items, 2)
	assert.Equal(t, "B", upNext.Items[0].Entry.ID)

	assert.False(t, s.OwnsTiming())
	assert.True(t, Reduce(s, LeaderChanged{IsLeader: true}).OwnsTiming())
	assert.True(t, joinedState(protocol.RoleDisplay).OwnsTiming())
}
