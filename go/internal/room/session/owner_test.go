package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

func (h *harness) nextOwnerCommand() OwnerCommand {
	h.t.Helper()
	select {
	case cmd := <-h.s.Inbox():
		return cmd
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for owner command")
	}
	return OwnerCommand{}
}

func TestInbox_DisplayReceivesRelayedCommandsInOrder(t *testing.T) {
	h := newHarness(t, protocol.RoleDisplay)
	h.join("demo-room")

	h.deliver(protocol.CmdPlaySong, nil)
	h.deliver(protocol.CmdSetVolume, 0.4)
	h.deliver(protocol.CmdSetVolume, protocol.VolumePayload{Volume: 0.7})
	h.deliver(protocol.CmdSendCurrentQueue, nil)
	h.deliver(protocol.CmdRequestPlayerState, nil)

	assert.Equal(t, protocol.CmdPlaySong, h.nextOwnerCommand().Command)

	vol := h.nextOwnerCommand()
	assert.Equal(t, protocol.CmdSetVolume, vol.Command)
	assert.Equal(t, 0.4, vol.Volume)
	assert.Equal(t, h.clock.Now(), vol.ReceivedAt)

	assert.Equal(t, 0.7, h.nextOwnerCommand().Volume)
	assert.Equal(t, protocol.CmdSendCurrentQueue, h.nextOwnerCommand().Command)
	assert.Equal(t, protocol.CmdRequestPlayerState, h.nextOwnerCommand().Command)
}

func TestInbox_ControllerReceivesNothing(t *testing.T) {
	h := newHarness(t, protocol.RoleController)
	h.join("demo-room")

	h.deliver(protocol.CmdSetVolume, 0.4)
	h.deliver(protocol.CmdSendCurrentQueue, nil)
	h.barrier()

	assert.Empty(t, h.s.Inbox())
}

func TestPublishQueue_BumpsVersionAndSends(t *testing.T) {
	h := newHarness(t, protocol.RoleDisplay)
	h.join("demo-room")

	h.deliver(protocol.CmdQueueUpdate, queueSnapshot(3, 100, "A"))
	h.barrier()

	editor := EditQueue(h.s.State().Queue)
	itemID := editor.Enqueue(protocol.Entry{ID: "B", Title: "Song B"})

	published, err := h.s.PublishQueue(context.Background(), editor.Queue())
	require.NoError(t, err)
	assert.Equal(t, int64(4), published.Version)
	assert.Equal(t, float64(h.clock.Now().UnixMilli()), published.Timestamp)

	f := h.expectFrame(protocol.CmdQueueUpdate)
	var sent protocol.Queue
	require.NoError(t, f.Decode(&sent))
	assert.Equal(t, int64(4), sent.Version)
	require.Len(t, sent.Items, 2)
	assert.Equal(t, itemID, sent.Items[1].ID)

	local := h.s.State().Queue
	require.NotNil(t, local)
	assert.Equal(t, int64(4), local.Version)
}

func TestPublishPlayerState_BumpsPastReplica(t *testing.T) {
	h := newHarness(t, protocol.RoleDisplay)
	h.join("demo-room")

	h.deliver(protocol.CmdPlayerState, protocol.PlayerState{PlayState: protocol.PlayStatePaused, Version: 9})
	h.barrier()

	published, err := h.s.PublishPlayerState(context.Background(), protocol.PlayerState{
		Entry:       &protocol.Entry{ID: "A"},
		PlayState:   protocol.PlayStatePlaying,
		CurrentTime: 3,
		Volume:      0.5,
		Version:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), published.Version)

	f := h.expectFrame(protocol.CmdUpdatePlayerState)
	var sent protocol.PlayerState
	require.NoError(t, f.Decode(&sent))
	assert.Equal(t, int64(10), sent.Version)
	assert.Equal(t, protocol.PlayStatePlaying, h.s.State().PlayerState.PlayState)
}

func TestPublish_ControllerIsNotPlaybackOwner(t *testing.T) {
	h := newHarness(t, protocol.RoleController)

	_, err := h.s.PublishQueue(context.Background(), protocol.Queue{})
	assert.ErrorIs(t, err, ErrNotPlaybackOwner)

	_, err = h.s.PublishPlayerState(context.Background(), protocol.PlayerState{})
	assert.ErrorIs(t, err, ErrNotPlaybackOwner)
	h.assertNoFrame()
}

func TestQueueEditor(t *testing.T) {
	source := queueSnapshot(5, 50, "A", "B", "C")

	editor := EditQueue(&source)
	assert.True(t, editor.MoveToFront("item-C"))
	assert.True(t, editor.Remove("item-A"))
	assert.False(t, editor.Remove("item-missing"))
	assert.False(t, editor.MoveToFront("item-missing"))

	q := editor.Queue()
	require.Len(t, q.Items, 2)
	assert.Equal(t, "C", q.Items[0].Entry.ID)
	assert.Equal(t, "B", q.Items[1].Entry.ID)
	assert.Equal(t, int64(5), q.Version)

	next, ok := editor.PlayNext()
	require.True(t, ok)
	assert.Equal(t, "B", next.Entry.ID)

	_, ok = editor.PlayNext()
	assert.False(t, ok)
	_, ok = editor.PlayNext()
	assert.False(t, ok)

	editor.Enqueue(protocol.Entry{ID: "A"})
	editor.Enqueue(protocol.Entry{ID: "A"})
	q = editor.Queue()
	require.Len(t, q.Items, 2)
	assert.NotEqual(t, q.Items[0].ID, q.Items[1].ID)

	editor.Clear()
	assert.Empty(t, editor.Queue().Items)

	// the source queue is never modified
	require.Len(t, source.Items, 3)
	assert.Equal(t, "A", source.Items[0].Entry.ID)
}

func TestQueueEditor_FromNil(t *testing.T) {
	editor := EditQueue(nil)
	assert.NotNil(t, editor.Queue().Items)
	assert.Empty(t, editor.Queue().Items)
}
