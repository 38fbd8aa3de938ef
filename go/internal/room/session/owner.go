package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
	"github.com/mcdev12/singalong/go/internal/room/reconcile"
)

// OwnerCommand is a relayed command the playback owner has to execute
type OwnerCommand struct {
	Command    protocol.Command
	Volume     float64
	ReceivedAt time.Time
}

// Inbox delivers relayed playback commands to the display in arrival order.
// Controllers never receive anything on it.
func (s *Session) Inbox() <-chan OwnerCommand {
	return s.inbox
}

func (s *Session) deliverOwnerCommand(frame protocol.Frame) {
	if s.config.Role != protocol.RoleDisplay {
		return
	}

	cmd := OwnerCommand{Command: frame.Command, ReceivedAt: s.clock.Now()}
	if frame.Command == protocol.CmdSetVolume {
		volume, err := protocol.DecodeVolume(frame)
		if err != nil {
			log.Warn().Err(err).Msg("dropping set_volume with bad payload")
			return
		}
		cmd.Volume = volume
	}

	select {
	case s.inbox <- cmd:
	default:
		log.Warn().
			Str("command", string(cmd.Command)).
			Int("capacity", cap(s.inbox)).
			Msg("owner inbox full, dropping command")
	}
}

// PublishPlayerState authors a new player state snapshot. The version is
// bumped past both ps and the current replica and the timestamp is set to now.
func (s *Session) PublishPlayerState(ctx context.Context, ps protocol.PlayerState) (protocol.PlayerState, error) {
	if s.config.Role != protocol.RoleDisplay {
		return protocol.PlayerState{}, ErrNotPlaybackOwner
	}

	var published protocol.PlayerState
	err := s.call(ctx, func() {
		version := ps.Version
		if cur := s.current.PlayerState; cur != nil && cur.Version > version {
			version = cur.Version
		}
		ps.Version = version + 1
		ps.Timestamp = float64(s.clock.Now().UnixMilli())

		s.apply(reconcile.PlayerStateReceived{PlayerState: ps})
		published = ps

		frame, err := protocol.NewFrame(protocol.CmdUpdatePlayerState, ps)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode player state")
			return
		}
		s.transmit(frame, "")
	})
	return published, err
}

// PublishQueue authors a new queue snapshot, see PublishPlayerState
func (s *Session) PublishQueue(ctx context.Context, q protocol.Queue) (protocol.Queue, error) {
	if s.config.Role != protocol.RoleDisplay {
		return protocol.Queue{}, ErrNotPlaybackOwner
	}

	var published protocol.Queue
	err := s.call(ctx, func() {
		version := q.Version
		if cur := s.current.Queue; cur != nil && cur.Version > version {
			version = cur.Version
		}
		q.Version = version + 1
		q.Timestamp = float64(s.clock.Now().UnixMilli())
		if q.Items == nil {
			q.Items = []protocol.QueueItem{}
		}

		s.apply(reconcile.QueueReceived{Queue: q})
		published = q

		frame, err := protocol.NewFrame(protocol.CmdQueueUpdate, q)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode queue")
			return
		}
		s.transmit(frame, "")
	})
	return published, err
}

// QueueEditor applies queue edits on a private copy of a queue. The result
// keeps the original version; PublishQueue bumps it.
type QueueEditor struct {
	queue protocol.Queue
}

// EditQueue starts editing q. A nil queue starts empty.
func EditQueue(q *protocol.Queue) *QueueEditor {
	e := &QueueEditor{queue: protocol.Queue{Items: []protocol.QueueItem{}}}
	if q != nil {
		e.queue.Version = q.Version
		e.queue.Timestamp = q.Timestamp
		e.queue.Items = append(e.queue.Items, q.Items...)
	}
	return e
}

// Enqueue appends entry under a new queue item id and returns that id
func (e *QueueEditor) Enqueue(entry protocol.Entry) string {
	item := protocol.QueueItem{ID: uuid.NewString(), Entry: entry}
	e.queue.Items = append(e.queue.Items, item)
	return item.ID
}

// Remove deletes the first item with itemID
func (e *QueueEditor) Remove(itemID string) bool {
	i := e.indexOf(itemID)
	if i < 0 {
		return false
	}
	e.queue.Items = append(e.queue.Items[:i], e.queue.Items[i+1:]...)
	return true
}

// MoveToFront moves the item with itemID to the head of the queue
func (e *QueueEditor) MoveToFront(itemID string) bool {
	i := e.indexOf(itemID)
	if i < 0 {
		return false
	}
	item := e.queue.Items[i]
	copy(e.queue.Items[1:i+1], e.queue.Items[:i])
	e.queue.Items[0] = item
	return true
}

// PlayNext drops the head of the queue and returns the new head, if any
func (e *QueueEditor) PlayNext() (protocol.QueueItem, bool) {
	if len(e.queue.Items) == 0 {
		return protocol.QueueItem{}, false
	}
	e.queue.Items = e.queue.Items[1:]
	if len(e.queue.Items) == 0 {
		return protocol.QueueItem{}, false
	}
	return e.queue.Items[0], true
}

// Clear empties the queue
func (e *QueueEditor) Clear() {
	e.queue.Items = []protocol.QueueItem{}
}

// Queue returns the edited queue
func (e *QueueEditor) Queue() protocol.Queue {
	out := e.queue
	out.Items = append([]protocol.QueueItem{}, e.queue.Items...)
	return out
}

func (e *QueueEditor) indexOf(itemID string) int {
	for i, item := range e.queue.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}
