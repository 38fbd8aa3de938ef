package reconcile

import "github.com/mcdev12/singalong/go/internal/room/protocol"

// Stamped is implemented by every snapshot the playback owner authors
type Stamped interface {
	Stamp() protocol.Stamp
}

// Accept returns the snapshot to keep and whether incoming replaced current.
// Ordering is by version, then timestamp. This is not causal tracking: two
// producers bumping the same version concurrently are resolved by timestamp
// alone and one of the updates is dropped.
func Accept[T Stamped](current, incoming *T) (*T, bool) {
	if incoming == nil {
		return current, false
	}
	if current == nil {
		return incoming, true
	}
	if (*incoming).Stamp().Newer((*current).Stamp()) {
		return incoming, true
	}
	return current, false
}

// UpNext returns the queue without the item that is currently playing. At
// most one item is excluded; the version and timestamp of the queue are kept.
func UpNext(queue *protocol.Queue, player *protocol.PlayerState) protocol.Queue {
	if queue == nil {
		return protocol.Queue{Items: []protocol.QueueItem{}}
	}

	playing := player.EntryID()
	items := make([]protocol.QueueItem, 0, len(queue.Items))
	excluded := false
	for _, item := range queue.Items {
		if !excluded && playing != "" && item.Entry.ID == playing {
			excluded = true
			continue
		}
		items = append(items, item)
	}

	return protocol.Queue{
		Items:     items,
		Version:   queue.Version,
		Timestamp: queue.Timestamp,
	}
}
