package runtime

import (
	"fmt"
	"log/slog"
	"sync"

	"room-relay/contract"
	"room-relay/domain"
	"room-relay/domain/event"
	"room-relay/observability"
)

// RoomLifecycle tracks destroyed-room markers and orchestrates
// clear/destroy/resurrect, cascading into the message store and the
// connection registry. It also owns the per-room locks that keep a
// handler's destroyed-check-then-append span and a concurrent destroy
// from interleaving.
//
// Per-room state machine (destroyed dimension only):
// active -> Destroy -> destroyed -> Unmark (on join) -> active.
// Absence from the set means active.
type RoomLifecycle struct {
	mu        sync.Mutex
	destroyed map[domain.RoomID]struct{}
	locks     *roomLocks
	store     contract.MessageStore
	registry  *ConnectionRegistry
	queue     outboundQueue
	log       *slog.Logger
}

func NewRoomLifecycle(log *slog.Logger, store contract.MessageStore, registry *ConnectionRegistry,
	outbound chan<- event.Command, metrics *observability.RelayMetrics) *RoomLifecycle {
	return &RoomLifecycle{
		destroyed: make(map[domain.RoomID]struct{}),
		locks:     newRoomLocks(),
		store:     store,
		registry:  registry,
		queue:     outboundQueue{log: log, metrics: metrics, commands: outbound},
		log:       log,
	}
}

// lockRoom acquires the room's serialization lock. Handler methods hold
// it across their destroyed check and the store mutation it guards;
// Clear and Destroy take it themselves. IsDestroyed and Unmark stay
// callable under it.
func (l *RoomLifecycle) lockRoom(room domain.RoomID) func() {
	return l.locks.lock(room)
}

// Clear wipes a room's history without touching membership or the
// destroyed mark, then announces it to the room. Succeeds for rooms
// with no messages.
func (l *RoomLifecycle) Clear(room domain.RoomID) error {
	defer l.lockRoom(room)()

	if err := l.store.Clear(room); err != nil {
		return fmt.Errorf("clearing room %q: %w", room, err)
	}
	l.queue.enqueue(event.Broadcast{
		Room:  room,
		Event: event.HistoryCleared{Room: string(room), Message: "Room history cleared."},
	})
	l.log.Info("Room history cleared", "room", room)
	return nil
}

// Destroy wipes the room's history, marks it destroyed, drops all its
// tracked members and kicks every subscribed connection out of the
// broadcast group, covering partially-joined connections that were
// never tracked as named members. The room accepts no new messages
// until a subsequent join unmarks it.
func (l *RoomLifecycle) Destroy(room domain.RoomID) error {
	defer l.lockRoom(room)()

	if err := l.store.Clear(room); err != nil {
		return fmt.Errorf("destroying room %q: %w", room, err)
	}

	l.mu.Lock()
	l.destroyed[room] = struct{}{}
	l.mu.Unlock()

	l.registry.DropRoom(room)

	l.queue.enqueue(event.Broadcast{
		Room:  room,
		Event: event.HistoryCleared{Room: string(room), Message: "Room destroyed. All messages cleared."},
	})
	l.queue.enqueue(event.Broadcast{Room: room, Event: event.RoomDestroyed{Room: string(room)}})
	l.queue.enqueue(event.CloseRoom{Room: room})
	l.log.Info("Room destroyed", "room", room)
	return nil
}

func (l *RoomLifecycle) IsDestroyed(room domain.RoomID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.destroyed[room]
	return ok
}

// Unmark removes the destroyed flag. Invoked at the start of any join.
func (l *RoomLifecycle) Unmark(room domain.RoomID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.destroyed, room)
}
