package runtime

import (
	"sync"

	"room-relay/domain"
)

// roomLocks serializes the mutating operations of a single room.
// A destroyed check and the append it guards must not interleave with a
// concurrent destroy, so every room-mutating path runs under its
// room's lock. Locks are never discarded; one mutex per referenced
// room is cheap.
type roomLocks struct {
	mu    sync.Mutex
	locks map[domain.RoomID]*sync.Mutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[domain.RoomID]*sync.Mutex)}
}

// lock acquires the room's lock and returns its release function.
func (r *roomLocks) lock(room domain.RoomID) func() {
	r.mu.Lock()
	l, ok := r.locks[room]
	if !ok {
		l = &sync.Mutex{}
		r.locks[room] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
