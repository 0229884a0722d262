// Package runtime coordinates sessions, rooms and message delivery.
// It orchestrates the system without containing transport or storage
// details. All in-memory state (presence, destroyed set, dedup cache)
// lives behind mutex-guarded types in this package; raw maps are never
// handed across component boundaries.
package runtime

import (
	"sort"
	"sync"

	"room-relay/domain"
)

// ConnectionRegistry maps room -> username -> active connection id and
// enforces a single live connection per user per room.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[string]string
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{rooms: make(map[domain.RoomID]map[string]string)}
}

// JoinResult reports what Join found for the (room, username) pair.
type JoinResult struct {
	// AlreadyPresent means the same connection was already registered;
	// nothing was mutated.
	AlreadyPresent bool
	// PreviousConnection is the evicted connection id when the user was
	// present from another device, empty on true first presence.
	PreviousConnection string
}

// Join registers connectionID for (room, username). A different
// previously registered connection is replaced and reported so the
// caller can instruct the gateway to evict it. Replacement is not a new
// presence: the user was already counted as present.
func (r *ConnectionRegistry) Join(room domain.RoomID, username, connectionID string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]string)
		r.rooms[room] = members
	}

	previous := members[username]
	if previous == connectionID && previous != "" {
		return JoinResult{AlreadyPresent: true}
	}
	members[username] = connectionID
	return JoinResult{PreviousConnection: previous}
}

// Leave removes the user's mapping if present and drops the room entry
// entirely once it becomes empty. Leaving a non-member is a no-op.
func (r *ConnectionRegistry) Leave(room domain.RoomID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, username)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// DisconnectAll scans every room and removes entries bound to
// connectionID, returning the affected memberships for notification.
// An entry is only removed if it still matches the given connection id,
// guarding against a stale disconnect racing a newer join under the
// same username.
func (r *ConnectionRegistry) DisconnectAll(connectionID string) []domain.Membership {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []domain.Membership
	for room, members := range r.rooms {
		for username, id := range members {
			if id != connectionID {
				continue
			}
			delete(members, username)
			affected = append(affected, domain.Membership{Room: room, Username: username})
		}
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	return affected
}

// DropRoom forgets every member of a room without notification.
// Used when a room is destroyed.
func (r *ConnectionRegistry) DropRoom(room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, room)
}

// ListPresent returns the usernames present in a room, sorted for
// stable presence broadcasts.
func (r *ConnectionRegistry) ListPresent(room domain.RoomID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	usernames := make([]string, 0, len(members))
	for username := range members {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)
	return usernames
}
