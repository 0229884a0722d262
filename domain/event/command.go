package event

import "room-relay/domain"

// Command is one unit of work for the gateway adapter. Commands are
// queued on a bounded channel and executed in order, fire and forget:
// a delivery failure never rolls back the state mutation that caused it.
type Command interface {
	isCommand()
}

// Broadcast delivers an event to every connection subscribed to Room.
// An empty Room targets every connection on the gateway.
type Broadcast struct {
	Room  domain.RoomID
	Event Outbound
}

// Unicast delivers an event to a single connection.
type Unicast struct {
	ConnectionID string
	Event        Outbound
}

// Evict removes one connection from a room's broadcast group.
type Evict struct {
	ConnectionID string
	Room         domain.RoomID
}

// CloseRoom removes every subscribed connection from a room's broadcast
// group, including ones never tracked as named members.
type CloseRoom struct {
	Room domain.RoomID
}

func (Broadcast) isCommand() {}
func (Unicast) isCommand()   {}
func (Evict) isCommand()     {}
func (CloseRoom) isCommand() {}
