//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"room-relay/domain"
	"room-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Gateway is the realtime transport the relay drives. Implementations
// must tolerate unknown rooms and connections: every method is best
// effort and returns an error for logging only, never for rollback.
type Gateway interface {
	Broadcast(ctx context.Context, room domain.RoomID, e event.Outbound) error
	Unicast(ctx context.Context, connectionID string, e event.Outbound) error
	RemoveFromRoom(ctx context.Context, connectionID string, room domain.RoomID) error
	CloseRoom(ctx context.Context, room domain.RoomID) error
}

// MessageStore is the durable append-only per-room message log.
type MessageStore interface {
	// Append assigns the timestamp and sequence, persists the record
	// and returns it. It runs an inline retention sweep as a side effect.
	Append(msg domain.Message) (domain.Message, error)
	// Query returns the room's messages with timestamp strictly greater
	// than since (all of them when since is nil), oldest first.
	Query(room domain.RoomID, since *time.Time) ([]domain.Message, error)
	// Clear deletes all messages of a room. Idempotent.
	Clear(room domain.RoomID) error
	// Sweep deletes messages older than the retention window across all
	// rooms and returns the number deleted.
	Sweep() (int, error)
}
