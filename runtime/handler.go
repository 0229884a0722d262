package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"room-relay/contract"
	"room-relay/domain"
	"room-relay/domain/event"
	"room-relay/errors"
	"room-relay/observability"
)

// Handler is the single entry point for inbound gateway events.
// It consults and mutates the registry, dedup filter, lifecycle and
// store, then queues the resulting broadcasts and unicasts for the
// gateway. Handler methods mutate in-memory state through the
// mutex-guarded components only, so concurrent events never partially
// observe each other.
type Handler struct {
	log       *slog.Logger
	store     contract.MessageStore
	registry  *ConnectionRegistry
	dedup     *DedupFilter
	lifecycle *RoomLifecycle
	queue     outboundQueue
	metrics   *observability.RelayMetrics
	validate  *validator.Validate
	clock     func() time.Time
}

func NewHandler(log *slog.Logger, store contract.MessageStore, registry *ConnectionRegistry,
	dedup *DedupFilter, lifecycle *RoomLifecycle, outbound chan<- event.Command,
	metrics *observability.RelayMetrics) *Handler {
	return &Handler{
		log:       log,
		store:     store,
		registry:  registry,
		dedup:     dedup,
		lifecycle: lifecycle,
		queue:     outboundQueue{log: log, metrics: metrics, commands: outbound},
		metrics:   metrics,
		validate:  validator.New(),
		clock:     time.Now,
	}
}

type JoinRequest struct {
	Room   string `json:"room" validate:"required"`
	Sender string `json:"sender" validate:"required"`
	// LastTs is the timestamp of the last message the client already
	// has, RFC 3339. Empty means full backfill.
	LastTs       string `json:"lastTs"`
	ConnectionID string `json:"-" validate:"required"`
}

type JoinAck struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type MessageRequest struct {
	Room   string `json:"room" validate:"required"`
	Sender string `json:"sender" validate:"required"`
	Text   string `json:"text"`
}

type FileRequest struct {
	Room     string `json:"room" validate:"required"`
	Sender   string `json:"sender" validate:"required"`
	Filename string `json:"filename" validate:"required"`
	Mimetype string `json:"mimetype"`
	Data     []byte `json:"data" validate:"required"`
}

type LeaveRequest struct {
	Room         string `json:"room" validate:"required"`
	Sender       string `json:"sender" validate:"required"`
	ConnectionID string `json:"-" validate:"required"`
}

// Join binds the connection to (room, sender), resurrects a destroyed
// room, broadcasts the updated presence list and unicasts the missed
// history to the joining connection in stored order. A "joined" notice
// is only announced on true first presence, not on device replacement.
func (h *Handler) Join(ctx context.Context, req JoinRequest) (JoinAck, error) {
	if err := h.validate.Struct(req); err != nil {
		return JoinAck{}, fmt.Errorf("%w: %s", errors.ErrInvalidEvent, err)
	}
	var since *time.Time
	if req.LastTs != "" {
		ts, err := time.Parse(time.RFC3339Nano, req.LastTs)
		if err != nil {
			return JoinAck{}, fmt.Errorf("%w: %q", errors.ErrBadTimestamp, req.LastTs)
		}
		since = &ts
	}

	room := domain.RoomID(req.Room)
	// Held across unmark, registry insert and backfill so a concurrent
	// destroy cannot land between them.
	defer h.lifecycle.lockRoom(room)()
	h.lifecycle.Unmark(room)

	res := h.registry.Join(room, req.Sender, req.ConnectionID)
	if res.AlreadyPresent {
		return JoinAck{Success: true, Message: "Already in room"}, nil
	}
	if res.PreviousConnection != "" {
		h.queue.enqueue(event.Evict{ConnectionID: res.PreviousConnection, Room: room})
	}

	h.broadcastPresence(room)

	missed, err := h.store.Query(room, since)
	if err != nil {
		return JoinAck{}, err
	}
	for _, msg := range missed {
		h.queue.enqueue(event.Unicast{ConnectionID: req.ConnectionID, Event: event.FromMessage(msg)})
	}

	if res.PreviousConnection == "" {
		h.queue.enqueue(event.Broadcast{
			Room:  room,
			Event: event.SystemNotice(req.Sender+" joined!", h.clock().UTC()),
		})
	}
	return JoinAck{Success: true}, nil
}

// Message stores and broadcasts a text message. Empty text, immediate
// duplicates and messages to a destroyed room are dropped silently.
func (h *Handler) Message(ctx context.Context, req MessageRequest) error {
	if err := h.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrInvalidEvent, err)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil
	}

	room := domain.RoomID(req.Room)
	now := h.clock().UTC()
	// The dedup slot is refreshed even when the room turns out to be
	// destroyed below; suppression only ever looks at accepted text.
	if h.dedup.ShouldSuppress(room, req.Sender, text, now) {
		h.metrics.MessagesSuppressed.Add(1)
		return nil
	}

	// The destroyed check and the append must not interleave with a
	// concurrent destroy, or the stored message would survive the wipe.
	defer h.lifecycle.lockRoom(room)()
	if h.lifecycle.IsDestroyed(room) {
		h.metrics.MessagesDropped.Add(1)
		return nil
	}

	msg, err := h.store.Append(domain.NewTextMessage(room, req.Sender, text))
	if err != nil {
		return err
	}
	h.metrics.MessagesStored.Add(1)
	h.queue.enqueue(event.Broadcast{Room: room, Event: event.FromMessage(msg)})
	return nil
}

// File stores and broadcasts a file message. Files are not subject to
// the text dedup rule or the empty check; only the destroyed gate
// applies. A missing mimetype is sniffed from the payload.
func (h *Handler) File(ctx context.Context, req FileRequest) error {
	if err := h.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrInvalidEvent, err)
	}

	room := domain.RoomID(req.Room)
	defer h.lifecycle.lockRoom(room)()
	if h.lifecycle.IsDestroyed(room) {
		h.metrics.MessagesDropped.Add(1)
		return nil
	}
	if req.Mimetype == "" {
		req.Mimetype = mimetype.Detect(req.Data).String()
	}

	msg, err := h.store.Append(domain.NewFileMessage(room, req.Sender, req.Filename, req.Mimetype, req.Data))
	if err != nil {
		return err
	}
	h.metrics.FilesStored.Add(1)
	h.queue.enqueue(event.Broadcast{Room: room, Event: event.FromMessage(msg)})
	return nil
}

// Leave drops the user's presence, evicts the connection from the
// broadcast group, acknowledges to the leaver and announces the
// departure. The announcement goes out whether or not the user was
// actually present, matching the relay's fire-and-forget semantics.
func (h *Handler) Leave(ctx context.Context, req LeaveRequest) error {
	if err := h.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrInvalidEvent, err)
	}

	room := domain.RoomID(req.Room)
	h.registry.Leave(room, req.Sender)

	h.queue.enqueue(event.Evict{ConnectionID: req.ConnectionID, Room: room})
	h.broadcastPresence(room)
	h.queue.enqueue(event.Unicast{ConnectionID: req.ConnectionID, Event: event.LeftRoom{Room: req.Room}})
	h.queue.enqueue(event.Broadcast{
		Room:  room,
		Event: event.SystemNotice(req.Sender+" left!", h.clock().UTC()),
	})
	return nil
}

// Disconnect removes every presence still bound to the connection and
// notifies each affected room. Connections that joined nothing produce
// no traffic.
func (h *Handler) Disconnect(ctx context.Context, connectionID string) error {
	if connectionID == "" {
		return fmt.Errorf("%w: missing connection id", errors.ErrInvalidEvent)
	}
	for _, m := range h.registry.DisconnectAll(connectionID) {
		h.broadcastPresence(m.Room)
		h.queue.enqueue(event.Broadcast{
			Room:  m.Room,
			Event: event.SystemNotice(m.Username+" disconnected.", h.clock().UTC()),
		})
	}
	return nil
}

func (h *Handler) broadcastPresence(room domain.RoomID) {
	users := lo.Map(h.registry.ListPresent(room), func(name string, _ int) domain.UserStatus {
		return domain.UserStatus{Name: name, Status: "online"}
	})
	h.queue.enqueue(event.Broadcast{
		Room:  room,
		Event: event.UsersUpdate{Room: string(room), Users: users},
	})
}
