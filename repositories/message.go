//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"room-relay/domain"
	"room-relay/domain/event"
	"room-relay/observability"
)

const messagePrefix = "msg:"

// MessageRepository persists room messages in BadgerDB.
// The key is formatted as "msg:{room}:{timestamp_padded}:{seq_padded}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Break ties with a process-wide sequence counter if two messages
//     arrive at the same nanosecond, so query order matches append order.
//
// The room segment is query-escaped so a room name containing ':' cannot
// corrupt prefix scans.
type MessageRepository struct {
	db        *badger.DB
	log       *slog.Logger
	retention time.Duration
	outbound  chan<- event.Command
	metrics   *observability.RelayMetrics
	seq       atomic.Uint64
	clock     func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, retention time.Duration,
	outbound chan<- event.Command, metrics *observability.RelayMetrics) *MessageRepository {
	return &MessageRepository{
		db:        db,
		log:       log,
		retention: retention,
		outbound:  outbound,
		metrics:   metrics,
		clock:     time.Now,
	}
}

// Append assigns id, timestamp and sequence, persists the record and
// returns it. It then runs an inline retention sweep so low-traffic
// rooms cannot grow unbounded between timer ticks; when the sweep purged
// rows, a "cleanup" notice is queued for the triggering room.
// Storage errors propagate to the caller, including sweep errors raised
// after the record itself was persisted.
func (r *MessageRepository) Append(msg domain.Message) (domain.Message, error) {
	msg.ID = uuid.New()
	msg.At = r.clock().UTC()
	msg.Seq = r.seq.Add(1)

	bytes, err := cbor.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encoding message: %w", err)
	}
	key := messageKey(msg.Room, msg.At, msg.Seq)
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, bytes)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("storing message: %w", err)
	}

	purged, err := r.Sweep()
	if err != nil {
		return domain.Message{}, fmt.Errorf("inline sweep: %w", err)
	}
	if purged > 0 {
		r.notifyCleanup(msg.Room, purged)
	}
	return msg, nil
}

// Query retrieves a room's messages using a forward prefix scan.
// Thanks to the padded timestamp in the key, messages come back oldest
// first without sorting. When since is non-nil only messages with a
// strictly greater timestamp are returned.
func (r *MessageRepository) Query(room domain.RoomID, since *time.Time) ([]domain.Message, error) {
	var values [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := roomPrefix(room)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				values = append(values, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying room %q: %w", room, err)
	}

	var messages []domain.Message
	for _, b := range values {
		var msg domain.Message
		if err = cbor.Unmarshal(b, &msg); err != nil {
			return nil, fmt.Errorf("decoding message: %w", err)
		}
		if since != nil && !msg.At.After(*since) {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear deletes every message of a room. Clearing a room that has no
// messages is a no-op.
func (r *MessageRepository) Clear(room domain.RoomID) error {
	keys, err := r.collectKeys(roomPrefix(room), nil)
	if err != nil {
		return fmt.Errorf("clearing room %q: %w", room, err)
	}
	if err := r.deleteKeys(keys); err != nil {
		return fmt.Errorf("clearing room %q: %w", room, err)
	}
	return nil
}

// Sweep deletes all messages older than the retention window across all
// rooms and returns the number deleted. The cutoff uses wall-clock time
// at sweep time; expiry is decided from the key alone, so values are
// never fetched.
func (r *MessageRepository) Sweep() (int, error) {
	cutoff := r.clock().UTC().Add(-r.retention).UnixNano()
	keys, err := r.collectKeys([]byte(messagePrefix), func(key []byte) bool {
		ts, err := timestampFromKey(key)
		if err != nil {
			r.log.Warn("Skipping unparseable message key", "key", string(key), "error", err)
			return false
		}
		return ts < cutoff
	})
	if err != nil {
		return 0, fmt.Errorf("sweeping messages: %w", err)
	}
	if err := r.deleteKeys(keys); err != nil {
		return 0, fmt.Errorf("sweeping messages: %w", err)
	}
	r.metrics.MessagesPurged.Add(uint64(len(keys)))
	return len(keys), nil
}

// collectKeys walks a prefix without prefetching values and returns the
// keys accepted by the filter (all of them when filter is nil).
func (r *MessageRepository) collectKeys(prefix []byte, filter func(key []byte) bool) ([][]byte, error) {
	var keys [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if filter == nil || filter(key) {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *MessageRepository) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := r.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (r *MessageRepository) notifyCleanup(room domain.RoomID, purged int) {
	notice := event.Broadcast{
		Room: room,
		Event: event.Cleanup{
			Message: fmt.Sprintf("%d old messages (%dh+) were removed.", purged, int(r.retention.Hours())),
		},
	}
	select {
	case r.outbound <- notice:
	default:
		r.metrics.CommandsDropped.Add(1)
		r.log.Warn("Outbound queue full, dropping cleanup notice", "room", room)
	}
}

func messageKey(room domain.RoomID, at time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%012d",
		messagePrefix,
		url.QueryEscape(string(room)),
		at.UnixNano(),
		seq,
	))
}

func roomPrefix(room domain.RoomID) []byte {
	return []byte(messagePrefix + url.QueryEscape(string(room)) + ":")
}

func timestampFromKey(key []byte) (int64, error) {
	parts := strings.SplitN(string(key), ":", 4)
	if len(parts) != 4 {
		return 0, fmt.Errorf("unexpected key layout %q", string(key))
	}
	return strconv.ParseInt(parts[2], 10, 64)
}
