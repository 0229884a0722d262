package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"room-relay/domain"
	"room-relay/domain/event"
)

type sweepOnlyStore struct {
	pending atomic.Int64
	sweeps  atomic.Int64
}

func (s *sweepOnlyStore) Append(msg domain.Message) (domain.Message, error) { return msg, nil }

func (s *sweepOnlyStore) Query(domain.RoomID, *time.Time) ([]domain.Message, error) {
	return nil, nil
}

func (s *sweepOnlyStore) Clear(domain.RoomID) error { return nil }

func (s *sweepOnlyStore) Sweep() (int, error) {
	s.sweeps.Add(1)
	return int(s.pending.Swap(0)), nil
}

func TestRetention_Broadcasts_Cleanup_After_Purge(t *testing.T) {
	req := require.New(t)
	store := &sweepOnlyStore{}
	store.pending.Store(3)
	outbound := make(chan event.Command, 8)
	worker := NewRetentionWorker(slog.Default(), store, 10*time.Millisecond, 48*time.Hour, outbound)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	select {
	case cmd := <-outbound:
		notice := cmd.(event.Broadcast)
		// Global broadcast: no room target
		req.Empty(notice.Room)
		req.Equal("3 old messages (48h+) were removed.", notice.Event.(event.Cleanup).Message)
	case <-time.After(time.Second):
		req.Fail("expected a cleanup broadcast")
	}
}

func TestRetention_Quiet_Sweep_Stays_Silent(t *testing.T) {
	req := require.New(t)
	store := &sweepOnlyStore{}
	outbound := make(chan event.Command, 8)
	worker := NewRetentionWorker(slog.Default(), store, 10*time.Millisecond, 48*time.Hour, outbound)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	req.Eventually(func() bool {
		return store.sweeps.Load() >= 3
	}, time.Second, 10*time.Millisecond)
	req.Empty(outbound)
}
