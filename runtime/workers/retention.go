package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"room-relay/contract"
	"room-relay/domain/event"
)

// RetentionWorker runs the store's retention sweep on a fixed interval
// as a safety net for rooms that receive no appends. When the sweep
// purged messages, a cleanup notice is broadcast to every connection.
type RetentionWorker struct {
	log       *slog.Logger
	store     contract.MessageStore
	interval  time.Duration
	retention time.Duration
	outbound  chan<- event.Command
}

func NewRetentionWorker(log *slog.Logger, store contract.MessageStore,
	interval, retention time.Duration, outbound chan<- event.Command) *RetentionWorker {
	return &RetentionWorker{
		log:       log,
		store:     store,
		interval:  interval,
		retention: retention,
		outbound:  outbound,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info("Starting retention worker", "interval", w.interval, "retention", w.retention)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deleted, err := w.store.Sweep()
			if err != nil {
				w.log.Error("Retention sweep failed", "error", err)
				continue
			}
			if deleted == 0 {
				continue
			}
			w.log.Info("Retention sweep purged messages", "count", deleted)
			notice := event.Broadcast{
				Event: event.Cleanup{
					Message: fmt.Sprintf("%d old messages (%dh+) were removed.", deleted, int(w.retention.Hours())),
				},
			}
			select {
			case w.outbound <- notice:
			default:
				w.log.Warn("Outbound queue full, dropping cleanup notice")
			}
		}
	}
}
