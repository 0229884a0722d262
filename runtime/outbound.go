package runtime

import (
	"fmt"
	"log/slog"

	"room-relay/domain/event"
	"room-relay/observability"
)

// outboundQueue wraps the bounded command channel feeding the gateway
// adapter. Enqueueing never blocks the handler: when the queue is full
// the command is dropped and counted, since delivery is fire and forget
// and must not stall state mutations.
type outboundQueue struct {
	log      *slog.Logger
	metrics  *observability.RelayMetrics
	commands chan<- event.Command
}

func (q outboundQueue) enqueue(cmd event.Command) {
	select {
	case q.commands <- cmd:
	default:
		q.metrics.CommandsDropped.Add(1)
		q.log.Warn(fmt.Sprintf("Outbound queue full, dropping %T", cmd))
	}
}
