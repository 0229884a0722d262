package workers

import (
	"context"
	"fmt"
	"log/slog"

	"room-relay/contract"
	"room-relay/domain/event"
)

// OutboundWorker drains the command queue into the realtime gateway.
//
// It provides best-effort delivery with no retries, ordering guarantees
// beyond the queue itself, or durability. OutboundWorker is not a
// message broker: state is already committed by the time a command is
// queued, so a gateway failure is logged and skipped.
type OutboundWorker struct {
	log      *slog.Logger
	gateway  contract.Gateway
	commands <-chan event.Command
}

func NewOutboundWorker(log *slog.Logger, gateway contract.Gateway, commands <-chan event.Command) *OutboundWorker {
	return &OutboundWorker{log: log, gateway: gateway, commands: commands}
}

func (w *OutboundWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping outbound dispatch")
			return nil
		case cmd := <-w.commands:
			w.dispatch(ctx, cmd)
		}
	}
}

func (w *OutboundWorker) dispatch(ctx context.Context, cmd event.Command) {
	var err error
	switch c := cmd.(type) {
	case event.Broadcast:
		err = w.gateway.Broadcast(ctx, c.Room, c.Event)
	case event.Unicast:
		err = w.gateway.Unicast(ctx, c.ConnectionID, c.Event)
	case event.Evict:
		err = w.gateway.RemoveFromRoom(ctx, c.ConnectionID, c.Room)
	case event.CloseRoom:
		err = w.gateway.CloseRoom(ctx, c.Room)
	default:
		w.log.Warn(fmt.Sprintf("Unknown outbound command %T", cmd))
	}
	if err != nil {
		w.log.Debug("Gateway delivery failed", "command", fmt.Sprintf("%T", cmd), "error", err)
	}
}
