package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"room-relay/domain"
	"room-relay/domain/event"
)

// recordingGateway captures the calls the worker makes, in order.
type recordingGateway struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (g *recordingGateway) record(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	if g.fail {
		return fmt.Errorf("gateway down")
	}
	return nil
}

func (g *recordingGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *recordingGateway) Broadcast(_ context.Context, room domain.RoomID, e event.Outbound) error {
	return g.record(fmt.Sprintf("broadcast %s %s", room, e.EventName()))
}

func (g *recordingGateway) Unicast(_ context.Context, connectionID string, e event.Outbound) error {
	return g.record(fmt.Sprintf("unicast %s %s", connectionID, e.EventName()))
}

func (g *recordingGateway) RemoveFromRoom(_ context.Context, connectionID string, room domain.RoomID) error {
	return g.record(fmt.Sprintf("evict %s %s", connectionID, room))
}

func (g *recordingGateway) CloseRoom(_ context.Context, room domain.RoomID) error {
	return g.record(fmt.Sprintf("close %s", room))
}

func TestOutbound_Dispatches_In_Queue_Order(t *testing.T) {
	req := require.New(t)
	gateway := &recordingGateway{}
	commands := make(chan event.Command, 8)
	worker := NewOutboundWorker(slog.Default(), gateway, commands)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	commands <- event.Broadcast{Room: "r1", Event: event.MessagePosted{Sender: "alice", Text: "hi"}}
	commands <- event.Unicast{ConnectionID: "C1", Event: event.LeftRoom{Room: "r1"}}
	commands <- event.Evict{ConnectionID: "C0", Room: "r1"}
	commands <- event.CloseRoom{Room: "r1"}

	req.Eventually(func() bool {
		return len(gateway.Calls()) == 4
	}, time.Second, 10*time.Millisecond)

	req.Equal([]string{
		"broadcast r1 message",
		"unicast C1 left_room",
		"evict C0 r1",
		"close r1",
	}, gateway.Calls())
}

func TestOutbound_Gateway_Failure_Does_Not_Stop_The_Worker(t *testing.T) {
	req := require.New(t)
	gateway := &recordingGateway{fail: true}
	commands := make(chan event.Command, 8)
	worker := NewOutboundWorker(slog.Default(), gateway, commands)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	commands <- event.Broadcast{Room: "r1", Event: event.Cleanup{Message: "x"}}
	commands <- event.Broadcast{Room: "r1", Event: event.Cleanup{Message: "y"}}

	req.Eventually(func() bool {
		return len(gateway.Calls()) == 2
	}, time.Second, 10*time.Millisecond)
}
