package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"room-relay/domain"
	"room-relay/domain/event"
)

func TestLifecycle_Destroy_Marks_And_Join_Unmarks(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	req.False(f.lifecycle.IsDestroyed("r1"))
	req.NoError(f.lifecycle.Destroy("r1"))
	req.True(f.lifecycle.IsDestroyed("r1"))

	f.lifecycle.Unmark("r1")
	req.False(f.lifecycle.IsDestroyed("r1"))
}

func TestLifecycle_Clear_Keeps_Membership_And_Mark(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.registry.Join("r1", "alice", "C1")
	_, err := f.store.Append(domain.NewTextMessage("r1", "alice", "soon gone"))
	req.NoError(err)
	f.drain()

	req.NoError(f.lifecycle.Clear("r1"))

	messages, err := f.store.Query("r1", nil)
	req.NoError(err)
	req.Empty(messages)
	req.Equal([]string{"alice"}, f.registry.ListPresent("r1"))
	req.False(f.lifecycle.IsDestroyed("r1"))

	commands := f.drain()
	req.Len(commands, 1)
	cleared := commands[0].(event.Broadcast)
	req.Equal(domain.RoomID("r1"), cleared.Room)
	req.Equal("Room history cleared.", cleared.Event.(event.HistoryCleared).Message)
}

func TestLifecycle_Destroy_Cascades_And_Notifies_In_Order(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.registry.Join("r1", "alice", "C1")
	_, err := f.store.Append(domain.NewTextMessage("r1", "alice", "doomed"))
	req.NoError(err)
	f.drain()

	req.NoError(f.lifecycle.Destroy("r1"))

	messages, err := f.store.Query("r1", nil)
	req.NoError(err)
	req.Empty(messages)
	req.Empty(f.registry.ListPresent("r1"))

	commands := f.drain()
	req.Len(commands, 3)

	cleared := commands[0].(event.Broadcast)
	req.Equal("Room destroyed. All messages cleared.", cleared.Event.(event.HistoryCleared).Message)

	destroyed := commands[1].(event.Broadcast)
	req.Equal(event.RoomDestroyed{Room: "r1"}, destroyed.Event)

	req.Equal(event.CloseRoom{Room: "r1"}, commands[2])
}

func TestLifecycle_Destroy_Empty_Room_Succeeds(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	req.NoError(f.lifecycle.Destroy("never-seen"))
	req.True(f.lifecycle.IsDestroyed("never-seen"))
}
