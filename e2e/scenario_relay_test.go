package e2e

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type testRelaySuite struct {
	BaseWsSuite
}

func TestRelayScenarioSuite(t *testing.T) {
	suite.Run(t, &testRelaySuite{})
}

type joinPayload struct {
	Room   string `json:"room"`
	Sender string `json:"sender"`
	LastTs string `json:"lastTs,omitempty"`
}

type messagePayload struct {
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type receivedMessage struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	Ts     time.Time `json:"ts"`
}

type ackPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *testRelaySuite) TestFullRelayFlow() {
	t := s.T()
	room := "e2e-" + uuid.NewString()

	alice := s.WsConn(t, "Alice connects")
	defer alice.Close()
	bob := s.WsConn(t, "Bob connects")
	defer bob.Close()
	carol := s.WsConn(t, "Carol connects")
	defer carol.Close()

	var firstTs time.Time

	s.Run("Step 1: Alice joins an empty room", func() {
		s.Send(t, alice, "join", joinPayload{Room: room, Sender: "alice"})

		var ack ackPayload
		s.Require().NoError(json.Unmarshal(s.Recv(t, alice, "ack"), &ack))
		s.Require().True(ack.Success)

		// Presence first, then the system notice about the arrival.
		s.Recv(t, alice, "users_update")
		var notice receivedMessage
		s.Require().NoError(json.Unmarshal(s.Recv(t, alice, "message"), &notice))
		s.Require().Equal("System", notice.Sender)
		s.Require().Equal("alice joined!", notice.Text)
	})

	s.Run("Step 2: Bob joins and both sides see the presence change", func() {
		s.Send(t, bob, "join", joinPayload{Room: room, Sender: "bob"})

		var ack ackPayload
		s.Require().NoError(json.Unmarshal(s.Recv(t, bob, "ack"), &ack))
		s.Require().True(ack.Success)

		s.Recv(t, bob, "users_update")
		s.Recv(t, bob, "message") // own joined notice

		s.Recv(t, alice, "users_update")
		var notice receivedMessage
		s.Require().NoError(json.Unmarshal(s.Recv(t, alice, "message"), &notice))
		s.Require().Equal("bob joined!", notice.Text)
	})

	s.Run("Step 3: Messages reach every member including the sender", func() {
		s.Send(t, alice, "message", messagePayload{Room: room, Sender: "alice", Text: "first"})

		var got receivedMessage
		s.Require().NoError(json.Unmarshal(s.Recv(t, bob, "message"), &got))
		s.Require().Equal("alice", got.Sender)
		s.Require().Equal("first", got.Text)
		firstTs = got.Ts

		s.Require().NoError(json.Unmarshal(s.Recv(t, alice, "message"), &got))
		s.Require().Equal("first", got.Text)
	})

	s.Run("Step 4: Joining with a cursor backfills only newer messages", func() {
		// Ensure a later wall-clock timestamp than the first message.
		time.Sleep(2 * time.Second)
		s.Send(t, alice, "message", messagePayload{Room: room, Sender: "alice", Text: "second"})
		s.Recv(t, alice, "message")
		s.Recv(t, bob, "message")

		s.Send(t, carol, "join", joinPayload{
			Room:   room,
			Sender: "carol",
			LastTs: firstTs.Format(time.RFC3339Nano),
		})
		s.Recv(t, carol, "ack")
		s.Recv(t, carol, "users_update")

		// Backfill unicast arrives before Carol's own joined notice.
		var got receivedMessage
		s.Require().NoError(json.Unmarshal(s.Recv(t, carol, "message"), &got))
		s.Require().Equal("second", got.Text, "backfill must start strictly after the cursor")
		s.Recv(t, carol, "message") // "carol joined!"

		// Drain Carol's arrival on the other members.
		s.Recv(t, alice, "users_update")
		s.Recv(t, alice, "message")
		s.Recv(t, bob, "users_update")
		s.Recv(t, bob, "message")
	})

	s.Run("Step 5: Leaving announces the departure", func() {
		s.Send(t, bob, "leave", joinPayload{Room: room, Sender: "bob"})
		s.Recv(t, bob, "left_room")

		s.Recv(t, alice, "users_update")
		var notice receivedMessage
		s.Require().NoError(json.Unmarshal(s.Recv(t, alice, "message"), &notice))
		s.Require().Equal("bob left!", notice.Text)
	})

	s.Run("Step 6: An immediate duplicate is suppressed", func() {
		s.Send(t, alice, "message", messagePayload{Room: room, Sender: "alice", Text: "dup-check"})
		s.Recv(t, alice, "message")

		// Same text within the suppression window: nothing comes back.
		// Must stay the last read on this connection, a read deadline
		// expiry poisons the websocket for further reads.
		s.Send(t, alice, "message", messagePayload{Room: room, Sender: "alice", Text: "dup-check"})
		s.RecvNothing(t, alice, time.Second)
	})
}

func (s *testRelaySuite) TestSingleSessionPerUser() {
	t := s.T()
	room := "e2e-" + uuid.NewString()

	first := s.WsConn(t, "First device")
	defer first.Close()
	s.Send(t, first, "join", joinPayload{Room: room, Sender: "dana"})
	s.Recv(t, first, "ack")
	s.Recv(t, first, "users_update")
	s.Recv(t, first, "message")

	second := s.WsConn(t, "Second device, same user")
	defer second.Close()
	s.Send(t, second, "join", joinPayload{Room: room, Sender: "dana"})

	var ack ackPayload
	s.Require().NoError(json.Unmarshal(s.Recv(t, second, "ack"), &ack))
	s.Require().True(ack.Success)
	s.Recv(t, second, "users_update")

	// The replaced device is dropped from the room, not re-announced:
	// no fresh "joined!" notice and nothing more for the first device.
	s.RecvNothing(t, first, time.Second)
	s.RecvNothing(t, second, time.Second)
}
