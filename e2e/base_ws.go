package e2e

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

// Frame mirrors the relay's wire format: every message in either
// direction is an envelope naming the event plus its payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type BaseWsSuite struct {
	suite.Suite
	Config Config
	// pending holds frames read while waiting for a different event, so
	// asynchronous delivery order between event kinds never loses one.
	pending map[*websocket.Conn][]Frame
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set, skipping e2e scenarios")
	}
}

func (s *BaseWsSuite) SetupTest() {
	s.pending = make(map[*websocket.Conn][]Frame)
}

// WsConn opens a websocket connection with a colorized header in logs
func (s *BaseWsSuite) WsConn(t *testing.T, name string) *websocket.Conn {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	url := fmt.Sprintf("ws://%s/ws", s.Config.RelayAddr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to connect to relay at "+url)
	return conn
}

// Send writes one framed event, logging the payload if E2E_DEBUG_JSON is enabled
func (s *BaseWsSuite) Send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	data, err := json.Marshal(payload)
	s.Require().NoError(err)
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	s.Require().NoError(err)

	if s.Config.DebugJSON {
		t.Logf("SEND %s:\n%s", event, string(frame))
	}
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, frame))
}

// Recv returns the next frame of the wanted kind, consuming a buffered
// one first. Interleaved frames of other kinds are buffered, the relay
// only guarantees ordering within an event kind, not across kinds.
func (s *BaseWsSuite) Recv(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	for i, frame := range s.pending[conn] {
		if frame.Event == event {
			s.pending[conn] = append(s.pending[conn][:i], s.pending[conn][i+1:]...)
			return frame.Data
		}
	}

	deadline := time.Now().Add(10 * time.Second)
	s.Require().NoError(conn.SetReadDeadline(deadline))

	for {
		_, raw, err := conn.ReadMessage()
		s.Require().NoError(err, "timed out waiting for %q", event)

		var frame Frame
		s.Require().NoError(json.Unmarshal(raw, &frame))
		if s.Config.DebugJSON {
			t.Logf("RECV %s:\n%s", frame.Event, string(raw))
		}
		if frame.Event == event {
			return frame.Data
		}
		t.Logf("buffering interleaved %q frame", frame.Event)
		s.pending[conn] = append(s.pending[conn], frame)
	}
}

// RecvNothing asserts that no frame is buffered or arrives within the
// given window.
func (s *BaseWsSuite) RecvNothing(t *testing.T, conn *websocket.Conn, window time.Duration) {
	s.Require().Empty(s.pending[conn], "unconsumed frames already buffered")
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(window)))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected silence, received: %s", string(raw))
	}
	s.Require().True(websocket.IsUnexpectedCloseError(err) || isTimeout(err),
		"unexpected read error: %v", err)
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}
