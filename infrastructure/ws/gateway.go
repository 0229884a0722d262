// Package ws implements the realtime gateway over fiber websockets.
// Wire format: one JSON object per frame, {"event": <name>, "data": <payload>}.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"room-relay/domain"
	"room-relay/domain/event"
	"room-relay/runtime"
)

// Frame is the wire envelope for both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Gateway owns the live connections and their room broadcast groups.
// The groups are transport-level state, distinct from the named
// presence the ConnectionRegistry tracks: a connection can sit in a
// group while never completing a named join.
type Gateway struct {
	log        *slog.Logger
	handler    *runtime.Handler
	sendBuffer int

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[domain.RoomID]map[string]struct{}
}

func NewGateway(log *slog.Logger, handler *runtime.Handler, sendBuffer int) *Gateway {
	return &Gateway{
		log:        log,
		handler:    handler,
		sendBuffer: sendBuffer,
		clients:    make(map[string]*client),
		rooms:      make(map[domain.RoomID]map[string]struct{}),
	}
}

// Register mounts the websocket endpoint on the fiber app.
func (g *Gateway) Register(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(g.Handle))
}

// Handle runs one connection's read loop. Connection liveness is this
// layer's responsibility; the core only ever sees the final disconnect.
func (g *Gateway) Handle(conn *websocket.Conn) {
	cl := newClient(uuid.NewString(), conn, g.sendBuffer, g.log)
	g.addClient(cl)
	go cl.writeLoop()

	defer func() {
		g.removeClient(cl.id)
		if err := g.handler.Disconnect(context.Background(), cl.id); err != nil {
			g.log.Warn("Disconnect handling failed", "connection", cl.id, "error", err)
		}
		cl.close()
		g.log.Info("Connection closed", "connection", cl.id)
	}()

	g.log.Info("Connection opened", "connection", cl.id)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Warn("Connection read error", "connection", cl.id, "error", err)
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			g.sendError(cl, "invalid frame")
			continue
		}
		g.dispatch(cl, frame)
	}
}

func (g *Gateway) dispatch(cl *client, frame Frame) {
	ctx := context.Background()
	switch frame.Event {
	case "join":
		var req runtime.JoinRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			g.sendError(cl, "invalid join payload")
			return
		}
		req.ConnectionID = cl.id
		// Subscribe before the handler queues the presence broadcast
		// so the joiner receives its own users_update.
		added := false
		if req.Room != "" {
			added = g.subscribe(cl.id, domain.RoomID(req.Room))
		}
		ack, err := g.handler.Join(ctx, req)
		if err != nil {
			// Roll back only a subscription this attempt created; a
			// member rejoining with a bad payload keeps room delivery.
			if added {
				g.unsubscribe(cl.id, domain.RoomID(req.Room))
			}
			g.sendError(cl, err.Error())
			return
		}
		g.sendEvent(cl, "ack", ack)
	case "message":
		var req runtime.MessageRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			g.sendError(cl, "invalid message payload")
			return
		}
		if err := g.handler.Message(ctx, req); err != nil {
			g.sendError(cl, err.Error())
		}
	case "file":
		var req runtime.FileRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			g.sendError(cl, "invalid file payload")
			return
		}
		if err := g.handler.File(ctx, req); err != nil {
			g.sendError(cl, err.Error())
		}
	case "leave":
		var req runtime.LeaveRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			g.sendError(cl, "invalid leave payload")
			return
		}
		req.ConnectionID = cl.id
		if err := g.handler.Leave(ctx, req); err != nil {
			g.sendError(cl, err.Error())
		}
	default:
		g.sendError(cl, "unknown event: "+frame.Event)
	}
}

// Broadcast sends the event to every connection subscribed to the
// room, or to every connection when room is empty.
func (g *Gateway) Broadcast(_ context.Context, room domain.RoomID, e event.Outbound) error {
	data, err := marshalFrame(e.EventName(), e)
	if err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if room == "" {
		for _, cl := range g.clients {
			cl.push(data)
		}
		return nil
	}
	for id := range g.rooms[room] {
		if cl, ok := g.clients[id]; ok {
			cl.push(data)
		}
	}
	return nil
}

func (g *Gateway) Unicast(_ context.Context, connectionID string, e event.Outbound) error {
	data, err := marshalFrame(e.EventName(), e)
	if err != nil {
		return err
	}
	g.mu.RLock()
	cl, ok := g.clients[connectionID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown connection %q", connectionID)
	}
	cl.push(data)
	return nil
}

func (g *Gateway) RemoveFromRoom(_ context.Context, connectionID string, room domain.RoomID) error {
	g.unsubscribe(connectionID, room)
	return nil
}

func (g *Gateway) CloseRoom(_ context.Context, room domain.RoomID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, room)
	return nil
}

func (g *Gateway) addClient(cl *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[cl.id] = cl
}

func (g *Gateway) removeClient(connectionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, connectionID)
	for room, members := range g.rooms {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
}

// subscribe adds the connection to the room's broadcast group and
// reports whether it was newly added.
func (g *Gateway) subscribe(connectionID string, room domain.RoomID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		g.rooms[room] = members
	}
	if _, ok := members[connectionID]; ok {
		return false
	}
	members[connectionID] = struct{}{}
	return true
}

func (g *Gateway) unsubscribe(connectionID string, room domain.RoomID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.rooms[room]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(g.rooms, room)
	}
}

func (g *Gateway) sendEvent(cl *client, name string, payload any) {
	data, err := marshalFrame(name, payload)
	if err != nil {
		g.log.Warn("Failed to encode frame", "event", name, "error", err)
		return
	}
	cl.push(data)
}

func (g *Gateway) sendError(cl *client, message string) {
	g.sendEvent(cl, "error", errorPayload{Message: message})
}

func marshalFrame(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", name, err)
	}
	return json.Marshal(Frame{Event: name, Data: data})
}
