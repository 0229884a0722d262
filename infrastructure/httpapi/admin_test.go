package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"room-relay/domain"
	"room-relay/domain/event"
	"room-relay/observability"
	"room-relay/repositories"
	"room-relay/runtime"
)

type testServer struct {
	app           *fiber.App
	store         *repositories.MessageRepository
	lifecycle     *runtime.RoomLifecycle
	subscriptions *repositories.SubscriptionRepository
	notifications chan domain.PushNotification
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	metrics := &observability.RelayMetrics{}
	outbound := make(chan event.Command, 64)
	store := repositories.NewMessageRepository(db, log, 48*time.Hour, outbound, metrics)
	registry := runtime.NewConnectionRegistry()
	lifecycle := runtime.NewRoomLifecycle(log, store, registry, outbound, metrics)
	subscriptions := repositories.NewSubscriptionRepository(db, log)
	notifications := make(chan domain.PushNotification, 8)

	app := fiber.New()
	NewServer(log, lifecycle, subscriptions, notifications).Register(app)
	return &testServer{
		app:           app,
		store:         store,
		lifecycle:     lifecycle,
		subscriptions: subscriptions,
		notifications: notifications,
	}
}

func Test_Clear_Room_Endpoint(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	_, err := ts.store.Append(domain.NewTextMessage("r1", "alice", "wipe me"))
	req.NoError(err)

	response, err := ts.app.Test(httptest.NewRequest("DELETE", "/clear/r1", nil))
	req.NoError(err)
	req.Equal(fiber.StatusOK, response.StatusCode)

	body, err := io.ReadAll(response.Body)
	req.NoError(err)
	var parsed map[string]string
	req.NoError(json.Unmarshal(body, &parsed))
	req.Equal("ok", parsed["status"])

	messages, err := ts.store.Query("r1", nil)
	req.NoError(err)
	req.Empty(messages)
	req.False(ts.lifecycle.IsDestroyed("r1"))
}

func Test_Destroy_Room_Endpoint_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	for range 2 {
		response, err := ts.app.Test(httptest.NewRequest("DELETE", "/destroy/r1", nil))
		req.NoError(err)
		req.Equal(fiber.StatusOK, response.StatusCode)
	}
	req.True(ts.lifecycle.IsDestroyed("r1"))
}

func Test_Subscribe_Endpoint(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	payload := `{"endpoint":"https://push.example.com/abc","keys":{"auth":"a","p256dh":"p"}}`
	request := httptest.NewRequest("POST", "/api/subscribe", strings.NewReader(payload))
	request.Header.Set("Content-Type", "application/json")

	response, err := ts.app.Test(request)
	req.NoError(err)
	req.Equal(fiber.StatusOK, response.StatusCode)

	subs, err := ts.subscriptions.All()
	req.NoError(err)
	req.Len(subs, 1)
	req.Equal("https://push.example.com/abc", subs[0].Endpoint)
}

func Test_Subscribe_Endpoint_Rejects_Missing_Endpoint(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	request := httptest.NewRequest("POST", "/api/subscribe", strings.NewReader(`{"keys":{}}`))
	request.Header.Set("Content-Type", "application/json")

	response, err := ts.app.Test(request)
	req.NoError(err)
	req.Equal(fiber.StatusBadRequest, response.StatusCode)
}

func Test_Send_Push_Notification_Queues(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	response, err := ts.app.Test(httptest.NewRequest("POST", "/send-push-notification", nil))
	req.NoError(err)
	req.Equal(fiber.StatusOK, response.StatusCode)

	select {
	case notification := <-ts.notifications:
		req.Equal("Test Message", notification.Title)
	default:
		req.Fail("expected a queued notification")
	}
}
