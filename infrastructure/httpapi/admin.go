// Package httpapi exposes the relay's administrative and push
// endpoints. Both room operations are idempotent and succeed even for
// rooms with no members or messages.
package httpapi

import (
	"fmt"
	"log/slog"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gofiber/fiber/v2"

	"room-relay/domain"
	"room-relay/repositories"
	"room-relay/runtime"
)

type Server struct {
	log           *slog.Logger
	lifecycle     *runtime.RoomLifecycle
	subscriptions *repositories.SubscriptionRepository
	notifications chan<- domain.PushNotification
}

func NewServer(log *slog.Logger, lifecycle *runtime.RoomLifecycle,
	subscriptions *repositories.SubscriptionRepository,
	notifications chan<- domain.PushNotification) *Server {
	return &Server{
		log:           log,
		lifecycle:     lifecycle,
		subscriptions: subscriptions,
		notifications: notifications,
	}
}

func (s *Server) Register(app *fiber.App) {
	app.Delete("/clear/:room", s.clearRoom)
	app.Delete("/destroy/:room", s.destroyRoom)
	app.Post("/api/subscribe", s.subscribe)
	app.Post("/send-push-notification", s.sendPushNotification)
}

func (s *Server) clearRoom(c *fiber.Ctx) error {
	room := domain.RoomID(c.Params("room"))
	if err := s.lifecycle.Clear(room); err != nil {
		s.log.Error("Clear failed", "room", room, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"status": "ok", "message": fmt.Sprintf("Room %s cleared.", room)})
}

func (s *Server) destroyRoom(c *fiber.Ctx) error {
	room := domain.RoomID(c.Params("room"))
	if err := s.lifecycle.Destroy(room); err != nil {
		s.log.Error("Destroy failed", "room", room, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"status": "ok", "message": fmt.Sprintf("Room %s destroyed.", room)})
}

func (s *Server) subscribe(c *fiber.Ctx) error {
	var sub webpush.Subscription
	if err := c.BodyParser(&sub); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid subscription payload")
	}
	if sub.Endpoint == "" {
		return fiber.NewError(fiber.StatusBadRequest, "subscription endpoint is required")
	}
	if err := s.subscriptions.Save(sub); err != nil {
		s.log.Error("Saving subscription failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"message": "Subscribed successfully!"})
}

func (s *Server) sendPushNotification(c *fiber.Ctx) error {
	notification := domain.PushNotification{
		Title: "Test Message",
		Body:  "This is a test notification sent even if the chat is closed.",
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&notification); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid notification payload")
		}
	}
	// Queued, not sent inline: push is a best-effort side channel and
	// must not hold the request hostage to slow push services.
	select {
	case s.notifications <- notification:
	default:
		s.log.Warn("Push queue full, dropping notification")
	}
	return c.JSON(fiber.Map{"status": "Push notification sent"})
}
