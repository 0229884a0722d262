package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"room-relay/domain"
	"room-relay/observability"
	"room-relay/repositories"
)

// PushWorker drains queued notifications into the web-push side
// channel. The channel is strictly best effort: failures are counted
// and the offending subscription is pruned, nothing ever propagates
// back to the event that triggered the push.
type PushWorker struct {
	log           *slog.Logger
	subscriptions *repositories.SubscriptionRepository
	notifications <-chan domain.PushNotification
	options       webpush.Options
	metrics       *observability.RelayMetrics
}

func NewPushWorker(log *slog.Logger, subscriptions *repositories.SubscriptionRepository,
	notifications <-chan domain.PushNotification, subscriber, vapidPublicKey, vapidPrivateKey string,
	metrics *observability.RelayMetrics) *PushWorker {
	return &PushWorker{
		log:           log,
		subscriptions: subscriptions,
		notifications: notifications,
		options: webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  vapidPublicKey,
			VAPIDPrivateKey: vapidPrivateKey,
			TTL:             30,
		},
		metrics: metrics,
	}
}

func (w *PushWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case notification := <-w.notifications:
			w.send(notification)
		}
	}
}

func (w *PushWorker) send(notification domain.PushNotification) {
	payload, err := json.Marshal(notification)
	if err != nil {
		w.log.Warn("Failed to encode push payload", "error", err)
		return
	}
	subs, err := w.subscriptions.All()
	if err != nil {
		w.log.Warn("Failed to load push subscriptions", "error", err)
		return
	}
	for _, sub := range subs {
		response, err := webpush.SendNotification(payload, &sub, &w.options)
		if err != nil {
			w.metrics.PushFailures.Add(1)
			w.log.Warn("Push send failed, pruning subscription", "endpoint", sub.Endpoint, "error", err)
			_ = w.subscriptions.Delete(sub.Endpoint)
			continue
		}
		if response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusGone {
			w.log.Info("Subscription expired, pruning", "endpoint", sub.Endpoint)
			_ = w.subscriptions.Delete(sub.Endpoint)
		}
		_ = response.Body.Close()
		w.log.Debug("Push sent", "endpoint", sub.Endpoint, "status", response.StatusCode)
	}
}
