// Package notify publishes job lifecycle notifications. Delivery is a
// best-effort side channel: failures are logged at the call site and never
// influence job state.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/iBHunt91/FossaWorkV2-sub002/shared/rabbitmq"
)

// Trigger kinds carried on outgoing notifications.
const (
	TriggerAutomationCompleted = "automation_completed"
	TriggerAutomationFailed    = "automation_failed"
)

// Notifier dispatches one notification. Implementations must not block on
// downstream delivery guarantees.
type Notifier interface {
	Notify(ctx context.Context, userID, trigger string, payload map[string]any)
}

// Message is the wire form of one notification event.
type Message struct {
	UserID  string         `json:"user_id"`
	Trigger string         `json:"trigger"`
	Payload map[string]any `json:"payload,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

// AMQPNotifier publishes notifications to the notification exchange, routed
// by trigger kind. The downstream dispatchers (e-mail, push, desktop) bind
// their own queues.
type AMQPNotifier struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewAMQPNotifier creates a notifier over an existing AMQP client.
func NewAMQPNotifier(client *rabbitmq.Client, logger *slog.Logger) *AMQPNotifier {
	return &AMQPNotifier{client: client, logger: logger}
}

// Notify publishes the event. Errors are logged and swallowed.
func (n *AMQPNotifier) Notify(ctx context.Context, userID, trigger string, payload map[string]any) {
	msg := Message{
		UserID:  userID,
		Trigger: trigger,
		Payload: payload,
		SentAt:  time.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error("Failed to encode notification",
			slog.String("user_id", userID),
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
		return
	}

	routingKey := "notifications." + trigger
	if err := n.client.Publish(ctx, routingKey, body, "application/json"); err != nil {
		n.logger.Error("Failed to publish notification",
			slog.String("user_id", userID),
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
		return
	}

	n.logger.Debug("Notification published",
		slog.String("user_id", userID),
		slog.String("trigger", trigger),
	)
}

// NopNotifier discards every notification. Used in tests and when the
// notification broker is disabled.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string, string, map[string]any) {}
