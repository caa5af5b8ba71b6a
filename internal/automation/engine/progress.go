package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iBHunt91/FossaWorkV2-sub002/shared/rabbitmq"
)

// ProgressHandler receives each decoded progress report. Reports whose
// session id resolves to no active job are the handler's to drop.
type ProgressHandler func(ProgressReport)

// ProgressConsumer reads the engine's asynchronous progress pushes off the
// progress queue and hands them to the orchestration layer.
type ProgressConsumer struct {
	client      *rabbitmq.Client
	handler     ProgressHandler
	logger      *slog.Logger
	consumerTag string
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewProgressConsumer creates a consumer bound to the given AMQP client.
func NewProgressConsumer(client *rabbitmq.Client, handler ProgressHandler, logger *slog.Logger) *ProgressConsumer {
	return &ProgressConsumer{
		client:      client,
		handler:     handler,
		logger:      logger,
		consumerTag: fmt.Sprintf("progress-consumer-%s", uuid.New().String()[:8]),
		stopChan:    make(chan struct{}),
	}
}

// Start begins consuming. It returns once the delivery loop is running; the
// loop exits when ctx is canceled or Stop is called.
func (c *ProgressConsumer) Start(ctx context.Context) error {
	deliveries, err := c.client.Consume(c.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start progress consumer: %w", err)
	}

	c.wg.Add(1)
	go c.loop(ctx, deliveries)

	c.logger.Info("Progress consumer started",
		slog.String("consumer_tag", c.consumerTag),
	)
	return nil
}

// Stop terminates the delivery loop and waits for it to exit.
func (c *ProgressConsumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
}

func (c *ProgressConsumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Progress delivery channel closed")
				return
			}
			c.handleDelivery(delivery)
		}
	}
}

func (c *ProgressConsumer) handleDelivery(delivery amqp.Delivery) {
	var report ProgressReport
	if err := json.Unmarshal(delivery.Body, &report); err != nil {
		c.logger.Error("Malformed progress report",
			slog.String("error", err.Error()),
		)
		// Malformed payloads never become parseable: drop without requeue.
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to NACK progress report",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	c.handler(report)

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ACK progress report",
			slog.String("session_id", report.SessionID),
			slog.String("error", err.Error()),
		)
	}
}
