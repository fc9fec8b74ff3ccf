package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/models"
)

// QueueEventCreated is the durable RabbitMQ queue for new event messages.
const QueueEventCreated = "event.created"

// EventCreatedMessage is the body published to QueueEventCreated.
type EventCreatedMessage struct {
	EventID      int64         `json:"event_id"`
	Title        string        `json:"title"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Status       string        `json:"status"`
	IsExternal   bool          `json:"is_external"`
	NeedsHelpers bool          `json:"needs_helpers"`
	AllowedRoles []models.Role `json:"allowed_roles"`
	CreatedBy    uuid.UUID     `json:"created_by"`
}

// NewEventCreatedMessage builds the message for e.
func NewEventCreatedMessage(e *models.Event) EventCreatedMessage {
	roles := e.AllowedRoles
	if roles == nil {
		roles = []models.Role{}
	}
	return EventCreatedMessage{
		EventID:      e.ID,
		Title:        e.Title,
		StartTime:    e.StartTime,
		EndTime:      e.EndTime,
		Status:       string(e.Status),
		IsExternal:   e.IsExternal,
		NeedsHelpers: e.NeedsHelpers,
		AllowedRoles: roles,
		CreatedBy:    e.CreatedBy,
	}
}

// AMQPPublisher publishes new events to RabbitMQ. Each publish dials its
// own connection; events are created rarely.
type AMQPPublisher struct {
	url    string
	queue  string
	logger *zap.Logger
}

// NewAMQPPublisher creates a publisher for the broker at url.
func NewAMQPPublisher(url string, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{url: url, queue: QueueEventCreated, logger: logger}
}

// PublishEventCreated sends e as a persistent JSON message.
func (p *AMQPPublisher) PublishEventCreated(ctx context.Context, e *models.Event) error {
	body, err := json.Marshal(NewEventCreatedMessage(e))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Warn("rabbitmq dial failed", zap.Error(err))
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("event-%d", e.ID),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.logger.Warn("rabbitmq publish failed", zap.Int64("event_id", e.ID), zap.Error(err))
		return fmt.Errorf("publish: %w", err)
	}
	p.logger.Debug("published event.created", zap.Int64("event_id", e.ID))
	return nil
}
