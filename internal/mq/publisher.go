package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher relays accepted readings and created notifications to a topic
// exchange for downstream consumers (analytics, archival). Publishing is
// best-effort and happens only after the row is committed; relay failures
// never fail ingestion.
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a relay publisher on the given exchange. A nil
// connection (relay disabled) yields a nil publisher; the nil receiver is
// safe to publish on.
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	if conn == nil {
		return nil, nil
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// ReadingEvent is relayed for every accepted reading
type ReadingEvent struct {
	DeviceID   string             `json:"device_id"`
	ReadingID  string             `json:"reading_id"`
	Metrics    map[string]float64 `json:"metrics"`
	RecordedAt string             `json:"recorded_at"`
}

// NotificationEvent is relayed for every created notification
type NotificationEvent struct {
	DeviceID       string `json:"device_id"`
	NotificationID string `json:"notification_id"`
	Category       string `json:"category"`
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	CreatedAt      string `json:"created_at"`
}

// PublishEvent publishes one event under the given routing key. Safe on a
// nil publisher (no-op).
func (p *Publisher) PublishEvent(ctx context.Context, routingKey string, event interface{}) error {
	if p == nil {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("relayed event", zap.String("routing_key", routingKey))
	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p == nil || p.channel == nil {
		return nil
	}
	return p.channel.Close()
}
