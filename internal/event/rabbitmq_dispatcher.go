package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publisherAppID = "banking-engine"

// notificationRequest is the wire contract with the notification service.
type notificationRequest struct {
	MessageID   string         `json:"messageId"`
	TemplateKey string         `json:"templateKey"`
	Recipients  []string       `json:"recipients,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type RabbitMQDispatcher struct {
	conn         *amqp.Connection
	exchangeName string
	logger       *slog.Logger
}

func NewRabbitMQDispatcher(conn *amqp.Connection, exchangeName string, logger *slog.Logger) (*RabbitMQDispatcher, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection cannot be nil")
	}
	if exchangeName == "" {
		return nil, fmt.Errorf("RabbitMQ exchange name cannot be empty")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	tempCh, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open temporary channel for exchange declaration: %w", err)
	}
	defer tempCh.Close()

	err = tempCh.ExchangeDeclare(
		exchangeName,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}
	logger.Info("Ensured RabbitMQ exchange exists", "exchange", exchangeName, "type", amqp.ExchangeTopic)

	return &RabbitMQDispatcher{
		conn:         conn,
		exchangeName: exchangeName,
		logger:       logger.With("component", "RabbitMQDispatcher", "exchange", exchangeName),
	}, nil
}

// Dispatch publishes one notification request, routed by its template key.
func (d *RabbitMQDispatcher) Dispatch(ctx context.Context, templateKey string, recipients []string, payload map[string]any) error {
	logCtx := d.logger.With(slog.String("routingKey", templateKey))

	channel, err := d.conn.Channel()
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to open RabbitMQ channel", slog.Any("error", err))
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	request := notificationRequest{
		MessageID:   uuid.NewString(),
		TemplateKey: templateKey,
		Recipients:  recipients,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}
	body, err := json.Marshal(request)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to marshal notification request", slog.Any("error", err))
		return fmt.Errorf("failed to marshal notification request: %w", err)
	}

	err = channel.PublishWithContext(
		ctx,
		d.exchangeName,
		templateKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    request.MessageID,
			Timestamp:    request.Timestamp,
			Body:         body,
			AppId:        publisherAppID,
		},
	)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to publish notification request", slog.Any("error", err))
		return fmt.Errorf("failed to publish notification request: %w", err)
	}

	logCtx.DebugContext(ctx, "Notification request published", "messageId", request.MessageID)
	return nil
}
