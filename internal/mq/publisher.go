package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений о событиях run.
const (
	MessageTypeRunStarted   = MessageType(RoutingKeyRunStarted)
	MessageTypeStepFinished = MessageType(RoutingKeyStepFinished)
	MessageTypeRunFinished  = MessageType(RoutingKeyRunFinished)
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// RunEventPayload — payload событий run.started, step.finished, run.finished.
type RunEventPayload struct {
	RunID        uuid.UUID        `json:"run_id"`
	DefinitionID string           `json:"definition_id"`
	Status       domain.RunStatus `json:"status"`
	Progress     int              `json:"progress"`

	// StepID и StepStatus заполнены для step.finished
	// и для run.finished упавшего run.
	StepID     string            `json:"step_id,omitempty"`
	StepStatus domain.StepStatus `json:"step_status,omitempty"`

	Error     string `json:"error,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`

	// Duration — длительность run (для run.finished) в миллисекундах.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishRunEvent публикует событие run в conveyor.runs.
// Routing key совпадает с типом события.
func (p *Publisher) PublishRunEvent(ctx context.Context, msgType MessageType, payload RunEventPayload) error {
	return p.Publish(ctx, ExchangeRuns, RoutingKey(msgType), NewMessage(msgType, payload))
}
