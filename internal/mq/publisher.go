package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunStarted   MessageType = "run.started"
	MessageTypeRunPaused    MessageType = "run.paused"
	MessageTypeRunResumed   MessageType = "run.resumed"
	MessageTypeRunCompleted MessageType = "run.completed"
	MessageTypeRunControl   MessageType = "run.control"
)

// ControlAction — действие команды управления.
type ControlAction string

const (
	ActionStart      ControlAction = "start"
	ActionPause      ControlAction = "pause"
	ActionResume     ControlAction = "resume"
	ActionToggle     ControlAction = "toggle"
	ActionRetryQuota ControlAction = "retry_quota"
	ActionAutoResume ControlAction = "auto_resume"
)

// Valid проверяет, что действие известно.
func (a ControlAction) Valid() bool {
	switch a {
	case ActionStart, ActionPause, ActionResume, ActionToggle, ActionRetryQuota, ActionAutoResume:
		return true
	default:
		return false
	}
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — конверт сообщения.
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

// RunEventPayload — payload события жизненного цикла run.
type RunEventPayload struct {
	RunID  uuid.UUID `json:"run_id"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// ControlPayload — payload команды управления run.
type ControlPayload struct {
	RunID   uuid.UUID     `json:"run_id"`
	Action  ControlAction `json:"action"`
	DelayMs int64         `json:"delay_ms,omitempty"`
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
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
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

// PublishRunEvent публикует событие жизненного цикла run.
// Потребители: внешние (UI, уведомления).
func (p *Publisher) PublishRunEvent(ctx context.Context, msgType MessageType, payload RunEventPayload) error {
	return p.PublishJSON(ctx, ExchangeRuns, RoutingKeyEvents, msgType, payload)
}

// PublishControl публикует команду управления run.
// Потребитель: Supervisor.
func (p *Publisher) PublishControl(ctx context.Context, payload ControlPayload) error {
	if !payload.Action.Valid() {
		return fmt.Errorf("unknown control action %q", payload.Action)
	}
	return p.PublishJSON(ctx, ExchangeRuns, RoutingKeyControl, MessageTypeRunControl, payload)
}

// PublishJSON публикует произвольный JSON payload.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, exchange, routingKey, msg)
}
