package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// EventType определяет тип события в topic.
type EventType string

// EventTypeOrderCompleted — заказ материализован после подтверждённой оплаты.
const EventTypeOrderCompleted EventType = domain.EventOrderCompleted

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderOriginalTopic = "x-original-topic"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope — обёртка outbox-сообщения в topic.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, at time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     EventType(msg.EventType),
		Payload:       payload,
		PublishedAt:   at.UTC(),
	}
}

// ParseEnvelope разбирает значение сообщения из topic.
func ParseEnvelope(value []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return env, nil
}

// OrderCompleted декодирует payload события order.completed.
func (e Envelope) OrderCompleted() (domain.OrderCompletedEvent, error) {
	if e.EventType != EventTypeOrderCompleted {
		return domain.OrderCompletedEvent{}, fmt.Errorf("unexpected event type %q", e.EventType)
	}
	var event domain.OrderCompletedEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return domain.OrderCompletedEvent{}, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return event, nil
}

// DeadLetter — содержимое payload сообщения в DLQ, которое outbox-воркер
// отправляет после исчерпания попыток.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error,omitempty"`
	DLQPublishedAt string          `json:"dlq_published_at,omitempty"`
}

// DeadLetter декодирует payload DLQ-конверта.
func (e Envelope) DeadLetter() (DeadLetter, error) {
	var letter DeadLetter
	if err := json.Unmarshal(e.Payload, &letter); err != nil {
		return DeadLetter{}, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	if len(letter.Payload) == 0 || string(letter.Payload) == "null" {
		return DeadLetter{}, fmt.Errorf("dead letter %q has no original payload", letter.OutboxID)
	}
	return letter, nil
}

// OutboxMessage восстанавливает исходное outbox-сообщение; пустые поля
// берутся из конверта.
func (l DeadLetter) OutboxMessage(env Envelope) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            firstNonEmpty(l.OutboxID, env.ID),
		AggregateType: firstNonEmpty(l.AggregateType, env.AggregateType),
		AggregateID:   firstNonEmpty(l.AggregateID, env.AggregateID),
		EventType:     firstNonEmpty(l.EventType, string(env.EventType)),
		Payload:       []byte(l.Payload),
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
