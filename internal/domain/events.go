package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventOrderCompleted — тип outbox-события о материализованном заказе.
const EventOrderCompleted = "order.completed"

// AggregateOrder — тип агрегата для событий заказа.
const AggregateOrder = "order"

// OrderCompletedEvent — полезная нагрузка события order.completed.
type OrderCompletedEvent struct {
	OrderID         string    `json:"order_id"`
	OwnerID         OwnerID   `json:"owner_id"`
	Email           string    `json:"email,omitempty"`
	Total           Money     `json:"total"`
	ItemCount       int       `json:"item_count"`
	SourceSessionID string    `json:"source_session_id"`
	CompletedAt     time.Time `json:"completed_at"`
}

// NewOrderCompletedMessage строит outbox-сообщение для заказа.
// ID сообщения выводится из ID заказа, поэтому повторная постановка не создаёт дубль.
func NewOrderCompletedMessage(order Order) (OutboxMessage, error) {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	payload, err := json.Marshal(OrderCompletedEvent{
		OrderID:         order.ID,
		OwnerID:         order.OwnerID,
		Email:           order.Email,
		Total:           order.Total,
		ItemCount:       count,
		SourceSessionID: order.SourceSessionID,
		CompletedAt:     order.CreatedAt,
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("encode %s event: %w", EventOrderCompleted, err)
	}

	return OutboxMessage{
		ID:            EventOrderCompleted + ":" + order.ID,
		AggregateType: AggregateOrder,
		AggregateID:   order.ID,
		EventType:     EventOrderCompleted,
		Payload:       payload,
	}, nil
}
