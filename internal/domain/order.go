package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// OrderStatus описывает состояние заказа. Заказ создаётся только после подтверждённой
// оплаты и после создания не меняется, поэтому статус пока единственный.
type OrderStatus string

const (
	// OrderStatusCompleted — оплата подтверждена процессором, заказ материализован.
	OrderStatusCompleted OrderStatus = "completed"
)

// Order — неизменяемая запись о завершённой покупке.
type Order struct {
	ID              string
	OwnerID         OwnerID
	Email           string
	Items           []CartItem
	Total           Money
	Status          OrderStatus
	SourceSessionID string
	CreatedAt       time.Time
}

// OrderIDForSession детерминированно выводит ID заказа из ID checkout-сессии.
// Один и тот же sessionId всегда даёт один документ, на этом держится уникальность.
func OrderIDForSession(sessionID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sessionID)))
	return "ord_" + hex.EncodeToString(sum[:16])
}

// NewCompletedOrder собирает заказ из завершённой сессии и позиций, полученных от процессора.
// Итог берётся из фактически списанной суммы, а не пересчитывается по позициям.
func NewCompletedOrder(session CompletedSession, owner OwnerID, items []CartItem, now time.Time) (Order, error) {
	if strings.TrimSpace(session.ID) == "" {
		return Order{}, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if strings.TrimSpace(string(owner)) == "" {
		return Order{}, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if len(items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	if session.AmountTotal < 0 {
		return Order{}, fmt.Errorf("%w: settled amount must be non-negative", ErrValidation)
	}

	return Order{
		ID:              OrderIDForSession(session.ID),
		OwnerID:         owner,
		Email:           session.Email,
		Items:           append([]CartItem(nil), items...),
		Total:           MoneyFromMinor(session.AmountTotal),
		Status:          OrderStatusCompleted,
		SourceSessionID: session.ID,
		CreatedAt:       now.UTC(),
	}, nil
}
