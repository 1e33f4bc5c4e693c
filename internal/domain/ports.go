package domain

import (
	"context"
	"time"
)

// PaymentGateway описывает взаимодействие с платёжным процессором.
type PaymentGateway interface {
	// CreateSession создаёт hosted checkout-сессию и возвращает её id и url.
	CreateSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// ListLineItems возвращает фактически оплаченные позиции сессии.
	ListLineItems(ctx context.Context, sessionID string) ([]PaidLineItem, error)
	// ParseWebhook проверяет подпись по сырому телу и разбирает событие.
	// При несовпадении подписи возвращает ErrInvalidSignature.
	ParseWebhook(payload []byte, signature string) (PaymentEvent, error)
}

// CartRepository хранит документ корзины по ключу владельца.
type CartRepository interface {
	// Load возвращает сохранённую корзину; отсутствие документа: пустая корзина.
	Load(ctx context.Context, key string) (Cart, error)
	// Save перезаписывает позиции корзины целиком.
	Save(ctx context.Context, key string, cart Cart) error
	// Clear сбрасывает корзину в пустой список позиций.
	Clear(ctx context.Context, key string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// CreateOnce сохраняет заказ, если заказа для той же checkout-сессии ещё нет.
	// created=false означает, что заказ уже был материализован ранее.
	CreateOnce(ctx context.Context, order Order) (created bool, err error)
	// Get возвращает заказ по идентификатору или ErrNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByOwner возвращает заказы владельца, новые первыми.
	ListByOwner(ctx context.Context, owner OwnerID, limit int) ([]Order, error)
}

// UserDirectory разрешает владельца в контактные данные покупателя.
type UserDirectory interface {
	// Email возвращает email пользователя или ErrNotFound.
	Email(ctx context.Context, owner OwnerID) (string, error)
	// EnsureUser создаёт документ пользователя, если его ещё нет.
	EnsureUser(ctx context.Context, identity Identity) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	// Enqueue добавляет сообщение; повторная постановка с тем же ID ничего не меняет.
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки по ключу идемпотентности.
// Для webhook ключом служит ID события процессора.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
