package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// IdempotencyStatus — состояние события процессора в журнале webhook.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — событие принято, заказ ещё материализуется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — заказ создан, корзина очищена; повторная доставка только подтверждается.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — материализация упала; redelivery процессора обрабатывается заново.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

const (
	webhookLedgerPrefix        = "webhook:"
	webhookSessionLedgerPrefix = "webhook:session:"
)

// IdempotencyRecord — запись журнала webhook: одно событие процессора и итог его обработки.
//
// Key строится WebhookLedgerKey, RequestHash — WebhookRequestHash от ID сессии,
// поэтому повтор ID события с другой сессией даёт ErrIdempotencyHashMismatch.
// ResponseBody и HTTPStatus хранят подтверждение, отданное процессору.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Acknowledged сообщает, что событие обработано полностью и redelivery нужно только подтвердить.
func (r IdempotencyRecord) Acknowledged() bool {
	return r.Status == IdempotencyStatusDone
}

// Expired сообщает, что запись пережила TTL и может быть удалена очисткой.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// WebhookLedgerKey — ключ журнала для события. Без ID события ключом служит сессия.
func WebhookLedgerKey(event PaymentEvent) string {
	if event.ID != "" {
		return webhookLedgerPrefix + event.ID
	}
	return webhookSessionLedgerPrefix + event.Session.ID
}

// WebhookRequestHash — отпечаток сессии, к которой относится событие.
func WebhookRequestHash(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:])
}
