package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultLedgerRetention = 24 * time.Hour

// eventLedger — журнал webhook-событий процессора в памяти процесса.
// Ключи имеют вид "webhook:<event id>", хэш привязывает событие к сессии оплаты.
// Общий для всех процессов журнал дают Redis- и PostgreSQL-реализации.
type eventLedger struct {
	mu      sync.RWMutex
	records map[string]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт in-memory журнал обработанных событий процессора.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &eventLedger{
		records: make(map[string]domain.IdempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessing регистрирует доставку события. Повтор того же события возвращает
// ErrIdempotencyKeyAlreadyExists вместе с текущей записью, чтобы обработчик мог
// подтвердить уже материализованный заказ.
func (l *eventLedger) CreateProcessing(_ context.Context, key, sessionHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, err := normalizeLedgerKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	sessionHash = strings.TrimSpace(sessionHash)
	if sessionHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := l.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultLedgerRetention)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.records[key]; ok {
		if existing.RequestHash != sessionHash {
			return copyLedgerRecord(existing), domain.ErrIdempotencyHashMismatch
		}
		return copyLedgerRecord(existing), domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: sessionHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.records[key] = record
	return copyLedgerRecord(record), nil
}

func (l *eventLedger) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key, err := normalizeLedgerKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyLedgerRecord(record), nil
}

// MarkDone фиксирует подтверждение, отданное процессору после создания заказа.
func (l *eventLedger) MarkDone(_ context.Context, key string, ack []byte, httpStatus int) error {
	return l.settle(key, domain.IdempotencyStatusDone, ack, httpStatus)
}

// MarkFailed открывает событие для повторной доставки процессором.
func (l *eventLedger) MarkFailed(_ context.Context, key string, ack []byte, httpStatus int) error {
	return l.settle(key, domain.IdempotencyStatusFailed, ack, httpStatus)
}

func (l *eventLedger) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, record := range l.records {
		if limit > 0 && removed >= limit {
			break
		}
		if !record.Expired(before) {
			continue
		}
		delete(l.records, key)
		removed++
	}
	return removed, nil
}

func (l *eventLedger) settle(key string, status domain.IdempotencyStatus, ack []byte, httpStatus int) error {
	key, err := normalizeLedgerKey(key)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResponseBody = append([]byte(nil), ack...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = l.now()
	l.records[key] = record
	return nil
}

func normalizeLedgerKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}

func copyLedgerRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return dst
}

var _ domain.IdempotencyRepository = (*eventLedger)(nil)
