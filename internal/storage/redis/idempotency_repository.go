// Package redis хранит журнал обработанных webhook-событий в Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultKeyPrefix = "storefront:idempotency:"
	maxWatchRetries  = 3
	scanBatch        = 100
)

type idempotencyRepository struct {
	client *redis.Client
	prefix string
}

// NewIdempotencyRepository создаёт Redis-реализацию IdempotencyRepository.
// Записи живут до ttlAt: срок передаётся в Redis при создании ключа.
func NewIdempotencyRepository(client *redis.Client) domain.IdempotencyRepository {
	return &idempotencyRepository{client: client, prefix: defaultKeyPrefix}
}

// record — сериализованное представление записи в Redis.
type record struct {
	Key          string    `json:"key"`
	RequestHash  string    `json:"requestHash"`
	ResponseBody []byte    `json:"responseBody,omitempty"`
	HTTPStatus   int       `json:"httpStatus,omitempty"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttlAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)

	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	rec := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payload, err := encode(rec)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ok, err := r.client.SetNX(ctx, r.redisKey(key), payload, expiration(ttlAt)).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	if !ok {
		existing, getErr := r.Get(ctx, key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return rec, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	raw, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}
	return decode(raw)
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет записи с ttlAt <= before. Redis сам снимает просроченные ключи,
// поэтому здесь подчищаются только записи, чей срок по часам приложения уже истёк.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	removed := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		raw, err := r.client.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("read idempotency record %s: %w", redisKey, err)
		}
		rec, err := decode(raw)
		if err != nil || rec.TTLAt.After(before) {
			continue
		}

		n, err := r.client.Del(ctx, redisKey).Result()
		if err != nil {
			return removed, fmt.Errorf("delete expired idempotency record: %w", err)
		}
		removed += int(n)
		if limit > 0 && removed >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan idempotency records: %w", err)
	}
	return removed, nil
}

// markStatus обновляет запись под WATCH, сохраняя исходный срок жизни.
func (r *idempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	redisKey := r.redisKey(key)

	update := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrIdempotencyKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get idempotency record: %w", err)
		}
		rec, err := decode(raw)
		if err != nil {
			return err
		}

		rec.Status = status
		rec.ResponseBody = append([]byte(nil), responseBody...)
		rec.HTTPStatus = httpStatus
		rec.UpdatedAt = time.Now().UTC()
		payload, err := encode(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, expiration(rec.TTLAt))
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, update, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return fmt.Errorf("mark idempotency key status: %w", err)
		}
		return err
	}
	return fmt.Errorf("mark idempotency key status: %w", redis.TxFailedErr)
}

func (r *idempotencyRepository) redisKey(key string) string {
	return r.prefix + key
}

// expiration переводит момент истечения в TTL Redis; истёкший срок округляется до секунды,
// чтобы ключ всё равно получил ограниченное время жизни.
func expiration(ttlAt time.Time) time.Duration {
	ttl := time.Until(ttlAt)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func encode(rec domain.IdempotencyRecord) (string, error) {
	raw, err := json.Marshal(record{
		Key:          rec.Key,
		RequestHash:  rec.RequestHash,
		ResponseBody: rec.ResponseBody,
		HTTPStatus:   rec.HTTPStatus,
		Status:       string(rec.Status),
		TTLAt:        rec.TTLAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("encode idempotency record: %w", err)
	}
	return string(raw), nil
}

func decode(raw []byte) (domain.IdempotencyRecord, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	status := domain.IdempotencyStatus(rec.Status)
	if !status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", rec.Status, rec.Key)
	}
	return domain.IdempotencyRecord{
		Key:          rec.Key,
		RequestHash:  rec.RequestHash,
		ResponseBody: rec.ResponseBody,
		HTTPStatus:   rec.HTTPStatus,
		Status:       status,
		TTLAt:        rec.TTLAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
