package domain

import (
	"context"
	"errors"
)

var (
	// ErrValidation — некорректная форма запроса; побочных эффектов нет.
	ErrValidation = errors.New("validation error")
	// ErrUnauthenticated — операция требует аутентифицированного пользователя.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound — неизвестный пользователь или сессия.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSignature — подпись webhook не совпала с общим секретом.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUpstreamFailure — процессор или хранилище недоступны; вызывающий может повторить.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrPersistenceDivergence — фоновая запись корзины не удалась; только логируется.
	ErrPersistenceDivergence = errors.New("cart persistence diverged")

	// ErrEmptyCart — checkout пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCheckoutFailed — клиентская ошибка оформления; корзина не тронута, можно повторить.
	ErrCheckoutFailed = errors.New("checkout failed")

	// ErrDocumentNotFound возвращается хранилищем, если документа нет.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDocumentExists — документ с таким ID уже создан.
	ErrDocumentExists = errors.New("document already exists")
	// ErrBackendUnavailable — удалённый бэкенд недоступен (сеть, таймаут, отказ соединения).
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован с тем же хэшем.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different payload")
	// ErrIdempotencyKeyNotFound — записи с таким ключом нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind — класс ошибки из таксономии подсистемы.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindUnauthenticated  ErrorKind = "unauthenticated"
	KindNotFound         ErrorKind = "not_found"
	KindInvalidSignature ErrorKind = "invalid_signature"
	KindUpstream         ErrorKind = "upstream"
	KindDivergence       ErrorKind = "persistence_divergence"
	KindInternal         ErrorKind = "internal"
)

// Kind относит ошибку к классу таксономии.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrEmptyCart):
		return KindValidation
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDocumentNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidSignature):
		return KindInvalidSignature
	case errors.Is(err, ErrUpstreamFailure), errors.Is(err, ErrBackendUnavailable):
		return KindUpstream
	case errors.Is(err, ErrPersistenceDivergence):
		return KindDivergence
	default:
		return KindInternal
	}
}

// IsUnavailable сообщает, что бэкенд недоступен и операцию можно перевести на локальный fallback.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// IsIdempotencyConflict проверяет конфликт ключа идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsRetryable сообщает, что вызывающий (или процессор повторной доставкой) может повторить операцию.
func IsRetryable(err error) bool {
	return Kind(err) == KindUpstream || IsUnavailable(err)
}
