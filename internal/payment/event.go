// Package payment содержит общий разбор уведомлений процессора и тестовый шлюз.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// SignatureHeader — заголовок, в котором процессор передаёт подпись уведомления.
const SignatureHeader = "Stripe-Signature"

// ParseEvent проверяет подпись по сырому телу и разбирает уведомление.
// Ошибки подписи и пустой секрет дают ErrInvalidSignature, нечитаемое тело: ErrValidation.
func ParseEvent(payload []byte, header, secret string, tolerance time.Duration) (domain.PaymentEvent, error) {
	if strings.TrimSpace(secret) == "" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: webhook secret is not configured", domain.ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return domain.PaymentEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	out := domain.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return out, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return domain.PaymentEvent{}, fmt.Errorf("%w: event %s has no session object", domain.ErrValidation, event.ID)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: decode checkout session: %v", domain.ErrValidation, err)
	}

	email := session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		email = session.CustomerDetails.Email
	}
	out.Session = domain.CompletedSession{
		ID:          session.ID,
		Email:       email,
		AmountTotal: session.AmountTotal,
		Metadata:    session.Metadata,
	}
	return out, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// SignPayload подписывает тело так же, как процессор: "t=<unix>,v1=<hmac>".
func SignPayload(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

// CompletedEventPayload собирает тело уведомления checkout.session.completed.
func CompletedEventPayload(eventID string, session domain.CompletedSession) ([]byte, error) {
	body := map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        string(stripe.EventTypeCheckoutSessionCompleted),
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":               session.ID,
				"object":           "checkout.session",
				"amount_total":     session.AmountTotal,
				"customer_email":   session.Email,
				"customer_details": map[string]any{"email": session.Email},
				"metadata":         session.Metadata,
				"mode":             string(stripe.CheckoutSessionModePayment),
				"payment_status":   string(stripe.CheckoutSessionPaymentStatusPaid),
				"status":           "complete",
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", eventID, err)
	}
	return payload, nil
}
