package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
)

// legacySignatureHeader — короткое имя заголовка подписи, которое принимают наравне с основным.
const legacySignatureHeader = "signature"

// OrderItemDTO — позиция заказа в ответе API.
type OrderItemDTO struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Price    domain.Money `json:"price"`
	Quantity int          `json:"quantity"`
	Image    string       `json:"image,omitempty"`
}

// OrderDTO — заказ в ответе API.
type OrderDTO struct {
	ID              string         `json:"id"`
	OwnerID         string         `json:"ownerId"`
	Email           string         `json:"email"`
	Items           []OrderItemDTO `json:"items"`
	Total           domain.Money   `json:"total"`
	Status          string         `json:"status"`
	SourceSessionID string         `json:"sourceSessionId"`
	CreatedAt       string         `json:"createdAt"`
}

// WebhookAck — тело успешного ответа процессору.
type WebhookAck struct {
	Received bool `json:"received"`
}

// POST /checkout-sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	if s.opts.Sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "payment processor is not configured")
		return
	}

	var payload checkout.SessionPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSessionBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if status, msg, ok := s.authorize(r, payload.UserID); !ok {
		respondError(w, status, msg)
		return
	}

	items, err := payload.CartItems()
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	res, err := s.opts.Sessions.Create(r.Context(), checkout.SessionRequest{
		Items:   items,
		OwnerID: domain.OwnerID(strings.TrimSpace(payload.UserID)),
		Origin:  r.Header.Get("Origin"),
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// authorize сверяет ID token с userId из тела. Без верификатора проверка не выполняется.
func (s *Server) authorize(r *http.Request, userID string) (int, string, bool) {
	if s.opts.Verifier == nil {
		return 0, "", true
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		if s.opts.RequireToken {
			return http.StatusUnauthorized, "missing bearer token", false
		}
		return 0, "", true
	}
	idToken := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if idToken == "" {
		return http.StatusUnauthorized, "empty bearer token", false
	}

	token, err := s.opts.Verifier.VerifyIDToken(r.Context(), idToken)
	if err != nil {
		s.logger.WithError(err).Warn("id token verification failed")
		return http.StatusUnauthorized, "invalid token", false
	}
	if strings.TrimSpace(token.UID) != strings.TrimSpace(userID) {
		s.logger.WithFields(log.Fields{"token_uid": token.UID, "user_id": userID}).Warn("id token does not match userId")
		return http.StatusUnauthorized, "token does not match userId", false
	}
	return 0, "", true
}

// POST /payment-webhook
// Подпись проверяется по байтам тела как они пришли, без повторной сериализации.
func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.opts.Webhooks == nil {
		respondError(w, http.StatusServiceUnavailable, "payment processor is not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	signature := r.Header.Get(payment.SignatureHeader)
	if signature == "" {
		signature = r.Header.Get(legacySignatureHeader)
	}

	if _, err := s.opts.Webhooks.Handle(r.Context(), payload, signature); err != nil {
		switch domain.Kind(err) {
		case domain.KindInvalidSignature:
			respondError(w, http.StatusBadRequest, "webhook signature verification failed")
		case domain.KindValidation:
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			// Процессор повторит доставку.
			respondError(w, http.StatusInternalServerError, "webhook processing failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, WebhookAck{Received: true})
}

// GET /orders/{ownerId}?limit=N
func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	if s.opts.Orders == nil {
		respondError(w, http.StatusServiceUnavailable, "order history is not configured")
		return
	}

	owner := strings.TrimSpace(chi.URLParam(r, "ownerId"))
	if owner == "" {
		respondError(w, http.StatusBadRequest, "ownerId is required")
		return
	}
	if status, msg, ok := s.authorize(r, owner); !ok {
		respondError(w, status, msg)
		return
	}

	limit := defaultOrdersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	orders, err := s.opts.Orders.ListByOwner(r.Context(), domain.OwnerID(owner), limit)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	dtos := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, orderToDTO(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

func orderToDTO(o domain.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ID:       string(item.ID),
			Name:     item.Name,
			Price:    item.UnitPrice,
			Quantity: item.Quantity,
			Image:    item.Image,
		})
	}
	return OrderDTO{
		ID:              o.ID,
		OwnerID:         string(o.OwnerID),
		Email:           o.Email,
		Items:           items,
		Total:           o.Total,
		Status:          string(o.Status),
		SourceSessionID: o.SourceSessionID,
		CreatedAt:       o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// statusFor переводит класс ошибки в HTTP-статус.
func statusFor(err error) int {
	switch domain.Kind(err) {
	case domain.KindValidation, domain.KindUnauthenticated, domain.KindInvalidSignature:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		msg = "internal error"
		if errors.Is(err, domain.ErrUpstreamFailure) || domain.IsUnavailable(err) {
			msg = "payment processor or store is unavailable, please retry"
		}
	}
	respondError(w, status, msg)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, checkout.ErrorBody{Error: msg})
}
