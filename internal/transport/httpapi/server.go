// Package httpapi публикует серверную половину checkout по HTTP: создание сессии,
// приём уведомлений процессора и историю заказов.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxSessionBodyBytes   = 1 << 20
	maxWebhookBodyBytes   = 1 << 20
	defaultOrdersLimit    = 50
)

// SessionCreator создаёт checkout-сессию.
type SessionCreator interface {
	Create(ctx context.Context, req checkout.SessionRequest) (checkout.SessionResult, error)
}

// WebhookHandler обрабатывает уведомление процессора по сырому телу.
type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, signature string) (checkout.WebhookResult, error)
}

// TokenVerifier проверяет Firebase ID token; *auth.Client подходит напрямую.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Options задаёт зависимости и параметры HTTP API.
type Options struct {
	Logger         *log.Entry
	Sessions       SessionCreator
	Webhooks       WebhookHandler
	Orders         domain.OrderRepository
	Verifier       TokenVerifier
	RequireToken   bool
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Option настраивает Server.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithPayments подключает создание сессий и обработку уведомлений.
// Без них оба эндпоинта отвечают 503.
func WithPayments(sessions SessionCreator, webhooks WebhookHandler) Option {
	return func(opts *Options) {
		opts.Sessions = sessions
		opts.Webhooks = webhooks
	}
}

// WithOrders подключает историю заказов.
func WithOrders(orders domain.OrderRepository) Option {
	return func(opts *Options) {
		opts.Orders = orders
	}
}

// WithTokenVerifier включает проверку ID token. При required=true запрос без токена отклоняется.
func WithTokenVerifier(verifier TokenVerifier, required bool) Option {
	return func(opts *Options) {
		opts.Verifier = verifier
		opts.RequireToken = required
	}
}

// WithAllowedOrigins задаёт origin-ы для CORS.
func WithAllowedOrigins(origins ...string) Option {
	return func(opts *Options) {
		opts.AllowedOrigins = origins
	}
}

// WithRequestTimeout ограничивает время обработки запроса.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.RequestTimeout = timeout
	}
}

// Server — HTTP API витрины.
type Server struct {
	opts   Options
	logger *log.Entry
	router chi.Router
}

// NewServer собирает роутер chi со всеми маршрутами.
func NewServer(options ...Option) *Server {
	opts := Options{RequestTimeout: defaultRequestTimeout}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{opts: opts, logger: logger}
	s.router = s.routes()
	return s
}

// ServeHTTP реализует http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Origin"},
		MaxAge:         300,
	}))

	r.Post("/checkout-sessions", s.createSession)
	r.Post("/payment-webhook", s.paymentWebhook)
	r.Get("/orders/{ownerId}", s.listOrders)
	return r
}

// requestLogger пишет одну строку на запрос в logrus.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(started).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request failed")
				return
			}
			entry.Debug("request served")
		})
	}
}
