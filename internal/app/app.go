// Package app собирает storefront-api из конфигурации: хранилища, платёжный шлюз,
// HTTP API, служебный сервер метрик и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/repository"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Run поднимает сервис и блокируется до отмены ctx или падения HTTP-сервера.
// При штатной остановке возвращает ctx.Err().
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(version.Fields()).Info("starting storefront-api")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	gateway, err := initPaymentGateway(cfg, logger)
	if err != nil {
		return err
	}
	verifier, err := initTokenVerifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	// Kafka необязательна: без неё заказы создаются, но события не публикуются.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	apiHandler := buildAPI(cfg, deps, gateway, verifier, producer != nil, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("documents", deps.storageChecker)
	if deps.ledgerChecker != nil {
		healthHandler.RegisterChecker("ledger", deps.ledgerChecker)
	}
	healthHandler.RegisterChecker("payment", healthcheck.NewConfiguredChecker(
		"payment", gateway != nil, "payment processor is not configured"))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	outboxDone := startOutboxWorker(workerCtx, cfg, deps.outboxRepo, producer, logger)
	cleanupDone := startLedgerCleanupWorker(workerCtx, cfg, deps.ledger, logger)

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		cancelWorkers()
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		return err
	}
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: apiHandler, ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	stop := func() {
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		stopWorker("outbox-worker", cancelWorkers, outboxDone, cfg.ShutdownTimeout, logger)
		stopWorker("ledger-cleanup-worker", cancelWorkers, cleanupDone, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		stop()
		return ctx.Err()
	case err := <-errCh:
		stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildAPI связывает репозитории, checkout и HTTP-роутер.
func buildAPI(
	cfg Config,
	deps runtimeDependencies,
	gateway domain.PaymentGateway,
	verifier httpapi.TokenVerifier,
	publishEvents bool,
	logger *log.Entry,
) http.Handler {
	checkoutMetrics := metrics.NewCheckoutMetrics()
	carts := repository.NewCarts(deps.documents)
	orders := repository.NewOrders(deps.documents)
	users := repository.NewUsers(deps.documents)

	opts := []httpapi.Option{
		httpapi.WithLogger(logger.WithField("component", "http-api")),
		httpapi.WithOrders(orders),
		httpapi.WithAllowedOrigins(cfg.CORSAllowedOrigins...),
		httpapi.WithRequestTimeout(cfg.RequestTimeout),
	}
	if verifier != nil {
		opts = append(opts, httpapi.WithTokenVerifier(verifier, cfg.RequireIDToken))
	}

	if gateway != nil {
		sessions := checkout.NewSessionService(gateway, users,
			checkout.WithSessionLogger(logger.WithField("component", "checkout-sessions")),
			checkout.WithSessionMetrics(checkoutMetrics),
			checkout.WithCurrency(cfg.Currency),
			checkout.WithDefaultOrigin(cfg.DefaultOrigin),
		)

		webhookOpts := []checkout.WebhookOption{
			checkout.WithWebhookLogger(logger.WithField("component", "payment-webhook")),
			checkout.WithWebhookMetrics(checkoutMetrics),
			checkout.WithLedger(deps.ledger, cfg.LedgerTTL),
		}
		if publishEvents {
			webhookOpts = append(webhookOpts, checkout.WithOutbox(deps.outboxRepo))
		}
		webhooks := checkout.NewWebhookProcessor(gateway, orders, carts, webhookOpts...)

		opts = append(opts, httpapi.WithPayments(sessions, webhooks))
	}

	return httpapi.NewServer(opts...)
}

// startOutboxWorker запускает публикацию order.completed; без producer возвращает nil.
func startOutboxWorker(ctx context.Context, cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) <-chan struct{} {
	if producer == nil {
		return nil
	}
	publisher, dlq := orderEventPublishers(producer, cfg)
	worker := outbox.NewWorker(repo, publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)),
		outbox.WithDLQPublisher(dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	return runWorker(ctx, worker.Run)
}

func startLedgerCleanupWorker(ctx context.Context, cfg Config, ledger domain.IdempotencyRepository, logger *log.Entry) <-chan struct{} {
	if ledger == nil {
		return nil
	}
	worker := idempotency.NewCleanupWorker(ledger,
		idempotency.WithLogger(logger.WithField("component", "ledger-cleanup-worker")),
		idempotency.WithMetrics(metrics.NewLedgerCleanupMetricsWithRegisterer(prometheus.DefaultRegisterer)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	return runWorker(ctx, worker.Run)
}

func runWorker(ctx context.Context, run func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return done
}

// stopWorker отменяет контекст воркера и ждёт его завершения не дольше timeout.
func stopWorker(name string, cancel context.CancelFunc, done <-chan struct{}, timeout time.Duration, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	select {
	case <-done:
	case <-time.After(timeout):
		logger.WithField("worker", name).Warn("worker shutdown timeout exceeded")
	}
}
