package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	firestorestore "github.com/vladislavdragonenkov/storefront/internal/storage/firestore"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	documents      domain.DocumentStore
	outboxRepo     domain.OutboxRepository
	ledger         domain.IdempotencyRepository
	storageChecker healthcheck.Checker
	ledgerChecker  healthcheck.Checker
	closeFn        func() error
}

func (d runtimeDependencies) close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	var (
		deps    runtimeDependencies
		pgStore *postgres.Store
		closers []func() error
	)

	switch driver {
	case StorageDriverMemory:
		deps.documents = memory.NewDocumentStore()
		deps.outboxRepo = memory.NewOutboxRepository()
		logger.Info("storage driver: memory")

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return runtimeDependencies{}, errors.New("postgres storage driver requires STOREFRONT_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		pgStore = store
		closers = append(closers, store.Close)
		deps.documents = postgres.NewDocumentStore(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("storage driver: postgres")

	case StorageDriverFirestore:
		if strings.TrimSpace(cfg.FirestoreProjectID) == "" {
			return runtimeDependencies{}, errors.New("firestore storage driver requires STOREFRONT_FIRESTORE_PROJECT_ID")
		}
		client, err := firestorestore.NewClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile)
		if err != nil {
			return runtimeDependencies{}, err
		}
		closers = append(closers, client.Close)
		deps.documents = firestorestore.NewDocumentStore(client)
		// Firestore не хранит outbox: события копятся в памяти процесса до публикации.
		deps.outboxRepo = memory.NewOutboxRepository()
		logger.WithField("project_id", cfg.FirestoreProjectID).Info("storage driver: firestore")

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	ledger, ledgerChecker, ledgerClose, err := initLedger(ctx, cfg, pgStore, logger)
	if err != nil {
		closeAll(closers)
		return runtimeDependencies{}, err
	}
	if ledgerClose != nil {
		closers = append(closers, ledgerClose)
	}

	deps.ledger = ledger
	deps.ledgerChecker = ledgerChecker
	deps.storageChecker = healthcheck.NewPingChecker("documents", 0, deps.documents.Ping)
	deps.closeFn = func() error { return closeAll(closers) }
	return deps, nil
}

func initLedger(ctx context.Context, cfg Config, pgStore *postgres.Store, logger *log.Entry) (domain.IdempotencyRepository, healthcheck.Checker, func() error, error) {
	switch driver := cfg.effectiveLedgerDriver(); driver {
	case LedgerDriverMemory:
		return memory.NewIdempotencyRepository(), nil, nil, nil

	case LedgerDriverPostgres:
		if pgStore == nil {
			return nil, nil, nil, errors.New("postgres ledger requires postgres storage driver")
		}
		return postgres.NewIdempotencyRepository(pgStore), nil, nil, nil

	case LedgerDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		logger.WithField("addr", cfg.RedisAddr).Info("webhook ledger: redis")
		checker := healthcheck.NewPingChecker("ledger", 0, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return redisstore.NewIdempotencyRepository(client), checker, client.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}
}

// closeAll закрывает ресурсы в обратном порядке открытия.
func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
