package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageDriverMemory    = "memory"
	StorageDriverPostgres  = "postgres"
	StorageDriverFirestore = "firestore"

	// PaymentDriverAuto выбирает stripe при заданном секретном ключе, иначе disabled.
	PaymentDriverAuto     = "auto"
	PaymentDriverStripe   = "stripe"
	PaymentDriverMock     = "mock"
	PaymentDriverDisabled = "disabled"

	LedgerDriverMemory   = "memory"
	LedgerDriverPostgres = "postgres"
	LedgerDriverRedis    = "redis"

	envPrefix = "STOREFRONT_"
)

// Config описывает настройки запуска storefront-api.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	StorageDriver            string
	PostgresDSN              string
	PostgresAutoMigrate      bool
	FirestoreProjectID       string
	FirestoreCredentialsFile string

	PaymentDriver       string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBase       string
	// MockWebhookSecret подписывает уведомления mock-процессора.
	MockWebhookSecret string
	Currency          string
	DefaultOrigin     string

	KafkaBrokers       string
	KafkaTopic         string
	KafkaDLQTopic      string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	// LedgerDriver пустой: журнал живёт там же, где документы (postgres), иначе в памяти.
	LedgerDriver                string
	RedisAddr                   string
	RedisPassword               string
	RedisDB                     int
	LedgerTTL                   time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	VerifyIDTokens     bool
	RequireIDToken     bool
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		PaymentDriver:     PaymentDriverAuto,
		MockWebhookSecret: "whsec_dev",
		Currency:          "usd",
		DefaultOrigin:     "http://localhost:3000",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		LedgerTTL:                   72 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout:     30 * time.Second,
		ShutdownTimeout:    10 * time.Second,
	}
}

// ConfigFromEnv накладывает переменные STOREFRONT_* поверх DefaultConfig.
func ConfigFromEnv() (Config, error) {
	return configFromLookup(os.LookupEnv)
}

func configFromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	env := envReader{lookup: lookup}

	env.str("HTTP_ADDR", &cfg.HTTPAddr)
	env.str("METRICS_ADDR", &cfg.MetricsAddr)
	env.str("LOG_LEVEL", &cfg.LogLevel)

	env.str("STORAGE_DRIVER", &cfg.StorageDriver)
	env.str("POSTGRES_DSN", &cfg.PostgresDSN)
	env.boolean("POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	env.str("FIRESTORE_PROJECT_ID", &cfg.FirestoreProjectID)
	env.str("FIRESTORE_CREDENTIALS_FILE", &cfg.FirestoreCredentialsFile)

	env.str("PAYMENT_DRIVER", &cfg.PaymentDriver)
	env.str("STRIPE_SECRET_KEY", &cfg.StripeSecretKey)
	env.str("STRIPE_WEBHOOK_SECRET", &cfg.StripeWebhookSecret)
	env.str("STRIPE_API_BASE", &cfg.StripeAPIBase)
	env.str("MOCK_WEBHOOK_SECRET", &cfg.MockWebhookSecret)
	env.str("CURRENCY", &cfg.Currency)
	env.str("DEFAULT_ORIGIN", &cfg.DefaultOrigin)

	env.str("KAFKA_BROKERS", &cfg.KafkaBrokers)
	env.str("KAFKA_TOPIC", &cfg.KafkaTopic)
	env.str("KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)
	env.duration("OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	env.integer("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	env.integer("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	env.duration("OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)

	env.str("LEDGER_DRIVER", &cfg.LedgerDriver)
	env.str("REDIS_ADDR", &cfg.RedisAddr)
	env.str("REDIS_PASSWORD", &cfg.RedisPassword)
	env.integer("REDIS_DB", &cfg.RedisDB)
	env.duration("LEDGER_TTL", &cfg.LedgerTTL)
	env.duration("IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	env.integer("IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	env.boolean("VERIFY_ID_TOKENS", &cfg.VerifyIDTokens)
	env.boolean("REQUIRE_ID_TOKEN", &cfg.RequireIDToken)
	env.list("CORS_ALLOWED_ORIGINS", &cfg.CORSAllowedOrigins)
	env.duration("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	env.duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек, не обращаясь к внешним системам.
func (c Config) Validate() error {
	var errs []error

	switch c.PaymentDriver {
	case PaymentDriverAuto, PaymentDriverMock, PaymentDriverDisabled:
	case PaymentDriverStripe:
		if strings.TrimSpace(c.StripeSecretKey) == "" {
			errs = append(errs, errors.New("payment driver stripe requires STOREFRONT_STRIPE_SECRET_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported payment driver %q", c.PaymentDriver))
	}

	switch c.LedgerDriver {
	case "", LedgerDriverMemory:
	case LedgerDriverPostgres:
		if c.StorageDriver != StorageDriverPostgres {
			errs = append(errs, errors.New("ledger driver postgres requires storage driver postgres"))
		}
	case LedgerDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("ledger driver redis requires STOREFRONT_REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported ledger driver %q", c.LedgerDriver))
	}

	if c.RequireIDToken && !c.VerifyIDTokens {
		errs = append(errs, errors.New("STOREFRONT_REQUIRE_ID_TOKEN needs STOREFRONT_VERIFY_ID_TOKENS"))
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox batch size and max attempts must be positive"))
	}
	if c.OutboxPollInterval <= 0 || c.IdempotencyCleanupInterval <= 0 {
		errs = append(errs, errors.New("worker intervals must be positive"))
	}

	return errors.Join(errs...)
}

// effectivePaymentDriver раскрывает auto в конкретный драйвер.
func (c Config) effectivePaymentDriver() string {
	if c.PaymentDriver != PaymentDriverAuto && c.PaymentDriver != "" {
		return c.PaymentDriver
	}
	if strings.TrimSpace(c.StripeSecretKey) != "" {
		return PaymentDriverStripe
	}
	return PaymentDriverDisabled
}

// effectiveLedgerDriver раскрывает пустое значение по драйверу хранилища.
func (c Config) effectiveLedgerDriver() string {
	if c.LedgerDriver != "" {
		return c.LedgerDriver
	}
	if c.StorageDriver == StorageDriverPostgres {
		return LedgerDriverPostgres
	}
	return LedgerDriverMemory
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) value(key string) (string, bool) {
	raw, ok := r.lookup(envPrefix + key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = v
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return
	}
	*dst = parsed
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return
	}
	*dst = parsed
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return
	}
	*dst = parsed
}

func (r *envReader) list(key string, dst *[]string) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
