package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/session"
)

const defaultWriteTimeout = 5 * time.Second

// snapshot — отложенная запись корзины в хранилище выбранной стратегии.
type snapshot struct {
	strategy session.Strategy
	cart     domain.Cart
}

func (s snapshot) queueKey() string {
	return string(s.strategy.Mode) + "|" + s.strategy.Key
}

// PersisterOptions задаёт параметры фоновой записи.
type PersisterOptions struct {
	Logger       *log.Entry
	Metrics      *metrics.CheckoutMetrics
	WriteTimeout time.Duration
}

// PersisterOption настраивает Persister.
type PersisterOption func(*PersisterOptions)

// WithPersisterLogger задаёт logger.
func WithPersisterLogger(logger *log.Entry) PersisterOption {
	return func(opts *PersisterOptions) {
		opts.Logger = logger
	}
}

// WithPersisterMetrics задаёт метрики записи.
func WithPersisterMetrics(m *metrics.CheckoutMetrics) PersisterOption {
	return func(opts *PersisterOptions) {
		opts.Metrics = m
	}
}

// WithWriteTimeout ограничивает одну запись в хранилище.
func WithWriteTimeout(timeout time.Duration) PersisterOption {
	return func(opts *PersisterOptions) {
		opts.WriteTimeout = timeout
	}
}

// Persister пишет снимки корзины в фоне одним воркером. Для каждого ключа
// хранится только последний снимок: промежуточные состояния схлопываются,
// итог на уровне документа: last-write-wins. Ошибки записи логируются
// и не откатывают состояние в памяти.
type Persister struct {
	mu       sync.Mutex
	pending  map[string]snapshot
	order    []string
	inFlight int
	idle     chan struct{}
	wake     chan struct{}

	logger       *log.Entry
	metrics      *metrics.CheckoutMetrics
	writeTimeout time.Duration
}

// NewPersister создаёт очередь записи. Запись начинается после запуска Run.
func NewPersister(options ...PersisterOption) *Persister {
	opts := PersisterOptions{WriteTimeout: defaultWriteTimeout}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-persister")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	return &Persister{
		pending:      make(map[string]snapshot),
		wake:         make(chan struct{}, 1),
		logger:       logger,
		metrics:      opts.Metrics,
		writeTimeout: opts.WriteTimeout,
	}
}

// Submit ставит снимок в очередь и сразу возвращается.
func (p *Persister) Submit(strategy session.Strategy, cart domain.Cart) {
	s := snapshot{strategy: strategy, cart: cart}
	key := s.queueKey()

	p.mu.Lock()
	if _, queued := p.pending[key]; !queued {
		p.order = append(p.order, key)
	}
	p.pending[key] = s
	if p.idle == nil {
		p.idle = make(chan struct{})
	}
	depth := len(p.pending)
	p.mu.Unlock()

	p.metrics.SetPersistQueueDepth(depth)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Flush ждёт, пока очередь опустеет и текущая запись завершится.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()
	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush cart writes: %w", ctx.Err())
	}
}

// Pending возвращает число снимков в очереди.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Run обрабатывает очередь до отмены ctx. Накопленное на момент остановки дописывается.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx))
			return
		case <-p.wake:
			p.drain(ctx)
		}
	}
}

func (p *Persister) drain(ctx context.Context) {
	for {
		s, ok := p.next()
		if !ok {
			return
		}
		p.write(ctx, s)
		p.done()
	}
}

func (p *Persister) next() (snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.order) == 0 {
		return snapshot{}, false
	}
	key := p.order[0]
	p.order = p.order[1:]
	s := p.pending[key]
	delete(p.pending, key)
	p.inFlight++
	p.metrics.SetPersistQueueDepth(len(p.pending))
	return s, true
}

func (p *Persister) done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inFlight--
	if p.inFlight == 0 && len(p.pending) == 0 && p.idle != nil {
		close(p.idle)
		p.idle = nil
	}
}

func (p *Persister) write(ctx context.Context, s snapshot) {
	logger := p.logger.WithFields(log.Fields{
		"owner_key": s.strategy.Key,
		"mode":      s.strategy.Mode,
		"items":     s.cart.Len(),
	})

	err := p.save(ctx, s.strategy.Primary, s.strategy.Key, s.cart)
	if err == nil {
		p.metrics.RecordCartWrite(metrics.CartWriteOK)
		return
	}

	if s.strategy.CanDegrade(err) {
		logger.WithError(err).Warn("remote backend unavailable, cart write degraded to local store")
		fallbackErr := p.save(ctx, s.strategy.Fallback, s.strategy.Key, s.cart)
		if fallbackErr == nil {
			p.metrics.RecordCartWrite(metrics.CartWriteDegraded)
			return
		}
		err = fallbackErr
	}

	p.metrics.RecordCartWrite(metrics.CartWriteFailed)
	logger.WithError(fmt.Errorf("%w: %w", domain.ErrPersistenceDivergence, err)).Warn("cart write failed, in-memory cart stays authoritative")
}

func (p *Persister) save(ctx context.Context, repo domain.CartRepository, key string, cart domain.Cart) error {
	writeCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	return repo.Save(writeCtx, key, cart)
}
