// Package cart держит корзину активной сессии в памяти и сохраняет её изменения в фоне.
package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/session"
)

// ManagerOptions задаёт параметры менеджера корзины.
type ManagerOptions struct {
	Logger       *log.Entry
	RequireLogin *bool
}

// Option настраивает Manager.
type Option func(*ManagerOptions)

// WithLogger задаёт logger менеджера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ManagerOptions) {
		opts.Logger = logger
	}
}

// WithRequireLogin явно включает или выключает запрет add без входа.
// По умолчанию запрет действует, если развёртывание умеет работать с удалённым хранилищем.
func WithRequireLogin(required bool) Option {
	return func(opts *ManagerOptions) {
		opts.RequireLogin = &required
	}
}

// Manager — авторитетная корзина активной сессии. Мутации применяются синхронно,
// запись в хранилище уходит в Persister без ожидания результата.
type Manager struct {
	mu           sync.Mutex
	controller   *session.Controller
	persister    *Persister
	logger       *log.Entry
	requireLogin bool

	identity domain.Identity
	strategy session.Strategy
	cart     domain.Cart
}

// NewManager создаёт менеджер для анонимной сессии устройства с пустой корзиной.
// Для чтения сохранённой корзины нужно вызвать Load.
func NewManager(controller *session.Controller, persister *Persister, options ...Option) *Manager {
	var opts ManagerOptions
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-manager")
	}
	requireLogin := controller.RemoteConfigured()
	if opts.RequireLogin != nil {
		requireLogin = *opts.RequireLogin
	}

	identity := domain.Anonymous()
	return &Manager{
		controller:   controller,
		persister:    persister,
		logger:       logger,
		requireLogin: requireLogin,
		identity:     identity,
		strategy:     controller.Local(identity),
		cart:         domain.NewCart(nil),
	}
}

// Load отбрасывает корзину в памяти и перечитывает документ для identity из хранилища,
// выбранного контроллером режима. Корзины разных identity никогда не сливаются.
// При ошибке чтения корзина в памяти остаётся пустой.
func (m *Manager) Load(ctx context.Context, identity domain.Identity) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.loadLocked(ctx, identity, m.controller.Resolve(ctx, identity))
}

// Refresh перепроверяет режим для текущей identity. Смена режима приводит
// к полной перезагрузке корзины из нового хранилища.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	strategy := m.controller.Resolve(ctx, m.identity)
	if strategy.Mode == m.strategy.Mode {
		return false, nil
	}
	m.logger.WithFields(log.Fields{
		"from": m.strategy.Mode,
		"to":   strategy.Mode,
	}).Info("session mode changed, reloading cart")

	_, err := m.loadLocked(ctx, m.identity, strategy)
	return true, err
}

func (m *Manager) loadLocked(ctx context.Context, identity domain.Identity, strategy session.Strategy) (domain.Cart, error) {
	m.identity = identity
	m.strategy = strategy
	m.cart = domain.NewCart(nil)

	// Незавершённая запись того же ключа не должна затереть только что прочитанный документ.
	if err := m.persister.Flush(ctx); err != nil {
		return m.cart, err
	}

	loaded, err := strategy.Primary.Load(ctx, strategy.Key)
	if err != nil && strategy.CanDegrade(err) {
		m.logger.WithError(err).WithField("owner_key", strategy.Key).Warn("remote backend unavailable, cart read from local store")
		loaded, err = strategy.Fallback.Load(ctx, strategy.Key)
	}
	if err != nil {
		return m.cart, fmt.Errorf("load cart: %w", err)
	}

	m.cart = loaded
	return m.cart, nil
}

// Add добавляет товар или увеличивает количество на 1.
func (m *Manager) Add(p domain.Product) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.requireLogin && !m.identity.Authenticated() {
		return m.cart, fmt.Errorf("add to cart: %w", domain.ErrUnauthenticated)
	}
	if strings.TrimSpace(string(p.ID)) == "" {
		return m.cart, fmt.Errorf("%w: product id is required", domain.ErrValidation)
	}
	if p.Price.IsNegative() {
		return m.cart, fmt.Errorf("%w: product price must be non-negative", domain.ErrValidation)
	}
	return m.applyLocked(m.cart.Add(p)), nil
}

// Remove удаляет позицию; отсутствующий ID ничего не меняет.
func (m *Manager) Remove(id domain.ProductID) domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cart.Find(id); !ok {
		return m.cart
	}
	return m.applyLocked(m.cart.Remove(id))
}

// SetQuantity заменяет количество; n <= 0 удаляет позицию.
func (m *Manager) SetQuantity(id domain.ProductID, n int) domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cart.Find(id); !ok {
		return m.cart
	}
	return m.applyLocked(m.cart.SetQuantity(id, n))
}

// Clear очищает корзину и сохраняет пустой список позиций.
func (m *Manager) Clear() domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.applyLocked(domain.NewCart(nil))
}

func (m *Manager) applyLocked(next domain.Cart) domain.Cart {
	m.cart = next
	m.persister.Submit(m.strategy, next)
	return next
}

// Cart возвращает текущую корзину.
func (m *Manager) Cart() domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart
}

// Total считает сумму по текущим позициям.
func (m *Manager) Total() domain.Money {
	return m.Cart().Total()
}

// Count возвращает количество единиц товара.
func (m *Manager) Count() int {
	return m.Cart().Count()
}

// Identity возвращает identity текущей сессии.
func (m *Manager) Identity() domain.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Mode возвращает режим текущей сессии.
func (m *Manager) Mode() session.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strategy.Mode
}
