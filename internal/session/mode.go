// Package session выбирает бэкенд хранения корзины для текущей сессии пользователя.
package session

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/repository"
)

const defaultPingTimeout = 2 * time.Second

// Mode — режим работы сессии.
type Mode string

const (
	// ModeRemote — пользователь аутентифицирован и удалённое хранилище доступно.
	ModeRemote Mode = "remote"
	// ModeLocal — анонимная сессия или удалённое хранилище недоступно.
	ModeLocal Mode = "local"
)

// ResolveMode возвращает Remote только для аутентифицированного пользователя
// при доступном удалённом бэкенде. Любая другая комбинация даёт Local.
func ResolveMode(authenticated, backendReachable bool) Mode {
	if authenticated && backendReachable {
		return ModeRemote
	}
	return ModeLocal
}

// Strategy — выбранный для сессии способ хранения корзины.
// Значение неизменяемо; при смене режима строится новая стратегия.
type Strategy struct {
	Mode Mode
	// Key — ключ документа корзины.
	Key string
	// Primary — хранилище, в которое идут чтения и записи.
	Primary domain.CartRepository
	// Fallback — локальное хранилище для деградации отдельной операции в Remote-режиме.
	// В Local-режиме nil.
	Fallback domain.CartRepository
}

// CanDegrade сообщает, что операцию можно повторить на локальном хранилище.
func (s Strategy) CanDegrade(err error) bool {
	return s.Fallback != nil && domain.IsUnavailable(err)
}

// ControllerOptions задаёт параметры контроллера режима.
type ControllerOptions struct {
	Logger      *log.Entry
	PingTimeout time.Duration
}

// Option настраивает Controller.
type Option func(*ControllerOptions)

// WithLogger задаёт logger контроллера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ControllerOptions) {
		opts.Logger = logger
	}
}

// WithPingTimeout ограничивает проверку доступности удалённого бэкенда.
func WithPingTimeout(timeout time.Duration) Option {
	return func(opts *ControllerOptions) {
		opts.PingTimeout = timeout
	}
}

// Controller решает, в каком режиме работает сессия, и выдаёт стратегию хранения.
type Controller struct {
	local       domain.DocumentStore
	remote      domain.DocumentStore
	localCarts  domain.CartRepository
	remoteCarts domain.CartRepository
	logger      *log.Entry
	pingTimeout time.Duration
}

// NewController создаёт контроллер. remote может быть nil для развёртываний только с локальным хранилищем.
func NewController(local, remote domain.DocumentStore, options ...Option) *Controller {
	opts := ControllerOptions{PingTimeout: defaultPingTimeout}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "mode-controller")
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}

	c := &Controller{
		local:       local,
		remote:      remote,
		localCarts:  repository.NewCarts(local),
		logger:      logger,
		pingTimeout: opts.PingTimeout,
	}
	if remote != nil {
		c.remoteCarts = repository.NewCarts(remote)
	}
	return c
}

// RemoteConfigured сообщает, что развёртывание умеет работать в Remote-режиме.
func (c *Controller) RemoteConfigured() bool {
	return c.remote != nil
}

// Reachable проверяет доступность удалённого бэкенда.
func (c *Controller) Reachable(ctx context.Context) bool {
	if c.remote == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	if err := c.remote.Ping(pingCtx); err != nil {
		c.logger.WithError(err).Warn("remote backend is unreachable")
		return false
	}
	return true
}

// Resolve выбирает стратегию хранения для identity.
func (c *Controller) Resolve(ctx context.Context, identity domain.Identity) Strategy {
	authenticated := identity.Authenticated()
	reachable := authenticated && c.Reachable(ctx)
	mode := ResolveMode(authenticated, reachable)

	strategy := c.Local(identity)
	if mode == ModeRemote {
		strategy.Mode = ModeRemote
		strategy.Primary = c.remoteCarts
		strategy.Fallback = c.localCarts
	}

	c.logger.WithFields(log.Fields{
		"mode":      mode,
		"owner_key": strategy.Key,
	}).Debug("session mode resolved")
	return strategy
}

// Local возвращает стратегию локального хранилища без проверки удалённого бэкенда.
func (c *Controller) Local(identity domain.Identity) Strategy {
	return Strategy{Mode: ModeLocal, Key: identity.CartKey(), Primary: c.localCarts}
}

// Remote возвращает удалённое хранилище или nil.
func (c *Controller) Remote() domain.DocumentStore {
	return c.remote
}
