package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Carts хранит корзину одним документом carts/{ownerKey} → {items, updatedAt}.
type Carts struct {
	store domain.DocumentStore
	now   func() time.Time
}

// NewCarts создаёт репозиторий корзин поверх выбранного бэкенда.
func NewCarts(store domain.DocumentStore) *Carts {
	return &Carts{store: store, now: time.Now}
}

// Load читает корзину; отсутствующий документ даёт пустую корзину, а не ошибку.
func (r *Carts) Load(ctx context.Context, key string) (domain.Cart, error) {
	doc, err := r.store.Get(ctx, CollectionCarts, key)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.NewCart(nil), nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart %s: %w", key, err)
	}
	return domain.NewCart(itemsFromValue(doc["items"])), nil
}

// Save перезаписывает список позиций и отметку updatedAt.
func (r *Carts) Save(ctx context.Context, key string, cart domain.Cart) error {
	doc := domain.Document{
		"items":     itemsToValue(cart.Items()),
		"updatedAt": r.now().UTC(),
	}
	if err := r.store.Set(ctx, CollectionCarts, key, doc, domain.SetOptions{Merge: true}); err != nil {
		return fmt.Errorf("save cart %s: %w", key, err)
	}
	return nil
}

// Clear записывает пустой список позиций.
func (r *Carts) Clear(ctx context.Context, key string) error {
	return r.Save(ctx, key, domain.NewCart(nil))
}

var _ domain.CartRepository = (*Carts)(nil)
