package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/document"
)

// Users — каталог покупателей users/{ownerId} → {email, displayName, createdAt}.
type Users struct {
	store domain.DocumentStore
	now   func() time.Time
}

// NewUsers создаёт каталог пользователей.
func NewUsers(store domain.DocumentStore) *Users {
	return &Users{store: store, now: time.Now}
}

// Email возвращает email пользователя или ErrNotFound, если документа нет.
func (r *Users) Email(ctx context.Context, owner domain.OwnerID) (string, error) {
	id := strings.TrimSpace(string(owner))
	if id == "" {
		return "", fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	doc, err := r.store.Get(ctx, CollectionUsers, id)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return "", fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup user %s: %w", id, err)
	}
	return document.AsString(doc["email"]), nil
}

// EnsureUser создаёт документ пользователя при первом входе; существующий не трогает.
func (r *Users) EnsureUser(ctx context.Context, identity domain.Identity) error {
	if !identity.Authenticated() {
		return fmt.Errorf("ensure user: %w", domain.ErrUnauthenticated)
	}
	err := r.store.Create(ctx, CollectionUsers, string(identity.OwnerID), domain.Document{
		"email":       identity.Email,
		"displayName": identity.DisplayName,
		"createdAt":   r.now().UTC(),
	})
	if err != nil && !errors.Is(err, domain.ErrDocumentExists) {
		return fmt.Errorf("ensure user %s: %w", identity.OwnerID, err)
	}
	return nil
}

var _ domain.UserDirectory = (*Users)(nil)
