package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/document"
)

// Orders хранит заказы в коллекции orders. ID документа выводится из sourceSessionId,
// поэтому уникальность заказа на сессию обеспечивает сам бэкенд через Create.
type Orders struct {
	store domain.DocumentStore
}

// NewOrders создаёт репозиторий заказов.
func NewOrders(store domain.DocumentStore) *Orders {
	return &Orders{store: store}
}

// CreateOnce создаёт документ заказа. Если заказ для этой сессии уже есть, возвращает created=false.
func (r *Orders) CreateOnce(ctx context.Context, order domain.Order) (bool, error) {
	if order.ID == "" {
		order.ID = domain.OrderIDForSession(order.SourceSessionID)
	}
	err := r.store.Create(ctx, CollectionOrders, order.ID, orderToDocument(order))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrDocumentExists):
		return false, nil
	default:
		return false, fmt.Errorf("create order %s: %w", order.ID, err)
	}
}

// Get возвращает заказ по ID или ErrNotFound.
func (r *Orders) Get(ctx context.Context, id string) (domain.Order, error) {
	doc, err := r.store.Get(ctx, CollectionOrders, id)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return orderFromDocument(id, doc), nil
}

// ListByOwner возвращает заказы владельца, новые первыми.
func (r *Orders) ListByOwner(ctx context.Context, owner domain.OwnerID, limit int) ([]domain.Order, error) {
	snaps, err := r.store.Query(ctx, domain.Query{
		Collection: CollectionOrders,
		Where:      []domain.Filter{{Field: "ownerId", Value: string(owner)}},
		OrderBy:    []domain.OrderBy{{Field: "createdAt", Desc: true}},
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders of %s: %w", owner, err)
	}

	orders := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		orders = append(orders, orderFromDocument(snap.ID, snap.Data))
	}
	return orders, nil
}

func orderToDocument(o domain.Order) domain.Document {
	return domain.Document{
		"ownerId":         string(o.OwnerID),
		"email":           o.Email,
		"items":           itemsToValue(o.Items),
		"total":           o.Total.Float64(),
		"status":          string(o.Status),
		"sourceSessionId": o.SourceSessionID,
		"createdAt":       o.CreatedAt.UTC(),
	}
}

func orderFromDocument(id string, doc domain.Document) domain.Order {
	createdAt, _ := document.AsTime(doc["createdAt"])
	return domain.Order{
		ID:              id,
		OwnerID:         domain.OwnerID(document.AsString(doc["ownerId"])),
		Email:           document.AsString(doc["email"]),
		Items:           itemsFromValue(doc["items"]),
		Total:           document.AsMoney(doc["total"]),
		Status:          domain.OrderStatus(document.AsString(doc["status"])),
		SourceSessionID: document.AsString(doc["sourceSessionId"]),
		CreatedAt:       createdAt,
	}
}

var _ domain.OrderRepository = (*Orders)(nil)
