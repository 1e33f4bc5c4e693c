// Package repository строит типизированные репозитории корзин, заказов и пользователей
// поверх единого контракта domain.DocumentStore.
package repository

import (
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/document"
)

// Коллекции документного хранилища.
const (
	CollectionCarts  = "carts"
	CollectionOrders = "orders"
	CollectionUsers  = "users"
)

// itemsToValue кодирует позиции в вид, который принимают все бэкенды:
// список map-ов с числовой ценой в основной единице валюты.
func itemsToValue(items []domain.CartItem) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		m := map[string]any{
			"id":       string(item.ID),
			"name":     item.Name,
			"price":    item.UnitPrice.Float64(),
			"quantity": item.Quantity,
		}
		if item.Image != "" {
			m["image"] = item.Image
		}
		out = append(out, m)
	}
	return out
}

// itemsFromValue разбирает сохранённые позиции. Нераспознанные элементы
// и позиции с quantity <= 0 пропускаются.
func itemsFromValue(v any) []domain.CartItem {
	raw := document.AsSlice(v)
	out := make([]domain.CartItem, 0, len(raw))
	for _, entry := range raw {
		m, ok := document.AsMap(entry)
		if !ok {
			continue
		}
		item := domain.CartItem{
			ID:        domain.ProductID(strings.TrimSpace(document.AsString(m["id"]))),
			Name:      document.AsString(m["name"]),
			UnitPrice: document.AsMoney(m["price"]),
			Quantity:  document.AsInt(m["quantity"]),
			Image:     document.AsString(m["image"]),
		}
		if item.ID == "" || item.Quantity <= 0 {
			continue
		}
		out = append(out, item)
	}
	return out
}
