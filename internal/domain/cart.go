package domain

import "strings"

// ProductID идентифицирует товар каталога.
type ProductID string

// Product — минимальное описание товара, которое попадает в корзину.
type Product struct {
	ID    ProductID
	Name  string
	Price Money
	Image string
}

// CartItem — позиция корзины. Quantity всегда >= 1: позиция с нулём удаляется.
type CartItem struct {
	ID        ProductID `json:"id"`
	Name      string    `json:"name"`
	UnitPrice Money     `json:"price"`
	Quantity  int       `json:"quantity"`
	Image     string    `json:"image,omitempty"`
}

// Subtotal возвращает unitPrice * quantity.
func (i CartItem) Subtotal() Money {
	return i.UnitPrice.Mul(i.Quantity)
}

// Cart — упорядоченный по времени добавления список позиций, уникальных по ID.
// Все операции возвращают новую корзину и не трогают исходный срез,
// поэтому снимок можно безопасно отдавать на асинхронную запись.
type Cart struct {
	items []CartItem
}

// NewCart нормализует позиции: пропускает пустые ID и quantity <= 0,
// дубликаты по ID схлопывает в первую позицию с суммарным количеством.
func NewCart(items []CartItem) Cart {
	out := make([]CartItem, 0, len(items))
	index := make(map[ProductID]int, len(items))
	for _, item := range items {
		item.ID = ProductID(strings.TrimSpace(string(item.ID)))
		if item.ID == "" || item.Quantity <= 0 {
			continue
		}
		if idx, ok := index[item.ID]; ok {
			out[idx].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return Cart{items: out}
}

// Items возвращает копию позиций.
func (c Cart) Items() []CartItem {
	return append([]CartItem(nil), c.items...)
}

// Len — количество различных позиций.
func (c Cart) Len() int {
	return len(c.items)
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Find ищет позицию по ID товара.
func (c Cart) Find(id ProductID) (CartItem, bool) {
	if idx := c.indexOf(id); idx >= 0 {
		return c.items[idx], true
	}
	return CartItem{}, false
}

// Add увеличивает количество существующей позиции на 1 или добавляет новую с quantity=1.
func (c Cart) Add(p Product) Cart {
	items := c.Items()
	if idx := c.indexOf(p.ID); idx >= 0 {
		items[idx].Quantity++
		return Cart{items: items}
	}
	return Cart{items: append(items, CartItem{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
		Image:     p.Image,
	})}
}

// Remove удаляет позицию; отсутствующий ID: не ошибка.
func (c Cart) Remove(id ProductID) Cart {
	idx := c.indexOf(id)
	if idx < 0 {
		return c
	}
	items := make([]CartItem, 0, len(c.items)-1)
	items = append(items, c.items[:idx]...)
	items = append(items, c.items[idx+1:]...)
	return Cart{items: items}
}

// SetQuantity заменяет количество; n <= 0 эквивалентно Remove.
func (c Cart) SetQuantity(id ProductID, n int) Cart {
	if n <= 0 {
		return c.Remove(id)
	}
	idx := c.indexOf(id)
	if idx < 0 {
		return c
	}
	items := c.Items()
	items[idx].Quantity = n
	return Cart{items: items}
}

// Total считает сумму unitPrice * quantity по текущим позициям.
func (c Cart) Total() Money {
	total := Zero()
	for _, item := range c.items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Count считает суммарное количество единиц товара (для бейджа).
func (c Cart) Count() int {
	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

func (c Cart) indexOf(id ProductID) int {
	for i, item := range c.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
