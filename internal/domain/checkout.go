package domain

// EventCheckoutSessionCompleted — единственный тип события, который материализует заказ.
const EventCheckoutSessionCompleted = "checkout.session.completed"

// LineItem — позиция checkout-запроса; цена в минорных единицах валюты.
type LineItem struct {
	ProductID  ProductID
	Name       string
	UnitAmount int64
	Quantity   int64
	Image      string
}

// LineItemsFromCart строит по одной позиции процессора на каждую позицию корзины.
func LineItemsFromCart(items []CartItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, LineItem{
			ProductID:  item.ID,
			Name:       item.Name,
			UnitAmount: item.UnitPrice.MinorUnits(),
			Quantity:   int64(item.Quantity),
			Image:      item.Image,
		})
	}
	return out
}

// CheckoutSessionRequest — эфемерный запрос на создание сессии у процессора.
// Строится заново на каждую попытку и нигде не сохраняется.
type CheckoutSessionRequest struct {
	LineItems  []LineItem
	OwnerID    OwnerID
	Email      string
	Currency   string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession — сессия на стороне процессора; для системы важны только id, url и метаданные.
type CheckoutSession struct {
	ID       string
	URL      string
	Metadata map[string]string
}

// PaidLineItem — позиция, которую процессор фактически провёл по сессии.
type PaidLineItem struct {
	ProductID  ProductID
	Name       string
	UnitAmount int64
	Quantity   int64
	Image      string
}

// CartItem переводит оплаченную позицию в снимок позиции заказа.
func (p PaidLineItem) CartItem() CartItem {
	name := p.Name
	if name == "" {
		name = "Product"
	}
	return CartItem{
		ID:        p.ProductID,
		Name:      name,
		UnitPrice: MoneyFromMinor(p.UnitAmount),
		Quantity:  int(p.Quantity),
		Image:     p.Image,
	}
}

// CompletedSession — данные завершённой сессии из уведомления процессора.
type CompletedSession struct {
	ID          string
	Email       string
	AmountTotal int64
	Metadata    map[string]string
}

// Owner извлекает токен корреляции из метаданных сессии.
func (s CompletedSession) Owner() (OwnerID, error) {
	return OwnerFromMetadata(s.Metadata)
}

// PaymentEvent — проверенное уведомление процессора.
type PaymentEvent struct {
	ID      string
	Type    string
	Session CompletedSession
}

// IsCheckoutCompleted сообщает, что событие запускает материализацию заказа.
func (e PaymentEvent) IsCheckoutCompleted() bool {
	return e.Type == EventCheckoutSessionCompleted
}
