package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlatformMessenger единственная платформа, которую сейчас обслуживает бот
const PlatformMessenger = "messenger"

// Shop владелец каталога, заказов и каналов (тенант)
type Shop struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Channel точка входа мессенджера (страница), привязанная к одному магазину
type Channel struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ShopID      uuid.UUID `json:"shop_id" db:"shop_id"`
	Platform    string    `json:"platform" db:"platform"`
	ExternalID  string    `json:"external_id" db:"external_id"`
	AccessToken string    `json:"-" db:"access_token"`
	IsActive    bool      `json:"is_active" db:"is_active"`
}

// Customer отправитель, известный магазину
type Customer struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ShopID      uuid.UUID `json:"shop_id" db:"shop_id"`
	Platform    string    `json:"platform" db:"platform"`
	ExternalID  string    `json:"external_id" db:"external_id"`
	FirstSeenAt time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// Product товар магазина. Price в целых единицах валюты.
type Product struct {
	ID        uuid.UUID `json:"id"`
	ShopID    uuid.UUID `json:"shop_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Stock     int64     `json:"stock"`
	Keywords  []string  `json:"keywords"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductRef ссылка на товар, который ждёт количества
type ProductRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Order заказ одного покупателя
type Order struct {
	ID                 uuid.UUID   `json:"id"`
	ShopID             uuid.UUID   `json:"shop_id"`
	ChannelID          uuid.UUID   `json:"channel_id"`
	CustomerExternalID string      `json:"customer_psid"`
	Status             OrderStatus `json:"status"`
	// PendingProduct не nil только в статусе awaiting_quantity
	PendingProduct *ProductRef `json:"pending_product,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OrderItem позиция заказа: снимок цены и названия на момент добавления
type OrderItem struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	UnitPrice   int64     `json:"unit_price"`
	Quantity    int64     `json:"quantity"`
	LineTotal   int64     `json:"line_total"`
}

// NewOrderItem фиксирует цену и название товара и считает сумму строки
func NewOrderItem(orderID uuid.UUID, p Product, qty int64) OrderItem {
	return OrderItem{
		ID:          uuid.New(),
		OrderID:     orderID,
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitPrice:   p.Price,
		Quantity:    qty,
		LineTotal:   p.Price * qty,
	}
}

// Complete is false for legacy rows stored without a quantity.
func (it OrderItem) Complete() bool {
	return it.Quantity > 0
}
