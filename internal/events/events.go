package events

import (
	"time"

	"github.com/google/uuid"
)

// Event событие жизненного цикла заказа
type Event interface {
	Type() string
	OrderKey() uuid.UUID
}

type OrderCreated struct {
	OrderID      uuid.UUID `json:"order_id"`
	ShopID       uuid.UUID `json:"shop_id"`
	CustomerPSID string    `json:"customer_psid"`
}

func (e OrderCreated) Type() string        { return "OrderCreated" }
func (e OrderCreated) OrderKey() uuid.UUID { return e.OrderID }

type ItemAdded struct {
	OrderID     uuid.UUID `json:"order_id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int64     `json:"quantity"`
	LineTotal   int64     `json:"line_total"`
}

func (e ItemAdded) Type() string        { return "ItemAdded" }
func (e ItemAdded) OrderKey() uuid.UUID { return e.OrderID }

type OrderConfirmed struct {
	OrderID uuid.UUID `json:"order_id"`
	ShopID  uuid.UUID `json:"shop_id"`
	Total   int64     `json:"total"`
	Items   int       `json:"items"`
}

func (e OrderConfirmed) Type() string        { return "OrderConfirmed" }
func (e OrderConfirmed) OrderKey() uuid.UUID { return e.OrderID }

type OrderCancelled struct {
	OrderID uuid.UUID `json:"order_id"`
	ShopID  uuid.UUID `json:"shop_id"`
}

func (e OrderCancelled) Type() string        { return "OrderCancelled" }
func (e OrderCancelled) OrderKey() uuid.UUID { return e.OrderID }

// OrderReset заказ возвращён в draft при подтверждении
type OrderReset struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

func (e OrderReset) Type() string        { return "OrderReset" }
func (e OrderReset) OrderKey() uuid.UUID { return e.OrderID }

// Envelope то, что уходит в топик
type Envelope struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	OrderID    uuid.UUID `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Event     `json:"payload"`
}

func NewEnvelope(e Event) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		Type:       e.Type(),
		OrderID:    e.OrderKey(),
		OccurredAt: time.Now().UTC(),
		Payload:    e,
	}
}
