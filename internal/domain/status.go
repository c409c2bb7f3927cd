package domain

import "errors"

// OrderStatus тип статуса заказа
type OrderStatus string

const (
	OrderStatusDraft                OrderStatus = "draft"
	OrderStatusAwaitingQuantity     OrderStatus = "awaiting_quantity"
	OrderStatusAwaitingConfirmation OrderStatus = "awaiting_confirmation"
	OrderStatusConfirmed            OrderStatus = "confirmed"
	OrderStatusCancelled            OrderStatus = "cancelled"
)

// ErrInvalidTransition переход не разрешён таблицей состояний
var ErrInvalidTransition = errors.New("invalid order status transition")

// ActiveStatuses статусы, при которых заказ считается активным
var ActiveStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusAwaitingQuantity,
	OrderStatusAwaitingConfirmation,
}

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:                {OrderStatusAwaitingQuantity, OrderStatusCancelled},
	OrderStatusAwaitingQuantity:     {OrderStatusAwaitingConfirmation, OrderStatusDraft, OrderStatusCancelled},
	OrderStatusAwaitingConfirmation: {OrderStatusConfirmed, OrderStatusDraft, OrderStatusCancelled},
}

// IsActive reports whether the order can still be advanced by the customer.
func (s OrderStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// IsTerminal confirmed и cancelled не имеют исходящих переходов
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusCancelled
}

// CanTransition проверяет переход по таблице
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the order to the next status and keeps the pending product
// set only while the order waits for a quantity.
func (o *Order) Transition(to OrderStatus, pending *ProductRef) error {
	if !o.Status.CanTransition(to) {
		return ErrInvalidTransition
	}
	o.Status = to
	if to == OrderStatusAwaitingQuantity {
		o.PendingProduct = pending
	} else {
		o.PendingProduct = nil
	}
	return nil
}
