package service

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotEnoughStock бизнес-отказ: остатка не хватает
	ErrNotEnoughStock = errors.New("not enough stock")
	// ErrProductUnavailable товар пропал или позиция неполная; заказ откатывается в draft
	ErrProductUnavailable = errors.New("product unavailable")
	ErrEmptyOrder         = errors.New("order has no items")
	// ErrStoreNotConfigured хранилище не настроено, события не обрабатываются
	ErrStoreNotConfigured = errors.New("store not configured")
)

// StockError детали нехватки остатка
type StockError struct {
	ProductName string
	Requested   int64
	Available   int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("not enough stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool { return target == ErrNotEnoughStock }
