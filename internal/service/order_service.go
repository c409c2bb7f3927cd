package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"orderbot/internal/domain"
	"orderbot/internal/events"
	"orderbot/internal/repository"
)

// OrderService ведёт заказ по состояниям: draft → awaiting_quantity → awaiting_confirmation → confirmed/cancelled
type OrderService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	items    repository.OrderItemRepository
	tx       repository.TxManager
	events   events.Dispatcher
}

func NewOrderService(store *repository.Store, dispatcher events.Dispatcher) *OrderService {
	if dispatcher == nil {
		dispatcher = events.LogDispatcher{}
	}
	return &OrderService{
		products: store.Products,
		orders:   store.Orders,
		items:    store.OrderItems,
		tx:       store.Tx,
		events:   dispatcher,
	}
}

// OrderDetails заказ вместе с позициями для админки
type OrderDetails struct {
	domain.Order
	Items []domain.OrderItem `json:"items"`
	Total int64              `json:"total"`
}

func (s *OrderService) emit(ctx context.Context, e events.Event) {
	if err := s.events.Dispatch(ctx, e); err != nil {
		log.WithError(err).WithFields(log.Fields{"event": e.Type(), "order_id": e.OrderKey()}).Warn("order event dropped")
	}
}

// FindActive returns nil without error when the customer has no active order.
func (s *OrderService) FindActive(ctx context.Context, shopID uuid.UUID, psid string) (*domain.Order, error) {
	o, err := s.orders.FindActive(ctx, shopID, psid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find active order")
	}
	return o, nil
}

// Start создаёт заказ и сразу ждёт количество для товара.
// Оставшийся после сброса draft отменяется, чтобы активный заказ был один.
func (s *OrderService) Start(ctx context.Context, ch domain.Channel, psid string, p domain.Product) (*domain.Order, error) {
	if psid == "" || p.ShopID != ch.ShopID {
		return nil, ErrInvalidInput
	}

	stale, err := s.FindActive(ctx, ch.ShopID, psid)
	if err != nil {
		return nil, err
	}
	if stale != nil {
		if stale.Status != domain.OrderStatusDraft {
			return nil, domain.ErrInvalidTransition
		}
		if err := s.Cancel(ctx, stale); err != nil {
			return nil, err
		}
	}

	o := domain.Order{
		ShopID:             ch.ShopID,
		ChannelID:          ch.ID,
		CustomerExternalID: psid,
		Status:             domain.OrderStatusDraft,
	}
	if err := s.orders.Create(ctx, &o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	s.emit(ctx, events.OrderCreated{OrderID: o.ID, ShopID: o.ShopID, CustomerPSID: psid})

	if err := o.Transition(domain.OrderStatusAwaitingQuantity, &domain.ProductRef{ID: p.ID, Name: p.Name}); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, &o); err != nil {
		return nil, errors.Wrap(err, "set pending product")
	}
	return &o, nil
}

// loadProduct отдаёт товар, только если он ещё принадлежит магазину заказа и активен
func (s *OrderService) loadProduct(ctx context.Context, o *domain.Order, id uuid.UUID) (*domain.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductUnavailable
	}
	if err != nil {
		return nil, errors.Wrap(err, "load product")
	}
	if p.ShopID != o.ShopID || !p.IsActive {
		return nil, ErrProductUnavailable
	}
	return p, nil
}

// SupplyQuantity записывает позицию для ожидаемого товара. Остаток только проверяется, не резервируется.
// При нехватке заказ остаётся в awaiting_quantity.
func (s *OrderService) SupplyQuantity(ctx context.Context, o *domain.Order, qty int64) (*domain.OrderItem, error) {
	if qty <= 0 {
		return nil, ErrInvalidInput
	}
	if o.Status != domain.OrderStatusAwaitingQuantity || o.PendingProduct == nil {
		return nil, domain.ErrInvalidTransition
	}

	p, err := s.loadProduct(ctx, o, o.PendingProduct.ID)
	if errors.Is(err, ErrProductUnavailable) {
		if rerr := s.Reset(ctx, o, "pending product unavailable"); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if qty > p.Stock {
		return nil, &StockError{ProductName: p.Name, Requested: qty, Available: p.Stock}
	}

	item := domain.NewOrderItem(o.ID, *p, qty)
	if err := s.items.Create(ctx, &item); err != nil {
		return nil, errors.Wrap(err, "add order item")
	}
	if err := o.Transition(domain.OrderStatusAwaitingConfirmation, nil); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "await confirmation")
	}
	s.emit(ctx, events.ItemAdded{
		OrderID:     o.ID,
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		Quantity:    item.Quantity,
		LineTotal:   item.LineTotal,
	})
	return &item, nil
}

// Confirm re-checks stock and decrements it inside one transaction.
// Missing products or incomplete items send the order back to draft.
func (s *OrderService) Confirm(ctx context.Context, o *domain.Order) (*OrderDetails, error) {
	if o.Status != domain.OrderStatusAwaitingConfirmation {
		return nil, domain.ErrInvalidTransition
	}
	items, err := s.items.ListByOrder(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load order items")
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	// sum per product so two lines of one product are checked together
	need := make(map[uuid.UUID]int64)
	var ids []uuid.UUID
	var total int64
	for _, it := range items {
		if !it.Complete() {
			return nil, s.resetUnavailable(ctx, o, "incomplete order item")
		}
		if _, seen := need[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		need[it.ProductID] += it.Quantity
		total += it.LineTotal
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			p, err := s.loadProduct(ctx, o, id)
			if err != nil {
				return err
			}
			if need[id] > p.Stock {
				return &StockError{ProductName: p.Name, Requested: need[id], Available: p.Stock}
			}
		}
		for _, id := range ids {
			if err := s.products.DecrementStock(ctx, id, need[id]); err != nil {
				if errors.Is(err, repository.ErrStockConflict) {
					return s.stockConflict(ctx, o, id, need[id])
				}
				return errors.Wrap(err, "decrement stock")
			}
		}
		if err := o.Transition(domain.OrderStatusConfirmed, nil); err != nil {
			return err
		}
		return s.orders.Update(ctx, o)
	})
	if errors.Is(err, ErrProductUnavailable) {
		return nil, s.resetUnavailable(ctx, o, "product unavailable at confirmation")
	}
	if err != nil {
		// status may have been set before a failed write
		o.Status = domain.OrderStatusAwaitingConfirmation
		return nil, err
	}

	s.emit(ctx, events.OrderConfirmed{OrderID: o.ID, ShopID: o.ShopID, Total: total, Items: len(items)})
	return &OrderDetails{Order: *o, Items: items, Total: total}, nil
}

func (s *OrderService) stockConflict(ctx context.Context, o *domain.Order, id uuid.UUID, requested int64) error {
	p, err := s.loadProduct(ctx, o, id)
	if err != nil {
		return err
	}
	return &StockError{ProductName: p.Name, Requested: requested, Available: p.Stock}
}

func (s *OrderService) resetUnavailable(ctx context.Context, o *domain.Order, reason string) error {
	if err := s.Reset(ctx, o, reason); err != nil {
		return err
	}
	return ErrProductUnavailable
}

// Reset мягкий откат в draft; ожидаемый товар очищается
func (s *OrderService) Reset(ctx context.Context, o *domain.Order, reason string) error {
	if err := o.Transition(domain.OrderStatusDraft, nil); err != nil {
		return err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return errors.Wrap(err, "reset order")
	}
	s.emit(ctx, events.OrderReset{OrderID: o.ID, Reason: reason})
	return nil
}

// Cancel отменяет активный заказ из любого состояния
func (s *OrderService) Cancel(ctx context.Context, o *domain.Order) error {
	if err := o.Transition(domain.OrderStatusCancelled, nil); err != nil {
		return err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return errors.Wrap(err, "cancel order")
	}
	s.emit(ctx, events.OrderCancelled{OrderID: o.ID, ShopID: o.ShopID})
	return nil
}

// GetOrder заказ магазина с позициями
func (s *OrderService) GetOrder(ctx context.Context, shopID, id uuid.UUID) (*OrderDetails, error) {
	if shopID == uuid.Nil || id == uuid.Nil {
		return nil, ErrInvalidInput
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.ShopID != shopID {
		return nil, repository.ErrNotFound
	}
	items, err := s.items.ListByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &OrderDetails{Order: *o, Items: items}
	for _, it := range items {
		d.Total += it.LineTotal
	}
	return d, nil
}

// ListOrders заказы магазина, новые первыми
func (s *OrderService) ListOrders(ctx context.Context, shopID uuid.UUID) ([]domain.Order, error) {
	if shopID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	return s.orders.ListByShop(ctx, shopID)
}
