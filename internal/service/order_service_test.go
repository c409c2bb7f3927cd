package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbot/internal/domain"
	"orderbot/internal/repository"
)

func startAwaitingConfirmation(t *testing.T, f *fixture, p domain.Product, qty int64) *domain.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.orders.Start(ctx, f.channel, "u1", p)
	require.NoError(t, err)
	_, err = f.orders.SupplyQuantity(ctx, o, qty)
	require.NoError(t, err)
	return o
}

func TestOrder_ConfirmDecrementsStock(t *testing.T) {
	f := newFixture(t, nil)
	p := f.addProduct(t, f.channel.ShopID, "A", 10, 5)
	o := startAwaitingConfirmation(t, f, p, 3)

	d, err := f.orders.Confirm(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, int64(30), d.Total)
	assert.Equal(t, domain.OrderStatusConfirmed, o.Status)
	assert.Equal(t, int64(2), f.stock(t, p.ID))

	// terminal
	assert.ErrorIs(t, f.orders.Cancel(context.Background(), o), domain.ErrInvalidTransition)
	_, err = f.orders.Confirm(context.Background(), o)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestOrder_ConfirmSumsLinesOfOneProduct(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.addProduct(t, f.channel.ShopID, "A", 10, 5)
	o := startAwaitingConfirmation(t, f, p, 3)

	extra := domain.NewOrderItem(o.ID, p, 3)
	require.NoError(t, f.store.OrderItems.Create(ctx, &extra))

	_, err := f.orders.Confirm(ctx, o)
	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, ErrNotEnoughStock)
	assert.Equal(t, int64(6), stockErr.Requested)
	assert.Equal(t, int64(5), stockErr.Available)
	assert.Equal(t, domain.OrderStatusAwaitingConfirmation, o.Status)
	assert.Equal(t, int64(5), f.stock(t, p.ID))
}

func TestOrder_ConfirmEmptyOrderKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := &domain.Order{ShopID: f.channel.ShopID, CustomerExternalID: "u1", Status: domain.OrderStatusAwaitingConfirmation}
	require.NoError(t, f.store.Orders.Create(ctx, o))

	_, err := f.orders.Confirm(ctx, o)
	assert.ErrorIs(t, err, ErrEmptyOrder)
	got, _ := f.store.Orders.GetByID(ctx, o.ID)
	assert.Equal(t, domain.OrderStatusAwaitingConfirmation, got.Status)
}

func TestOrder_ConfirmIncompleteItemRevertsToDraft(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.addProduct(t, f.channel.ShopID, "A", 10, 5)
	o := &domain.Order{ShopID: f.channel.ShopID, CustomerExternalID: "u1", Status: domain.OrderStatusAwaitingConfirmation}
	require.NoError(t, f.store.Orders.Create(ctx, o))
	// legacy row stored without quantity
	legacy := domain.OrderItem{OrderID: o.ID, ProductID: p.ID, UnitPrice: 10}
	require.NoError(t, f.store.OrderItems.Create(ctx, &legacy))

	_, err := f.orders.Confirm(ctx, o)
	assert.ErrorIs(t, err, ErrProductUnavailable)
	got, _ := f.store.Orders.GetByID(ctx, o.ID)
	assert.Equal(t, domain.OrderStatusDraft, got.Status)
	assert.Equal(t, int64(5), f.stock(t, p.ID))
	assert.Contains(t, f.events.types(), "OrderReset")
}

func TestOrder_ConfirmMissingProductRevertsToDraft(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.addProduct(t, f.channel.ShopID, "A", 10, 5)
	o := startAwaitingConfirmation(t, f, p, 1)

	p.IsActive = false
	require.NoError(t, f.store.Products.Update(ctx, &p))

	_, err := f.orders.Confirm(ctx, o)
	assert.ErrorIs(t, err, ErrProductUnavailable)
	assert.Equal(t, domain.OrderStatusDraft, o.Status)
	assert.Nil(t, o.PendingProduct)
}

func TestOrder_StartRejectsForeignProduct(t *testing.T) {
	f := newFixture(t, nil)
	p := f.addProduct(t, uuid.New(), "A", 10, 5)
	_, err := f.orders.Start(context.Background(), f.channel, "u1", p)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrder_StartWhileAwaitingIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	p := f.addProduct(t, f.channel.ShopID, "A", 10, 5)
	_, err := f.orders.Start(context.Background(), f.channel, "u1", p)
	require.NoError(t, err)
	_, err = f.orders.Start(context.Background(), f.channel, "u1", p)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestOrder_AdminQueriesAreShopScoped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.addProduct(t, f.channel.ShopID, "A", 10, 5)
	o := startAwaitingConfirmation(t, f, p, 2)

	d, err := f.orders.GetOrder(ctx, f.channel.ShopID, o.ID)
	require.NoError(t, err)
	assert.Len(t, d.Items, 1)
	assert.Equal(t, int64(20), d.Total)

	_, err = f.orders.GetOrder(ctx, uuid.New(), o.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := f.orders.ListOrders(ctx, f.channel.ShopID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
