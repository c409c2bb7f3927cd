package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbot/internal/domain"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "mysql")), mock
}

const (
	fullItemInsert   = "INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, line_total)"
	legacyItemInsert = "INSERT INTO order_items (id, order_id, product_id, unit_price, quantity)"
)

func TestSQLOrderItems_CreateFallsBackToLegacyColumns(t *testing.T) {
	store, mock := newMockStore(t)
	items := &SQLOrderItems{store}

	mock.ExpectExec(regexp.QuoteMeta(fullItemInsert)).
		WillReturnError(&mysql.MySQLError{Number: 1054, Message: "Unknown column 'line_total' in 'field list'"})
	mock.ExpectExec(regexp.QuoteMeta(legacyItemInsert)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	it := domain.OrderItem{OrderID: uuid.New(), ProductID: uuid.New(), ProductName: "AirPods", UnitPrice: 5000, Quantity: 2, LineTotal: 10000}
	require.NoError(t, items.Create(context.Background(), &it))
	assert.NotEqual(t, uuid.Nil, it.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLOrderItems_CreateOtherErrorIsFatal(t *testing.T) {
	store, mock := newMockStore(t)
	items := &SQLOrderItems{store}

	mock.ExpectExec(regexp.QuoteMeta(fullItemInsert)).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})

	it := domain.OrderItem{OrderID: uuid.New(), ProductID: uuid.New(), Quantity: 1}
	err := items.Create(context.Background(), &it)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSchemaMismatch))
	// no legacy retry expected
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLOrderItems_ListComputesLegacyTotals(t *testing.T) {
	store, mock := newMockStore(t)
	items := &SQLOrderItems{store}
	orderID := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "order_id", "product_id", "unit_price", "quantity", "created_at"}).
		AddRow(uuid.NewString(), orderID.String(), uuid.NewString(), int64(5000), int64(3), nil).
		AddRow(uuid.NewString(), orderID.String(), uuid.NewString(), int64(700), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM order_items WHERE order_id = ?")).
		WithArgs(orderID.String()).
		WillReturnRows(rows)

	list, err := items.ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(15000), list[0].LineTotal)
	assert.True(t, list[0].Complete())
	assert.Equal(t, int64(0), list[1].Quantity)
	assert.False(t, list[1].Complete())
}

func TestSQLProducts_DecrementStockGuard(t *testing.T) {
	store, mock := newMockStore(t)
	products := &SQLProducts{store}
	id := uuid.New()

	q := regexp.QuoteMeta("UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?")
	mock.ExpectExec(q).WithArgs(int64(2), id.String(), int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(5), id.String(), int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, products.DecrementStock(context.Background(), id, 2))
	assert.Equal(t, ErrStockConflict, products.DecrementStock(context.Background(), id, 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_WithTransactionRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	products := &SQLProducts{store}
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithTransaction(context.Background(), func(ctx context.Context) error {
		return products.DecrementStock(ctx, id, 1)
	})
	assert.Equal(t, ErrStockConflict, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLOrders_FindActive(t *testing.T) {
	store, mock := newMockStore(t)
	orders := &SQLOrders{store}
	shop, id, pending := uuid.New(), uuid.New(), uuid.New()

	rows := sqlmock.NewRows([]string{"id", "shop_id", "channel_id", "customer_psid", "status",
		"pending_product_id", "pending_product_name", "created_at", "updated_at"}).
		AddRow(id.String(), shop.String(), uuid.NewString(), "psid", "awaiting_quantity",
			pending.String(), "AirPods", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("status IN (?, ?, ?)")).
		WithArgs(shop.String(), "psid", "draft", "awaiting_quantity", "awaiting_confirmation").
		WillReturnRows(rows)

	o, err := orders.FindActive(context.Background(), shop, "psid")
	require.NoError(t, err)
	assert.Equal(t, id, o.ID)
	assert.Equal(t, domain.OrderStatusAwaitingQuantity, o.Status)
	require.NotNil(t, o.PendingProduct)
	assert.Equal(t, pending, o.PendingProduct.ID)
}

func TestSQLOrders_FindActiveNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	orders := &SQLOrders{store}

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := orders.FindActive(context.Background(), uuid.New(), "psid")
	assert.Equal(t, ErrNotFound, err)
}

func TestSQLProducts_ListDecodesKeywords(t *testing.T) {
	store, mock := newMockStore(t)
	products := &SQLProducts{store}
	shop := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "shop_id", "name", "price", "stock", "keywords", "is_active", "created_at"}).
		AddRow(uuid.NewString(), shop.String(), "AirPods", int64(5000), int64(4), `["airpods","ecouteurs"]`, true, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("AND is_active = TRUE AND LOWER(name) LIKE ?")).
		WithArgs(shop.String(), "%air\\_%").
		WillReturnRows(rows)

	list, err := products.List(context.Background(), ProductFilter{ShopID: shop, ActiveOnly: true, NameSubstring: "Air_"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"airpods", "ecouteurs"}, list[0].Keywords)
}
