package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"orderbot/internal/domain"
)

// mysqlErrBadField ER_BAD_FIELD_ERROR: Unknown column
const mysqlErrBadField = 1054

// SQLStore MySQL-хранилище поверх sqlx. Транзакция переносится в контексте.
type SQLStore struct {
	db *sqlx.DB
}

// OpenMySQL подключается к базе; parseTime включается принудительно
func OpenMySQL(dsn string) (*sqlx.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	db, err := sqlx.Connect("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, errors.Wrap(err, "connect mysql")
	}
	return db, nil
}

func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

// NewSQLBackend собирает Store поверх одного подключения
func NewSQLBackend(s *SQLStore) *Store {
	return &Store{
		Channels:   &SQLChannels{s},
		Customers:  &SQLCustomers{s},
		Products:   &SQLProducts{s},
		Orders:     &SQLOrders{s},
		OrderItems: &SQLOrderItems{s},
		Tx:         s,
	}
}

type sqlTxKey struct{}

func (s *SQLStore) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(sqlTxKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// WithTransaction implements TxManager.
func (s *SQLStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(sqlTxKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(context.WithValue(ctx, sqlTxKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// classifyInsertError separates the retryable "unknown column" case from fatal errors.
func classifyInsertError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrBadField {
		return errors.Wrap(ErrSchemaMismatch, me.Message)
	}
	return err
}

// Channels

type SQLChannels struct{ s *SQLStore }

var _ ChannelRepository = (*SQLChannels)(nil)

func (r *SQLChannels) FindActiveByExternalID(ctx context.Context, platform, externalID string) (*domain.Channel, error) {
	var ch domain.Channel
	err := sqlx.GetContext(ctx, r.s.ext(ctx), &ch,
		`SELECT id, shop_id, platform, external_id, access_token, is_active
		 FROM channels WHERE external_id = ? AND platform = ? AND is_active = TRUE LIMIT 1`,
		externalID, platform)
	if err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}

// Customers

type SQLCustomers struct{ s *SQLStore }

var _ CustomerRepository = (*SQLCustomers)(nil)

func (r *SQLCustomers) FindByExternalID(ctx context.Context, shopID uuid.UUID, externalID string) (*domain.Customer, error) {
	var c domain.Customer
	err := sqlx.GetContext(ctx, r.s.ext(ctx), &c,
		`SELECT id, shop_id, platform, external_id, first_seen_at, last_seen_at
		 FROM customers WHERE shop_id = ? AND external_id = ? LIMIT 1`,
		shopID, externalID)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *SQLCustomers) Create(ctx context.Context, c *domain.Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.s.ext(ctx).ExecContext(ctx,
		`INSERT INTO customers (id, shop_id, platform, external_id, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ShopID, c.Platform, c.ExternalID, c.FirstSeenAt, c.LastSeenAt)
	return errors.Wrap(err, "insert customer")
}

func (r *SQLCustomers) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.s.ext(ctx).ExecContext(ctx, `UPDATE customers SET last_seen_at = ? WHERE id = ?`, at, id)
	return errors.Wrap(err, "touch customer")
}

// Products

type productRow struct {
	ID        uuid.UUID      `db:"id"`
	ShopID    uuid.UUID      `db:"shop_id"`
	Name      string         `db:"name"`
	Price     int64          `db:"price"`
	Stock     int64          `db:"stock"`
	Keywords  sql.NullString `db:"keywords"`
	IsActive  bool           `db:"is_active"`
	CreatedAt time.Time      `db:"created_at"`
}

func (row productRow) toDomain() domain.Product {
	p := domain.Product{
		ID:        row.ID,
		ShopID:    row.ShopID,
		Name:      row.Name,
		Price:     row.Price,
		Stock:     row.Stock,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
	}
	if row.Keywords.Valid && row.Keywords.String != "" {
		if err := json.Unmarshal([]byte(row.Keywords.String), &p.Keywords); err != nil {
			log.WithError(err).WithField("product_id", row.ID).Warn("bad keywords json")
		}
	}
	return p
}

func encodeKeywords(kws []string) (string, error) {
	if kws == nil {
		kws = []string{}
	}
	b, err := json.Marshal(kws)
	return string(b), err
}

const productColumns = `id, shop_id, name, price, stock, keywords, is_active, created_at`

type SQLProducts struct{ s *SQLStore }

var _ ProductRepository = (*SQLProducts)(nil)

func (r *SQLProducts) Create(ctx context.Context, p *domain.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	kws, err := encodeKeywords(p.Keywords)
	if err != nil {
		return err
	}
	_, err = r.s.ext(ctx).ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ShopID, p.Name, p.Price, p.Stock, kws, p.IsActive, p.CreatedAt)
	return errors.Wrap(err, "insert product")
}

func (r *SQLProducts) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var row productRow
	err := sqlx.GetContext(ctx, r.s.ext(ctx), &row,
		`SELECT `+productColumns+` FROM products WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	p := row.toDomain()
	return &p, nil
}

func (r *SQLProducts) Update(ctx context.Context, p *domain.Product) error {
	kws, err := encodeKeywords(p.Keywords)
	if err != nil {
		return err
	}
	res, err := r.s.ext(ctx).ExecContext(ctx,
		`UPDATE products SET name = ?, price = ?, stock = ?, keywords = ?, is_active = ? WHERE id = ?`,
		p.Name, p.Price, p.Stock, kws, p.IsActive, p.ID)
	if err != nil {
		return errors.Wrap(err, "update product")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 for unchanged rows too, so confirm existence
		if _, err := r.GetByID(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLProducts) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE shop_id = ?`
	args := []interface{}{f.ShopID}
	if f.ActiveOnly {
		query += ` AND is_active = TRUE`
	}
	if f.NameSubstring != "" {
		query += ` AND LOWER(name) LIKE ?`
		args = append(args, "%"+escapeLike(f.NameSubstring)+"%")
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var rows []productRow
	if err := sqlx.SelectContext(ctx, r.s.ext(ctx), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// DecrementStock single guarded statement: stock never goes below zero.
func (r *SQLProducts) DecrementStock(ctx context.Context, id uuid.UUID, qty int64) error {
	res, err := r.s.ext(ctx).ExecContext(ctx,
		`UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?`, qty, id, qty)
	if err != nil {
		return errors.Wrap(err, "decrement stock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "decrement stock")
	}
	if n == 0 {
		return ErrStockConflict
	}
	return nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range strings.ToLower(s) {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

// Orders

type orderRow struct {
	ID                 uuid.UUID      `db:"id"`
	ShopID             uuid.UUID      `db:"shop_id"`
	ChannelID          uuid.UUID      `db:"channel_id"`
	CustomerPSID       string         `db:"customer_psid"`
	Status             string         `db:"status"`
	PendingProductID   uuid.NullUUID  `db:"pending_product_id"`
	PendingProductName sql.NullString `db:"pending_product_name"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (row orderRow) toDomain() domain.Order {
	o := domain.Order{
		ID:                 row.ID,
		ShopID:             row.ShopID,
		ChannelID:          row.ChannelID,
		CustomerExternalID: row.CustomerPSID,
		Status:             domain.OrderStatus(row.Status),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if row.PendingProductID.Valid {
		o.PendingProduct = &domain.ProductRef{ID: row.PendingProductID.UUID, Name: row.PendingProductName.String}
	}
	return o
}

func pendingColumns(o *domain.Order) (uuid.NullUUID, sql.NullString) {
	if o.PendingProduct == nil {
		return uuid.NullUUID{}, sql.NullString{}
	}
	return uuid.NullUUID{UUID: o.PendingProduct.ID, Valid: true},
		sql.NullString{String: o.PendingProduct.Name, Valid: true}
}

const orderColumns = `id, shop_id, channel_id, customer_psid, status, pending_product_id, pending_product_name, created_at, updated_at`

type SQLOrders struct{ s *SQLStore }

var _ OrderRepository = (*SQLOrders)(nil)

func (r *SQLOrders) Create(ctx context.Context, o *domain.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	pid, pname := pendingColumns(o)
	_, err := r.s.ext(ctx).ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ShopID, o.ChannelID, o.CustomerExternalID, string(o.Status), pid, pname, o.CreatedAt, o.UpdatedAt)
	return errors.Wrap(err, "insert order")
}

func (r *SQLOrders) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, r.s.ext(ctx), &row, `SELECT `+orderColumns+` FROM orders WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	o := row.toDomain()
	return &o, nil
}

func (r *SQLOrders) Update(ctx context.Context, o *domain.Order) error {
	o.UpdatedAt = time.Now().UTC()
	pid, pname := pendingColumns(o)
	_, err := r.s.ext(ctx).ExecContext(ctx,
		`UPDATE orders SET status = ?, pending_product_id = ?, pending_product_name = ?, updated_at = ? WHERE id = ?`,
		string(o.Status), pid, pname, o.UpdatedAt, o.ID)
	return errors.Wrap(err, "update order")
}

func (r *SQLOrders) FindActive(ctx context.Context, shopID uuid.UUID, customerExternalID string) (*domain.Order, error) {
	statuses := make([]string, 0, len(domain.ActiveStatuses))
	for _, s := range domain.ActiveStatuses {
		statuses = append(statuses, string(s))
	}
	query, args, err := sqlx.In(
		`SELECT `+orderColumns+` FROM orders
		 WHERE shop_id = ? AND customer_psid = ? AND status IN (?)
		 ORDER BY created_at DESC LIMIT 1`,
		shopID, customerExternalID, statuses)
	if err != nil {
		return nil, err
	}
	var row orderRow
	if err := sqlx.GetContext(ctx, r.s.ext(ctx), &row, r.s.db.Rebind(query), args...); err != nil {
		return nil, notFound(err)
	}
	o := row.toDomain()
	return &o, nil
}

func (r *SQLOrders) ListByShop(ctx context.Context, shopID uuid.UUID) ([]domain.Order, error) {
	var rows []orderRow
	err := sqlx.SelectContext(ctx, r.s.ext(ctx), &rows,
		`SELECT `+orderColumns+` FROM orders WHERE shop_id = ? ORDER BY created_at DESC`, shopID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Order items

type itemRow struct {
	ID          uuid.UUID      `db:"id"`
	OrderID     uuid.UUID      `db:"order_id"`
	ProductID   uuid.UUID      `db:"product_id"`
	ProductName sql.NullString `db:"product_name"`
	UnitPrice   int64          `db:"unit_price"`
	Quantity    sql.NullInt64  `db:"quantity"`
	LineTotal   sql.NullInt64  `db:"line_total"`
}

// toDomain fills columns older schemas did not store.
func (row itemRow) toDomain() domain.OrderItem {
	it := domain.OrderItem{
		ID:          row.ID,
		OrderID:     row.OrderID,
		ProductID:   row.ProductID,
		ProductName: row.ProductName.String,
		UnitPrice:   row.UnitPrice,
		Quantity:    row.Quantity.Int64,
	}
	if row.LineTotal.Valid {
		it.LineTotal = row.LineTotal.Int64
	} else {
		it.LineTotal = it.UnitPrice * it.Quantity
	}
	return it
}

type SQLOrderItems struct{ s *SQLStore }

var _ OrderItemRepository = (*SQLOrderItems)(nil)

// Create writes the full snapshot and falls back to the legacy column set
// when the table predates product_name/line_total.
func (r *SQLOrderItems) Create(ctx context.Context, it *domain.OrderItem) error {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	err := r.insertFull(ctx, it)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSchemaMismatch) {
		return errors.Wrap(err, "insert order item")
	}
	log.WithError(err).WithField("order_id", it.OrderID).Warn("order_items schema is legacy, retrying with reduced columns")
	return errors.Wrap(r.insertLegacy(ctx, it), "insert legacy order item")
}

func (r *SQLOrderItems) insertFull(ctx context.Context, it *domain.OrderItem) error {
	_, err := r.s.ext(ctx).ExecContext(ctx,
		`INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, line_total)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.OrderID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, it.LineTotal)
	return classifyInsertError(err)
}

func (r *SQLOrderItems) insertLegacy(ctx context.Context, it *domain.OrderItem) error {
	_, err := r.s.ext(ctx).ExecContext(ctx,
		`INSERT INTO order_items (id, order_id, product_id, unit_price, quantity) VALUES (?, ?, ?, ?, ?)`,
		it.ID, it.OrderID, it.ProductID, it.UnitPrice, it.Quantity)
	return classifyInsertError(err)
}

func (r *SQLOrderItems) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	// legacy tables may carry columns itemRow does not map
	var q sqlx.QueryerContext = r.s.db.Unsafe()
	if tx, ok := ctx.Value(sqlTxKey{}).(*sqlx.Tx); ok {
		q = tx.Unsafe()
	}
	var rows []itemRow
	err := sqlx.SelectContext(ctx, q, &rows, `SELECT * FROM order_items WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list order items")
	}
	out := make([]domain.OrderItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Seed support

var _ SeedTarget = (*SQLSeed)(nil)

// SQLSeed SeedTarget поверх MySQL
type SQLSeed struct {
	*SQLProducts
}

func NewSQLSeed(s *SQLStore) *SQLSeed { return &SQLSeed{&SQLProducts{s}} }

func (r *SQLSeed) UpsertShop(ctx context.Context, shop *domain.Shop) error {
	if shop.ID == uuid.Nil {
		shop.ID = uuid.New()
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	_, err := r.s.ext(ctx).ExecContext(ctx,
		`INSERT INTO shops (id, name, created_at) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE name = VALUES(name)`,
		shop.ID, shop.Name, shop.CreatedAt)
	return errors.Wrap(err, "upsert shop")
}

func (r *SQLSeed) UpsertChannel(ctx context.Context, ch *domain.Channel) error {
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	_, err := r.s.ext(ctx).ExecContext(ctx,
		`INSERT INTO channels (id, shop_id, platform, external_id, access_token, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE shop_id = VALUES(shop_id), access_token = VALUES(access_token), is_active = VALUES(is_active)`,
		ch.ID, ch.ShopID, ch.Platform, ch.ExternalID, ch.AccessToken, ch.IsActive)
	return errors.Wrap(err, "upsert channel")
}
