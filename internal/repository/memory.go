package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderbot/internal/domain"
)

// MemoryStore объединённое in-memory хранилище всех сущностей бота
type MemoryStore struct {
	mu sync.RWMutex
	// seq задаёт порядок создания, map его не хранит
	seq          int64
	productSeq   map[uuid.UUID]int64
	orderSeq     map[uuid.UUID]int64
	shops        map[uuid.UUID]domain.Shop
	channels     map[uuid.UUID]domain.Channel
	customers    map[uuid.UUID]domain.Customer
	productsByID map[uuid.UUID]domain.Product
	ordersByID   map[uuid.UUID]domain.Order
	items        map[uuid.UUID][]domain.OrderItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		productSeq:   make(map[uuid.UUID]int64),
		orderSeq:     make(map[uuid.UUID]int64),
		shops:        make(map[uuid.UUID]domain.Shop),
		channels:     make(map[uuid.UUID]domain.Channel),
		customers:    make(map[uuid.UUID]domain.Customer),
		productsByID: make(map[uuid.UUID]domain.Product),
		ordersByID:   make(map[uuid.UUID]domain.Order),
		items:        make(map[uuid.UUID][]domain.OrderItem),
	}
}

// NewMemoryBackend собирает Store поверх одного MemoryStore
func NewMemoryBackend(m *MemoryStore) *Store {
	return &Store{
		Channels:   m,
		Customers:  NewMemoryCustomers(m),
		Products:   m,
		Orders:     NewMemoryOrders(m),
		OrderItems: NewMemoryOrderItems(m),
		Tx:         NewMemoryTx(m),
	}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

func (m *MemoryStore) next() int64 {
	m.seq++
	return m.seq
}

// Ensure interfaces
var (
	_ ProductRepository = (*MemoryStore)(nil)
	_ ChannelRepository = (*MemoryStore)(nil)
	_ SeedTarget        = (*MemoryStore)(nil)
)

// UpsertShop онбординг магазинов вне этого сервиса, здесь только сиды
func (m *MemoryStore) UpsertShop(ctx context.Context, shop *domain.Shop) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if shop.ID == uuid.Nil {
		shop.ID = uuid.New()
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	m.shops[shop.ID] = *shop
	return nil
}

// UpsertChannel ищет канал по (platform, external_id), иначе создаёт
func (m *MemoryStore) UpsertChannel(ctx context.Context, ch *domain.Channel) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if ch.Platform == "" {
		ch.Platform = domain.PlatformMessenger
	}
	for id, existing := range m.channels {
		if existing.Platform == ch.Platform && existing.ExternalID == ch.ExternalID {
			ch.ID = id
		}
	}
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	m.channels[ch.ID] = *ch
	return nil
}

func (m *MemoryStore) FindActiveByExternalID(ctx context.Context, platform, externalID string) (*domain.Channel, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	for _, ch := range m.channels {
		if ch.Platform == platform && ch.ExternalID == externalID && ch.IsActive {
			cp := ch
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.productSeq[p.ID] = m.next()
	m.productsByID[p.ID] = copyProduct(*p)
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := copyProduct(p)
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.productsByID[p.ID]; !ok {
		return ErrNotFound
	}
	m.productsByID[p.ID] = copyProduct(*p)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Product, 0)
	for _, p := range m.productsByID {
		if f.ShopID != uuid.Nil && p.ShopID != f.ShopID {
			continue
		}
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		if !containsIgnoreCase(p.Name, f.NameSubstring) {
			continue
		}
		out = append(out, copyProduct(p))
	}
	sort.Slice(out, func(i, j int) bool {
		return m.productSeq[out[i].ID] < m.productSeq[out[j].ID]
	})
	return out, nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id uuid.UUID, qty int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return ErrNotFound
	}
	if p.Stock < qty {
		return ErrStockConflict
	}
	p.Stock -= qty
	m.productsByID[id] = p
	return nil
}

func copyProduct(p domain.Product) domain.Product {
	if p.Keywords != nil {
		p.Keywords = append([]string(nil), p.Keywords...)
	}
	return p
}

// CustomerRepository implementation on wrapper type
type MemoryCustomers struct{ store *MemoryStore }

func NewMemoryCustomers(store *MemoryStore) *MemoryCustomers { return &MemoryCustomers{store: store} }

var _ CustomerRepository = (*MemoryCustomers)(nil)

func (mc *MemoryCustomers) FindByExternalID(ctx context.Context, shopID uuid.UUID, externalID string) (*domain.Customer, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	for _, c := range mc.store.customers {
		if c.ShopID == shopID && c.ExternalID == externalID {
			cp := c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (mc *MemoryCustomers) Create(ctx context.Context, c *domain.Customer) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	mc.store.customers[c.ID] = *c
	return nil
}

func (mc *MemoryCustomers) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	c, ok := mc.store.customers[id]
	if !ok {
		return ErrNotFound
	}
	c.LastSeenAt = at
	mc.store.customers[id] = c
	return nil
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	mo.store.orderSeq[o.ID] = mo.store.next()
	mo.store.ordersByID[o.ID] = copyOrder(*o)
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (mo *MemoryOrders) Update(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if _, ok := mo.store.ordersByID[o.ID]; !ok {
		return ErrNotFound
	}
	o.UpdatedAt = time.Now().UTC()
	mo.store.ordersByID[o.ID] = copyOrder(*o)
	return nil
}

func (mo *MemoryOrders) FindActive(ctx context.Context, shopID uuid.UUID, customerExternalID string) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	var (
		found *domain.Order
		best  int64
	)
	for id, o := range mo.store.ordersByID {
		if o.ShopID != shopID || o.CustomerExternalID != customerExternalID || !o.Status.IsActive() {
			continue
		}
		if seq := mo.store.orderSeq[id]; found == nil || seq > best {
			cp := copyOrder(o)
			found, best = &cp, seq
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (mo *MemoryOrders) ListByShop(ctx context.Context, shopID uuid.UUID) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if o.ShopID == shopID {
			out = append(out, copyOrder(o))
		}
	}
	// newest first, like the SQL store
	sort.Slice(out, func(i, j int) bool {
		return mo.store.orderSeq[out[i].ID] > mo.store.orderSeq[out[j].ID]
	})
	return out, nil
}

func copyOrder(o domain.Order) domain.Order {
	if o.PendingProduct != nil {
		ref := *o.PendingProduct
		o.PendingProduct = &ref
	}
	return o
}

// OrderItemRepository implementation on wrapper type
type MemoryOrderItems struct{ store *MemoryStore }

func NewMemoryOrderItems(store *MemoryStore) *MemoryOrderItems {
	return &MemoryOrderItems{store: store}
}

var _ OrderItemRepository = (*MemoryOrderItems)(nil)

func (mi *MemoryOrderItems) Create(ctx context.Context, it *domain.OrderItem) error {
	mi.store.wlock(ctx)
	defer mi.store.wunlock(ctx)
	if _, ok := mi.store.ordersByID[it.OrderID]; !ok {
		return ErrNotFound
	}
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	mi.store.items[it.OrderID] = append(mi.store.items[it.OrderID], *it)
	return nil
}

func (mi *MemoryOrderItems) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	mi.store.rlock(ctx)
	defer mi.store.runlock(ctx)
	return append([]domain.OrderItem{}, mi.store.items[orderID]...), nil
}

// Tx manager using write lock to emulate transaction boundary
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Для in-memory используем блокировку записи и помечаем контекст, чтобы репозитории пропускали внутренние локи
	if isTx(ctx) {
		return fn(ctx)
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	ctx = context.WithValue(ctx, txKey{}, true)
	return fn(ctx)
}
