package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"orderbot/internal/domain"
)

func TestMemoryStore_ProductCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	shop := uuid.New()

	p := domain.Product{ShopID: shop, Name: "AirPods", Price: 5000, Stock: 5, Keywords: []string{"airpods"}, IsActive: true}
	if err := store.Create(ctx, &p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Fatalf("no id")
	}

	got, err := store.GetByID(ctx, p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("get: %v", err)
	}
	got.Keywords[0] = "mutated"
	again, _ := store.GetByID(ctx, p.ID)
	if again.Keywords[0] != "airpods" {
		t.Fatalf("store leaked keyword slice")
	}

	p.Price = 5500
	if err := store.Update(ctx, &p); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.GetByID(ctx, uuid.New()); err != ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_DecrementStockGuard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := domain.Product{Name: "A", Stock: 2, IsActive: true}
	_ = store.Create(ctx, &p)

	if err := store.DecrementStock(ctx, p.ID, 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := store.DecrementStock(ctx, p.ID, 1); err != ErrStockConflict {
		t.Fatalf("expected stock conflict, got %v", err)
	}
	pp, _ := store.GetByID(ctx, p.ID)
	if pp.Stock != 0 {
		t.Fatalf("stock expected 0, got %v", pp.Stock)
	}
}

func TestMemoryTx_TransactionalDecrement(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tx := NewMemoryTx(store)
	orders := NewMemoryOrders(store)

	// seed product
	p := domain.Product{Name: "A", Price: 10, Stock: 5, IsActive: true}
	if err := store.Create(ctx, &p); err != nil {
		t.Fatal(err)
	}
	o := domain.Order{ShopID: p.ShopID, CustomerExternalID: "psid", Status: domain.OrderStatusAwaitingConfirmation}
	if err := orders.Create(ctx, &o); err != nil {
		t.Fatal(err)
	}

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := store.DecrementStock(ctx, p.ID, 3); err != nil {
			return err
		}
		o.Status = domain.OrderStatusConfirmed
		return orders.Update(ctx, &o)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	pp, _ := store.GetByID(ctx, p.ID)
	if pp.Stock != 2 {
		t.Fatalf("stock expected 2, got %v", pp.Stock)
	}
}

func TestList_OrderAndScope(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	shopA, shopB := uuid.New(), uuid.New()
	add := func(shop uuid.UUID, n string, active bool) {
		p := domain.Product{ShopID: shop, Name: n, IsActive: active}
		if err := store.Create(ctx, &p); err != nil {
			t.Fatal(err)
		}
	}
	add(shopA, "Zeta", true)
	add(shopB, "Other", true)
	add(shopA, "Alpha", true)
	add(shopA, "Hidden", false)

	list, _ := store.List(ctx, ProductFilter{ShopID: shopA, ActiveOnly: true})
	if len(list) != 2 {
		t.Fatalf("expected 2 products, got %d", len(list))
	}
	// creation order, not name order
	if list[0].Name != "Zeta" || list[1].Name != "Alpha" {
		t.Fatalf("unexpected order: %s, %s", list[0].Name, list[1].Name)
	}

	list, _ = store.List(ctx, ProductFilter{ShopID: shopA, NameSubstring: "ALP"})
	if len(list) != 1 {
		t.Fatalf("name filter: got %d", len(list))
	}
}

func TestMemoryOrders_FindActiveMostRecent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	orders := NewMemoryOrders(store)
	shop := uuid.New()

	first := domain.Order{ShopID: shop, CustomerExternalID: "u1", Status: domain.OrderStatusDraft}
	second := domain.Order{ShopID: shop, CustomerExternalID: "u1", Status: domain.OrderStatusAwaitingQuantity}
	done := domain.Order{ShopID: shop, CustomerExternalID: "u1", Status: domain.OrderStatusConfirmed}
	for _, o := range []*domain.Order{&first, &second, &done} {
		if err := orders.Create(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	got, err := orders.FindActive(ctx, shop, "u1")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("expected most recent active order")
	}
	if _, err := orders.FindActive(ctx, uuid.New(), "u1"); err != ErrNotFound {
		t.Fatalf("other shop must not see the order")
	}
}

func TestMemoryCustomers_Touch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	customers := NewMemoryCustomers(store)
	c := domain.Customer{ShopID: uuid.New(), ExternalID: "psid"}
	if err := customers.Create(ctx, &c); err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := customers.TouchLastSeen(ctx, c.ID, at); err != nil {
		t.Fatal(err)
	}
	got, _ := customers.FindByExternalID(ctx, c.ShopID, "psid")
	if !got.LastSeenAt.Equal(at) {
		t.Fatalf("last seen not updated")
	}
}

func TestLoadSeed_Apply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.json")
	body := `{"shops":[{"name":"A","channels":[{"page_id":"123","access_token":"tok"}],
	"products":[{"name":"AirPods","price":5000,"stock":10,"keywords":["airpods"]}]}]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	store := NewMemoryStore()
	if err := seed.Apply(context.Background(), store); err != nil {
		t.Fatalf("apply: %v", err)
	}
	ch, err := store.FindActiveByExternalID(context.Background(), domain.PlatformMessenger, "123")
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	list, _ := store.List(context.Background(), ProductFilter{ShopID: ch.ShopID, ActiveOnly: true})
	if len(list) != 1 || list[0].Stock != 10 {
		t.Fatalf("seeded products: %+v", list)
	}

	// second run keeps the catalog as is
	if err := seed.Apply(context.Background(), store); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	list, _ = store.List(context.Background(), ProductFilter{ActiveOnly: true})
	if len(list) != 1 {
		t.Fatalf("re-apply duplicated products: %d", len(list))
	}
}
