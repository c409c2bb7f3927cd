package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"orderbot/internal/classifier"
	"orderbot/internal/domain"
	"orderbot/internal/events"
	"orderbot/internal/repository"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type())
	}
	return out
}

type sentMessage struct {
	PSID, Text, Token string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(_ context.Context, psid, text, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{psid, text, token})
	return nil
}

type stubClassifier struct {
	guess classifier.Guess
	calls int
}

func (s *stubClassifier) Classify(context.Context, string) classifier.Guess {
	s.calls++
	return s.guess
}

// fixture memory store with one shop, one channel and a router on top
type fixture struct {
	mem     *repository.MemoryStore
	store   *repository.Store
	events  *recordingDispatcher
	orders  *OrderService
	router  *Router
	channel domain.Channel
}

func newFixture(t *testing.T, cls classifier.Classifier) *fixture {
	t.Helper()
	mem := repository.NewMemoryStore()
	store := repository.NewMemoryBackend(mem)
	ch := domain.Channel{ShopID: uuid.New(), Platform: domain.PlatformMessenger, ExternalID: "page-1", AccessToken: "tok-1", IsActive: true}
	require.NoError(t, mem.UpsertChannel(context.Background(), &ch))

	rec := &recordingDispatcher{}
	orders := NewOrderService(store, rec)
	router := NewRouter(NewCatalog(store.Products), NewCustomerService(store.Customers), orders, cls)
	return &fixture{mem: mem, store: store, events: rec, orders: orders, router: router, channel: ch}
}

func (f *fixture) addProduct(t *testing.T, shopID uuid.UUID, name string, price, stock int64, keywords ...string) domain.Product {
	t.Helper()
	p := domain.Product{ShopID: shopID, Name: name, Price: price, Stock: stock, Keywords: keywords, IsActive: true}
	require.NoError(t, f.mem.Create(context.Background(), &p))
	return p
}

func (f *fixture) say(t *testing.T, psid, text string) string {
	t.Helper()
	reply, err := f.router.Handle(context.Background(), Conversation{Channel: f.channel, PSID: psid}, text)
	require.NoError(t, err)
	return reply
}

func (f *fixture) active(t *testing.T, psid string) *domain.Order {
	t.Helper()
	o, err := f.orders.FindActive(context.Background(), f.channel.ShopID, psid)
	require.NoError(t, err)
	return o
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	p, err := f.store.Products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}
