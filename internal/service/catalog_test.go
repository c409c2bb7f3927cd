package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbot/internal/domain"
)

func TestCatalog_Resolve(t *testing.T) {
	f := newFixture(t, nil)
	shop := f.channel.ShopID
	first := f.addProduct(t, shop, "AirPods Pro", 9000, 3, "airpods", "ecouteurs")
	f.addProduct(t, shop, "AirPods Lite", 4000, 3, "airpods")
	casque := f.addProduct(t, shop, "Casque", 3000, 3)
	catalog := NewCatalog(f.store.Products)
	ctx := context.Background()

	// shared keyword: first created wins
	p, err := catalog.Resolve(ctx, shop, "NHEB AIRPODS")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, first.ID, p.ID)

	// name fallback when no keyword matches
	p, err = catalog.Resolve(ctx, shop, "prix du casque")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, casque.ID, p.ID)

	p, err = catalog.Resolve(ctx, shop, "rien")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = catalog.Resolve(ctx, shop, "  ")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestCatalog_MatchReturnsTerm(t *testing.T) {
	f := newFixture(t, nil)
	shop := f.channel.ShopID
	ps5 := f.addProduct(t, shop, "PS5", 90000, 3, "ps5")
	f.addProduct(t, shop, "Manette", 5000, 3)
	catalog := NewCatalog(f.store.Products)

	p, term, err := catalog.Match(context.Background(), shop, "Nheb PS5")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, ps5.ID, p.ID)
	assert.Equal(t, "ps5", term)

	_, term, err = catalog.Match(context.Background(), shop, "prix manette")
	require.NoError(t, err)
	assert.Equal(t, "manette", term)

	p, term, err = catalog.Match(context.Background(), shop, "rien")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, term)
}

func TestWithoutProductRef(t *testing.T) {
	iphone := &domain.Product{Name: "iPhone 15"}
	cases := []struct {
		text string
		p    *domain.Product
		term string
		qty  int64
		ok   bool
	}{
		{"nheb ps5", &domain.Product{Name: "PS5"}, "ps5", 0, false},
		{"nheb 3 ps5", &domain.Product{Name: "PS5"}, "ps5", 3, true},
		{"nheb iphone 15", iphone, "iphone", 0, false},
		{"nheb 2 iphone 15", iphone, "iphone", 2, true},
		{"nheb 2 airpods", nil, "", 2, true},
	}
	for _, c := range cases {
		qty, ok := ParseQuantity(withoutProductRef(c.text, c.p, c.term))
		assert.Equal(t, c.ok, ok, c.text)
		assert.Equal(t, c.qty, qty, c.text)
	}
}

func TestCustomerService_Touch(t *testing.T) {
	f := newFixture(t, nil)
	cs := NewCustomerService(f.store.Customers)
	ctx := context.Background()

	require.NoError(t, cs.Touch(ctx, f.channel.ShopID, "u1"))
	c, err := f.store.Customers.FindByExternalID(ctx, f.channel.ShopID, "u1")
	require.NoError(t, err)
	first := c.LastSeenAt

	require.NoError(t, cs.Touch(ctx, f.channel.ShopID, "u1"))
	c, err = f.store.Customers.FindByExternalID(ctx, f.channel.ShopID, "u1")
	require.NoError(t, err)
	assert.False(t, c.LastSeenAt.Before(first))
	assert.Equal(t, first, c.FirstSeenAt)

	assert.ErrorIs(t, cs.Touch(ctx, f.channel.ShopID, ""), ErrInvalidInput)
}
