package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"orderbot/internal/domain"
	"orderbot/internal/repository"
)

// Catalog поиск товара магазина по тексту сообщения
type Catalog struct {
	products repository.ProductRepository
}

func NewCatalog(products repository.ProductRepository) *Catalog {
	return &Catalog{products: products}
}

// Resolve matches keywords first, then display names. The first active product
// in creation order wins; nil means nothing matched.
func (c *Catalog) Resolve(ctx context.Context, shopID uuid.UUID, text string) (*domain.Product, error) {
	p, _, err := c.Match(ctx, shopID, text)
	return p, err
}

// Match is Resolve that also returns the lowercased keyword or name found in text.
func (c *Catalog) Match(ctx context.Context, shopID uuid.UUID, text string) (*domain.Product, string, error) {
	t := strings.ToLower(text)
	if strings.TrimSpace(t) == "" {
		return nil, "", nil
	}
	products, err := c.products.List(ctx, repository.ProductFilter{ShopID: shopID, ActiveOnly: true})
	if err != nil {
		return nil, "", err
	}

	for i := range products {
		for _, kw := range products[i].Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(t, kw) {
				return &products[i], kw, nil
			}
		}
	}
	for i := range products {
		name := strings.ToLower(strings.TrimSpace(products[i].Name))
		if name != "" && strings.Contains(t, name) {
			return &products[i], name, nil
		}
	}
	return nil, "", nil
}

// withoutProductRef drops the product name and the matched term from text,
// so digits that belong to them ("ps5", "iphone 15") are not read as a quantity.
func withoutProductRef(text string, p *domain.Product, term string) string {
	t := Normalize(text)
	if p != nil {
		if name := Normalize(p.Name); name != "" {
			t = strings.Replace(t, name, " ", 1)
		}
	}
	if term != "" {
		t = strings.Replace(t, term, " ", 1)
	}
	return t
}
