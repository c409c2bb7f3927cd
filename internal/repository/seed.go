package repository

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"orderbot/internal/domain"
)

// SeedJSON формат файла с начальными данными для memory-драйвера
type SeedJSON struct {
	Shops []SeedShop `json:"shops"`
}

type SeedShop struct {
	ID       uuid.UUID     `json:"id"`
	Name     string        `json:"name"`
	Channels []SeedChannel `json:"channels"`
	Products []SeedProduct `json:"products"`
}

type SeedChannel struct {
	PageID      string `json:"page_id"`
	AccessToken string `json:"access_token"`
}

type SeedProduct struct {
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Stock    int64    `json:"stock"`
	Keywords []string `json:"keywords"`
}

func LoadSeed(filePath string) (*SeedJSON, error) {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var data SeedJSON
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, errors.Wrapf(err, "parse seed %s", filePath)
	}
	return &data, nil
}

// SeedTarget хранилище, в которое можно залить сиды
type SeedTarget interface {
	UpsertShop(ctx context.Context, shop *domain.Shop) error
	UpsertChannel(ctx context.Context, ch *domain.Channel) error
	Create(ctx context.Context, p *domain.Product) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)
}

// Apply заливает магазины, каналы и товары. Товары добавляются только в пустой каталог,
// поэтому повторный запуск не плодит дубликаты.
func (s *SeedJSON) Apply(ctx context.Context, target SeedTarget) error {
	for _, sh := range s.Shops {
		shop := domain.Shop{ID: sh.ID, Name: sh.Name}
		if shop.ID == uuid.Nil {
			// stable id so the seed can be re-applied
			shop.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("shop:"+sh.Name))
		}
		if err := target.UpsertShop(ctx, &shop); err != nil {
			return errors.Wrapf(err, "seed shop %q", sh.Name)
		}
		for _, sc := range sh.Channels {
			ch := domain.Channel{
				ShopID:      shop.ID,
				Platform:    domain.PlatformMessenger,
				ExternalID:  sc.PageID,
				AccessToken: sc.AccessToken,
				IsActive:    true,
			}
			if err := target.UpsertChannel(ctx, &ch); err != nil {
				return errors.Wrapf(err, "seed channel %q", sc.PageID)
			}
		}

		existing, err := target.List(ctx, ProductFilter{ShopID: shop.ID})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		for _, sp := range sh.Products {
			p := domain.Product{
				ShopID:   shop.ID,
				Name:     sp.Name,
				Price:    sp.Price,
				Stock:    sp.Stock,
				Keywords: sp.Keywords,
				IsActive: true,
			}
			if err := target.Create(ctx, &p); err != nil {
				return errors.Wrapf(err, "seed product %q", sp.Name)
			}
		}
	}
	return nil
}
