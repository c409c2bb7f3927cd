package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"orderbot/internal/domain"
	"orderbot/internal/repository"
)

// ProductService каталог магазина для админки
type ProductService struct {
	repo repository.ProductRepository
}

func NewProductService(repo repository.ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

// ProductInput поля, которые админ может задать
type ProductInput struct {
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Stock    int64    `json:"stock"`
	Keywords []string `json:"keywords"`
	IsActive *bool    `json:"is_active,omitempty"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" || in.Price < 0 || in.Stock < 0 {
		return ErrInvalidInput
	}
	return nil
}

// normalizeKeywords lowercases, trims and drops blanks and duplicates.
func normalizeKeywords(kws []string) []string {
	out := make([]string, 0, len(kws))
	seen := make(map[string]struct{}, len(kws))
	for _, kw := range kws {
		kw = Normalize(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func (s *ProductService) Create(ctx context.Context, shopID uuid.UUID, in ProductInput) (*domain.Product, error) {
	if shopID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := domain.Product{
		ShopID:   shopID,
		Name:     strings.TrimSpace(in.Name),
		Price:    in.Price,
		Stock:    in.Stock,
		Keywords: normalizeKeywords(in.Keywords),
		IsActive: in.IsActive == nil || *in.IsActive,
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID товар чужого магазина выглядит как несуществующий
func (s *ProductService) GetByID(ctx context.Context, shopID, id uuid.UUID) (*domain.Product, error) {
	if shopID == uuid.Nil || id == uuid.Nil {
		return nil, ErrInvalidInput
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ShopID != shopID {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (s *ProductService) Update(ctx context.Context, shopID, id uuid.UUID, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.GetByID(ctx, shopID, id)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Price = in.Price
	p.Stock = in.Stock
	p.Keywords = normalizeKeywords(in.Keywords)
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Deactivate мягкое удаление: позиции заказов продолжают ссылаться на товар
func (s *ProductService) Deactivate(ctx context.Context, shopID, id uuid.UUID) error {
	p, err := s.GetByID(ctx, shopID, id)
	if err != nil {
		return err
	}
	p.IsActive = false
	return s.repo.Update(ctx, p)
}

func (s *ProductService) List(ctx context.Context, shopID uuid.UUID, nameSubstring string, includeInactive bool) ([]domain.Product, error) {
	if shopID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	return s.repo.List(ctx, repository.ProductFilter{
		ShopID:        shopID,
		NameSubstring: nameSubstring,
		ActiveOnly:    !includeInactive,
	})
}
