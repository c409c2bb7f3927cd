package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"orderbot/internal/domain"
)

var (
	// ErrNotFound возвращается, когда сущность не найдена
	ErrNotFound = errors.New("not found")
	// ErrStockConflict условное списание не прошло: остатка меньше, чем списываем
	ErrStockConflict = errors.New("stock changed concurrently")
	// ErrSchemaMismatch вставка отклонена из-за отсутствующей колонки; можно повторить в старом формате
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// ProductFilter параметры фильтрации списка товаров магазина
type ProductFilter struct {
	ShopID        uuid.UUID
	NameSubstring string
	ActiveOnly    bool
}

// ChannelRepository каналы читаются только для определения магазина
type ChannelRepository interface {
	FindActiveByExternalID(ctx context.Context, platform, externalID string) (*domain.Channel, error)
}

// CustomerRepository интерфейс репозитория покупателей
type CustomerRepository interface {
	FindByExternalID(ctx context.Context, shopID uuid.UUID, externalID string) (*domain.Customer, error)
	Create(ctx context.Context, c *domain.Customer) error
	TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ProductRepository интерфейс репозитория товаров
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Update(ctx context.Context, p *domain.Product) error
	// List возвращает товары в порядке создания
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	// DecrementStock списывает qty только если остаток не уйдёт в минус
	DecrementStock(ctx context.Context, id uuid.UUID, qty int64) error
}

// OrderRepository интерфейс репозитория заказов
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	// FindActive самый свежий активный заказ покупателя в магазине
	FindActive(ctx context.Context, shopID uuid.UUID, customerExternalID string) (*domain.Order, error)
	ListByShop(ctx context.Context, shopID uuid.UUID) ([]domain.Order, error)
}

// OrderItemRepository интерфейс репозитория позиций заказа
type OrderItemRepository interface {
	Create(ctx context.Context, it *domain.OrderItem) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
}

// TxManager абстракция транзакции. Для in-memory: глобальная блокировка записи.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store набор репозиториев одного бэкенда
type Store struct {
	Channels   ChannelRepository
	Customers  CustomerRepository
	Products   ProductRepository
	Orders     OrderRepository
	OrderItems OrderItemRepository
	Tx         TxManager
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
