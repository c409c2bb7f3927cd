package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"orderbot/internal/domain"
	"orderbot/internal/repository"
)

type CustomerService struct {
	repo repository.CustomerRepository
	now  func() time.Time
}

func NewCustomerService(repo repository.CustomerRepository) *CustomerService {
	return &CustomerService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Touch регистрирует покупателя при первом сообщении, иначе обновляет last_seen
func (s *CustomerService) Touch(ctx context.Context, shopID uuid.UUID, psid string) error {
	if psid == "" {
		return ErrInvalidInput
	}
	now := s.now()
	c, err := s.repo.FindByExternalID(ctx, shopID, psid)
	switch {
	case err == nil:
		return s.repo.TouchLastSeen(ctx, c.ID, now)
	case errors.Is(err, repository.ErrNotFound):
		return s.repo.Create(ctx, &domain.Customer{
			ShopID:      shopID,
			Platform:    domain.PlatformMessenger,
			ExternalID:  psid,
			FirstSeenAt: now,
			LastSeenAt:  now,
		})
	default:
		return errors.Wrap(err, "find customer")
	}
}
