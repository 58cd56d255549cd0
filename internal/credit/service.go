package credit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts the read side used by Service.
type RepositoryPort interface {
	GetCustomerCredit(ctx context.Context, customerID uuid.UUID) (Customer, error)
}

// Service answers credit questions outside of a sale.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Available reports limit, debt and available credit without locking.
func (s *Service) Available(ctx context.Context, customerID uuid.UUID) (Snapshot, error) {
	if customerID == uuid.Nil {
		return Snapshot{}, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	c, err := s.repo.GetCustomerCredit(ctx, customerID)
	if err != nil {
		return Snapshot{}, err
	}
	return SnapshotOf(c), nil
}
