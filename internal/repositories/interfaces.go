package repositories

import (
	"context"

	domain "github.com/flss-ops/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with the
// categorisation services act on.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// PriceListRepository persists price lists with their rules embedded.
// Rule-level operations are read-modify-write at the service layer; the
// store only deals in whole lists.
type PriceListRepository interface {
	List(ctx context.Context) ([]domain.PriceList, error)
	FindByID(ctx context.Context, priceListID string) (domain.PriceList, error)
	Insert(ctx context.Context, list domain.PriceList) error
	Update(ctx context.Context, list domain.PriceList) error
	Delete(ctx context.Context, priceListID string) error
}
