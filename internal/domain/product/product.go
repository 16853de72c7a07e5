package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist for the tenant.
var ErrNotFound = errors.New("product not found")

// Product represents a tenant-scoped catalog item. The price is copied onto
// order lines at order time; persisted orders never reference it live.
type Product struct {
	ID       string
	TenantID string
	Name     string
	Price    decimal.Decimal
	Active   bool
}

// Repository defines read operations for the product catalog. Implementations
// return only active products belonging to the given tenant.
type Repository interface {
	List(ctx context.Context, tenantID string) ([]Product, error)
	GetByID(ctx context.Context, tenantID, id string) (*Product, error)
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]Product, error)
}
