// Package inventory tracks per-product stock and reservation counters.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no inventory row exists for the product.
var ErrNotFound = errors.New("inventory record not found")

// InsufficientError indicates the available-to-sell quantity cannot cover a
// reservation request. Available carries the quantity at decision time so
// callers can render a precise message.
type InsufficientError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient inventory for product %s: %d requested, %d available", e.ProductID, e.Requested, e.Available)
}

// Record is one (tenant, product) stock row.
// Invariant after every committed transaction: 0 <= Reserved <= Quantity.
type Record struct {
	ProductID string
	TenantID  string
	// Quantity is the physical stock on hand.
	Quantity int
	// Reserved is the amount committed to unfulfilled orders.
	Reserved int
}

// Available returns the quantity still free to sell.
func (r *Record) Available() int {
	return r.Quantity - r.Reserved
}

// Repository defines reservation operations. Reserve and Release must run
// inside the order transaction; both are implemented as single guarded
// statements so concurrent orders serialize on the row rather than racing
// a read-then-write.
type Repository interface {
	List(ctx context.Context, tenantID string) ([]Record, error)
	Get(ctx context.Context, tenantID, productID string) (*Record, error)
	// Reserve atomically increments reserved when quantity-reserved still
	// covers qty at commit time; returns InsufficientError otherwise.
	// A missing row counts as zero stock.
	Reserve(ctx context.Context, tenantID, productID string, qty int) error
	// Release decrements reserved by qty, clamped at zero. Releasing more
	// than is reserved (e.g. a duplicate cancellation) is not an error.
	Release(ctx context.Context, tenantID, productID string, qty int) error
	// AdjustQuantity sets physical stock; it never touches reserved and
	// rejects adjustments that would drop quantity below reserved.
	AdjustQuantity(ctx context.Context, tenantID, productID string, delta int) (*Record, error)
}
