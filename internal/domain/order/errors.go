package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for order validation and lifecycle.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrNotFound        = errors.New("order not found")
	// ErrNotCancellable is returned when cancelling an order that already
	// left the PENDING state.
	ErrNotCancellable = errors.New("order is not in a cancellable state")
)

// ProductNotFoundError lists every requested product id that does not resolve
// to an active product of the tenant. The whole request fails fast, not
// item by item.
type ProductNotFoundError struct {
	IDs []string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("products not found: %s", strings.Join(e.IDs, ", "))
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}
