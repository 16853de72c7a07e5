// Package promo holds flash-sale promotions: time-boxed, quantity-capped
// discounts applicable to specific products.
package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported flash-sale discount strategies.
type DiscountType string

const (
	// DiscountPercentage discounts each eligible line by a percentage of its subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed discounts a fixed amount per unit of the eligible line.
	DiscountFixed DiscountType = "fixed"
)

// ErrNotFound is returned when a requested flash sale does not exist for the tenant.
var ErrNotFound = errors.New("flash sale not found")

// ErrInvalidWindow is returned when a flash sale's end time is not after its start time.
var ErrInvalidWindow = errors.New("end time must be after start time")

// LimitError indicates a line quantity exceeds the promotion's per-order cap.
type LimitError struct {
	SaleID     string
	ProductID  string
	MaxPerUnit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("flash sale %s allows at most %d units of product %s per order", e.SaleID, e.MaxPerUnit, e.ProductID)
}

// ExhaustedError indicates the promotion's total quantity budget cannot cover
// the requested quantity.
type ExhaustedError struct {
	SaleID    string
	Remaining int
	Requested int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("flash sale %s has %d units remaining, %d requested", e.SaleID, e.Remaining, e.Requested)
}

// FlashSale is a tenant-scoped promotion over a set of products within a
// half-open time window [StartTime, EndTime).
type FlashSale struct {
	ID            string
	TenantID      string
	Name          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	ProductIDs    []string
	StartTime     time.Time
	EndTime       time.Time
	// MaxPerOrder caps the quantity of one eligible product per order; zero means uncapped.
	MaxPerOrder int
	// TotalQuantity is the overall unit budget; zero means unlimited.
	TotalQuantity int
	SoldQuantity  int
	Active        bool
}

// ActiveAt reports whether the sale window contains t and the sale is not
// administratively disabled.
func (s *FlashSale) ActiveAt(t time.Time) bool {
	return s.Active && !t.Before(s.StartTime) && t.Before(s.EndTime)
}

// Remaining returns the unconsumed unit budget, or -1 when unlimited.
func (s *FlashSale) Remaining() int {
	if s.TotalQuantity <= 0 {
		return -1
	}
	return s.TotalQuantity - s.SoldQuantity
}

// Status derives the lifecycle status of the sale relative to t.
func (s *FlashSale) Status(t time.Time) string {
	switch {
	case !s.Active:
		return "DISABLED"
	case t.Before(s.StartTime):
		return "SCHEDULED"
	case !t.Before(s.EndTime):
		return "ENDED"
	default:
		return "ACTIVE"
	}
}

// Repository provides lookup and budget mutation of flash sales.
type Repository interface {
	List(ctx context.Context, tenantID string) ([]FlashSale, error)
	// ListActive returns sales whose window contains at, ordered by start
	// time then id so resolution is deterministic.
	ListActive(ctx context.Context, tenantID string, at time.Time) ([]FlashSale, error)
	Create(ctx context.Context, sale *FlashSale) error
	// ConsumeBudget adds qty to sold_quantity only while the budget still
	// covers it; returns ExhaustedError otherwise.
	ConsumeBudget(ctx context.Context, tenantID, id string, qty int) error
}
