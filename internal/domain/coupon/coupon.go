package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the order subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a flat monetary discount to the order, not per unit.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrInvalid is returned when a coupon code is unknown or disabled for the tenant.
	ErrInvalid = errors.New("invalid coupon code")
	// ErrExpired is returned when a coupon is outside its validity window.
	ErrExpired = errors.New("coupon expired")
	// ErrExhausted is returned when a coupon has no remaining uses.
	ErrExhausted = errors.New("coupon usage limit reached")
)

// Coupon is a tenant-scoped order-level discount with an optional validity
// window and an optional global usage cap.
type Coupon struct {
	ID           string
	TenantID     string
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	// MaxUses caps total redemptions; zero means unlimited.
	MaxUses   int
	UsedCount int
	Active    bool
}

// Repository provides lookup and usage mutation of coupons.
type Repository interface {
	FindByCode(ctx context.Context, tenantID, code string) (*Coupon, error)
	// ListCodes returns all active coupon codes for filter construction.
	ListCodes(ctx context.Context, tenantID string) ([]string, error)
	// ConsumeUse increments used_count only while max_uses still covers it;
	// returns ErrExhausted otherwise. Called inside the order transaction.
	ConsumeUse(ctx context.Context, tenantID, id string) error
}
