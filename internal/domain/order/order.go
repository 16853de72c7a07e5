package order

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. Orders are always created PENDING;
// terminal transitions are owned by order-management workflows, except
// cancellation which this package exposes because it must release inventory.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// Order is the tenant-scoped aggregate root. It owns its Lines; CouponID and
// FlashSaleID are weak references kept for usage-counter bookkeeping only.
//
// Monetary fields satisfy
// FinalAmount = Subtotal - DiscountAmount + TaxAmount + ShippingAmount.
type Order struct {
	ID             string
	TenantID       string
	OrderNumber    string
	Status         Status
	CustomerName   string
	CustomerEmail  string
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	CouponID       string
	FlashSaleID    string
	Notes          string
	Lines          []Line
	CreatedAt      time.Time
}

// Line captures a snapshot of one product-quantity entry at order time.
// UnitPrice is copied from the product record, never referenced live.
type Line struct {
	ProductID    string
	Quantity     int
	UnitPrice    decimal.Decimal
	LineDiscount decimal.Decimal
	LineTotal    decimal.Decimal
}

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	// Create persists the order and all of its lines.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, tenantID, id string) (*Order, error)
	List(ctx context.Context, tenantID string) ([]Order, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status Status) error
}

// newOrderNumber generates a human-referenceable order number.
func newOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return "ORD-" + at.UTC().Format("20060102") + "-" + suffix
}
