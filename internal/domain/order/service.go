package order

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merchantkit/backoffice/internal/domain/audit"
	"github.com/merchantkit/backoffice/internal/domain/coupon"
	"github.com/merchantkit/backoffice/internal/domain/inventory"
	"github.com/merchantkit/backoffice/internal/domain/pricing"
	"github.com/merchantkit/backoffice/internal/domain/product"
	"github.com/merchantkit/backoffice/internal/domain/promo"
)

// maxTxAttempts bounds retries of the whole order transaction on
// serialization conflicts. Business-rule failures are never retried.
const maxTxAttempts = 3

// Stores bundles every repository the order workflow touches, all bound to
// one database transaction.
type Stores struct {
	Products  product.Repository
	Sales     promo.Repository
	Coupons   coupon.Repository
	Inventory inventory.Repository
	Orders    Repository
	History   audit.Recorder
}

// UnitOfWork runs fn inside a single atomic transaction. If fn returns an
// error the transaction rolls back entirely; no partial reservation or
// counter increment is observable.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(tx Stores) error) error
}

// ConflictClassifier reports whether err is a retryable infrastructure-level
// transaction conflict (as opposed to a terminal business-rule failure).
type ConflictClassifier func(err error) bool

// ItemInput is one requested product-quantity pair.
type ItemInput struct {
	ProductID string
	Quantity  int
}

// CreateRequest holds the input for creating an order. Tenant and actor ids
// arrive verified from the request layer.
type CreateRequest struct {
	TenantID       string
	ActorID        string
	Items          []ItemInput
	CouponCode     string
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	CustomerName   string
	CustomerEmail  string
	Notes          string
}

// Service builds order aggregates: it prices the cart, reserves stock, and
// persists the order with its usage-counter bookkeeping in one transaction.
type Service struct {
	uow        UnitOfWork
	filter     *coupon.CodeFilter
	isConflict ConflictClassifier
	now        func() time.Time
}

// NewService creates an order Service. filter may be nil; isConflict decides
// which transaction errors are worth retrying.
func NewService(uow UnitOfWork, filter *coupon.CodeFilter, isConflict ConflictClassifier) *Service {
	return &Service{
		uow:        uow,
		filter:     filter,
		isConflict: isConflict,
		now:        time.Now,
	}
}

// Create validates the request, then runs the pricing and reservation
// transaction, retrying with jittered exponential backoff when the
// transaction aborts on a serialization conflict.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}
	if req.TaxAmount.IsNegative() || req.ShippingAmount.IsNegative() {
		return nil, errors.Wrap(pricing.ErrInvalidPricing, "negative tax or shipping")
	}

	var created *Order
	attempt := func() error {
		err := s.uow.InTx(ctx, func(tx Stores) error {
			o, err := s.createInTx(ctx, tx, req, ids)
			if err != nil {
				return err
			}
			created = o
			return nil
		})
		if err != nil && !s.isConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxTxAttempts-1), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return created, nil
}

// createInTx is one attempt of the order-creation transaction.
func (s *Service) createInTx(ctx context.Context, tx Stores, req CreateRequest, ids []string) (*Order, error) {
	now := s.now()

	// Load all referenced products; fail fast listing every missing id.
	fetched, err := tx.Products.GetByIDs(ctx, req.TenantID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}
	var missing []string
	for _, id := range ids {
		if _, ok := productMap[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &ProductNotFoundError{IDs: missing}
	}

	// Resolve active promotions deterministically.
	sales, err := tx.Sales.ListActive(ctx, req.TenantID, now)
	if err != nil {
		return nil, errors.Wrap(err, "list active flash sales")
	}
	resolved := promo.Resolve(sales, ids)

	// Validate the coupon against the same transaction's state.
	var cpn *coupon.Coupon
	if req.CouponCode != "" {
		cpn, err = coupon.NewRepoValidator(tx.Coupons, s.filter).Validate(ctx, req.TenantID, req.CouponCode, now)
		if err != nil {
			return nil, err
		}
	}

	lines := make([]pricing.Line, len(req.Items))
	for i, item := range req.Items {
		lines[i] = pricing.Line{Product: productMap[item.ProductID], Quantity: item.Quantity}
	}

	result, err := pricing.Price(lines, resolved, cpn, req.TaxAmount, req.ShippingAmount)
	if err != nil {
		return nil, err
	}

	o := buildOrder(req, result, now)

	if err := tx.Orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// Reserve every line; any failure aborts the whole transaction.
	for _, line := range o.Lines {
		if err := tx.Inventory.Reserve(ctx, req.TenantID, line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
	}

	// Consume coupon and promotion budgets with commit-time re-validation.
	if cpn != nil {
		if err := tx.Coupons.ConsumeUse(ctx, req.TenantID, cpn.ID); err != nil {
			return nil, err
		}
	}
	for _, saleID := range sortedKeys(result.SaleUnits) {
		if err := tx.Sales.ConsumeBudget(ctx, req.TenantID, saleID, result.SaleUnits[saleID]); err != nil {
			return nil, err
		}
	}

	if err := s.appendHistory(ctx, tx, o, req.ActorID, "create", "Order created"); err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel releases every line's reservation, marks the order CANCELLED, and
// records the cancellation, all in one transaction. Only PENDING orders are
// cancellable here.
func (s *Service) Cancel(ctx context.Context, tenantID, actorID, orderID, reason string) error {
	return s.uow.InTx(ctx, func(tx Stores) error {
		o, err := tx.Orders.Get(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrNotCancellable
		}

		for _, line := range o.Lines {
			if err := tx.Inventory.Release(ctx, tenantID, line.ProductID, line.Quantity); err != nil {
				return errors.Wrapf(err, "release product %s", line.ProductID)
			}
		}

		if err := tx.Orders.UpdateStatus(ctx, tenantID, orderID, StatusCancelled); err != nil {
			return errors.Wrap(err, "update order status")
		}

		o.Status = StatusCancelled
		return s.appendHistory(ctx, tx, o, actorID, "cancel", reason)
	})
}

// Get returns one order with its lines.
func (s *Service) Get(ctx context.Context, tenantID, orderID string) (*Order, error) {
	var o *Order
	err := s.uow.InTx(ctx, func(tx Stores) error {
		var err error
		o, err = tx.Orders.Get(ctx, tenantID, orderID)
		return err
	})
	return o, err
}

// List returns the tenant's orders, newest first.
func (s *Service) List(ctx context.Context, tenantID string) ([]Order, error) {
	var out []Order
	err := s.uow.InTx(ctx, func(tx Stores) error {
		var err error
		out, err = tx.Orders.List(ctx, tenantID)
		return err
	})
	return out, err
}

func (s *Service) appendHistory(ctx context.Context, tx Stores, o *Order, actorID, action, reason string) error {
	snapshot, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "marshal order snapshot")
	}
	rec := audit.Record{
		TenantID: o.TenantID,
		OrderID:  o.ID,
		ActorID:  actorID,
		Action:   action,
		Status:   string(o.Status),
		Reason:   reason,
		Snapshot: snapshot,
		At:       s.now(),
	}
	if err := tx.History.Append(ctx, rec); err != nil {
		return errors.Wrap(err, "append order history")
	}
	return nil
}

func buildOrder(req CreateRequest, result *pricing.Result, now time.Time) *Order {
	o := &Order{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		OrderNumber:    newOrderNumber(now),
		Status:         StatusPending,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		Subtotal:       result.Subtotal,
		DiscountAmount: result.DiscountAmount,
		TaxAmount:      result.TaxAmount,
		ShippingAmount: result.ShippingAmount,
		FinalAmount:    result.FinalAmount,
		CouponID:       result.CouponID,
		Notes:          req.Notes,
		CreatedAt:      now,
	}
	o.Lines = make([]Line, len(result.Lines))
	for i, lp := range result.Lines {
		o.Lines[i] = Line{
			ProductID:    lp.ProductID,
			Quantity:     lp.Quantity,
			UnitPrice:    lp.UnitPrice,
			LineDiscount: lp.Discount,
			LineTotal:    lp.Total,
		}
		if o.FlashSaleID == "" && lp.SaleID != "" {
			o.FlashSaleID = lp.SaleID
		}
	}
	return o
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
