// Package pricing computes order totals from authoritative product prices,
// resolved flash sales, and an optional coupon. It is pure computation: all
// inputs are loaded by the caller inside the order transaction, and all
// side effects (budget consumption) happen there too.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/merchantkit/backoffice/internal/domain/coupon"
	"github.com/merchantkit/backoffice/internal/domain/money"
	"github.com/merchantkit/backoffice/internal/domain/product"
	"github.com/merchantkit/backoffice/internal/domain/promo"
)

// ErrInvalidPricing is returned when a computation yields a negative discount
// or a negative final amount. Totals are never silently clamped.
var ErrInvalidPricing = errors.New("invalid pricing")

// Line pairs an authoritative product record with a requested quantity.
// The unit price always comes from the Product, never from the caller.
type Line struct {
	Product  product.Product
	Quantity int
}

// LinePrice is the priced snapshot of one order line.
type LinePrice struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	// SaleID is the flash sale applied to this line, empty when none.
	SaleID string
}

// Result holds the definitive totals for an order. All amounts are rounded to
// the currency minor unit and satisfy
// FinalAmount = Subtotal - DiscountAmount + TaxAmount + ShippingAmount.
type Result struct {
	Lines             []LinePrice
	Subtotal          decimal.Decimal
	PromotionDiscount decimal.Decimal
	CouponDiscount    decimal.Decimal
	DiscountAmount    decimal.Decimal
	TaxAmount         decimal.Decimal
	ShippingAmount    decimal.Decimal
	FinalAmount       decimal.Decimal
	// SaleUnits maps each applied flash sale to the units it must have
	// budget for; the caller consumes these inside the transaction.
	SaleUnits map[string]int
	CouponID  string
}

// Price computes the order totals. sales maps product id to the single flash
// sale resolved for it (see promo.Resolve); cpn may be nil.
//
// Per-order caps and remaining budgets are checked here against the loaded
// counters; the commit-time guarded updates re-validate them, so a stale
// check can only fail the transaction, never oversell a promotion.
func Price(lines []Line, sales map[string]*promo.FlashSale, cpn *coupon.Coupon, tax, shipping decimal.Decimal) (*Result, error) {
	if tax.IsNegative() || shipping.IsNegative() {
		return nil, errors.Wrap(ErrInvalidPricing, "negative tax or shipping")
	}

	res := &Result{
		Lines:             make([]LinePrice, 0, len(lines)),
		Subtotal:          money.Zero,
		PromotionDiscount: money.Zero,
		CouponDiscount:    money.Zero,
		TaxAmount:         money.RoundMinor(tax),
		ShippingAmount:    money.RoundMinor(shipping),
	}

	saleUnits := make(map[string]int)
	for _, line := range lines {
		lp := LinePrice{
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
			Subtotal:  money.MulQty(line.Product.Price, line.Quantity),
			Discount:  money.Zero,
		}

		if sale, ok := sales[line.Product.ID]; ok {
			if sale.MaxPerOrder > 0 && line.Quantity > sale.MaxPerOrder {
				return nil, &promo.LimitError{
					SaleID:     sale.ID,
					ProductID:  line.Product.ID,
					MaxPerUnit: sale.MaxPerOrder,
				}
			}
			if remaining := sale.Remaining(); remaining >= 0 {
				// Aggregate across lines sharing the sale so a multi-line
				// order cannot pass line-by-line yet exceed the budget.
				requested := saleUnits[sale.ID] + line.Quantity
				if remaining < requested {
					return nil, &promo.ExhaustedError{
						SaleID:    sale.ID,
						Remaining: remaining - saleUnits[sale.ID],
						Requested: line.Quantity,
					}
				}
			}
			saleUnits[sale.ID] += line.Quantity
			lp.SaleID = sale.ID
			lp.Discount = saleDiscount(sale, lp.Subtotal, line.Quantity)
		}

		if lp.Discount.IsNegative() {
			return nil, errors.Wrapf(ErrInvalidPricing, "negative discount on product %s", line.Product.ID)
		}

		// Rounding happens once here, at the values that get persisted.
		lp.Discount = money.RoundMinor(lp.Discount)
		lp.Total = lp.Subtotal.Sub(lp.Discount)

		res.Subtotal = res.Subtotal.Add(lp.Subtotal)
		res.PromotionDiscount = res.PromotionDiscount.Add(lp.Discount)
		res.Lines = append(res.Lines, lp)
	}

	if cpn != nil {
		res.CouponID = cpn.ID
		res.CouponDiscount = couponDiscount(cpn, res.Subtotal)
		if res.CouponDiscount.IsNegative() {
			return nil, errors.Wrapf(ErrInvalidPricing, "negative coupon discount for %s", cpn.Code)
		}
		res.CouponDiscount = money.RoundMinor(res.CouponDiscount)
	}

	res.Subtotal = money.RoundMinor(res.Subtotal)
	res.DiscountAmount = res.PromotionDiscount.Add(res.CouponDiscount)
	res.FinalAmount = res.Subtotal.Sub(res.DiscountAmount).Add(res.TaxAmount).Add(res.ShippingAmount)

	if res.FinalAmount.IsNegative() {
		return nil, errors.Wrap(ErrInvalidPricing, "final amount is negative")
	}

	if len(saleUnits) > 0 {
		res.SaleUnits = saleUnits
	}
	return res, nil
}

// saleDiscount computes the unrounded flash-sale discount for one line.
func saleDiscount(sale *promo.FlashSale, lineSubtotal decimal.Decimal, quantity int) decimal.Decimal {
	switch sale.DiscountType {
	case promo.DiscountPercentage:
		return money.Percent(lineSubtotal, sale.DiscountValue)
	case promo.DiscountFixed:
		return money.MulQty(sale.DiscountValue, quantity)
	default:
		return money.Zero
	}
}

// couponDiscount computes the unrounded coupon discount over the pre-coupon
// subtotal. Fixed coupons are flat per order, not per unit.
func couponDiscount(c *coupon.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case coupon.DiscountPercentage:
		return money.Percent(subtotal, c.Value)
	case coupon.DiscountFixed:
		return c.Value
	default:
		return money.Zero
	}
}
