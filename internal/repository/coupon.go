package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/merchantkit/backoffice/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, tenant_id, code, discount_type, value,
		valid_from, valid_until, max_uses, used_count, active
		FROM coupons WHERE tenant_id = $1 AND UPPER(code) = UPPER($2) AND active`

	listCouponCodesSQL = `SELECT code FROM coupons WHERE tenant_id = $1 AND active`

	// Guarded increment: succeeds only while the usage budget still covers
	// one more redemption, re-validated under the row lock at commit time.
	consumeCouponUseSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE tenant_id = $1 AND id = $2
		  AND (max_uses IS NULL OR used_count < max_uses)`

	listCouponTenantsSQL = `SELECT DISTINCT tenant_id FROM coupons WHERE active`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db DB
}

// NewCouponRepository returns a CouponRepository over the given DB.
func NewCouponRepository(db DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrInvalid when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, tenantID, code string) (*coupon.Coupon, error) {
	rows, err := r.db.Query(ctx, getCouponByCodeSQL, tenantID, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalid
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// ListCodes returns all active coupon codes of the tenant.
func (r *CouponRepository) ListCodes(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.db.Query(ctx, listCouponCodesSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
}

// ConsumeUse increments used_count while max_uses still covers it. Returns
// coupon.ErrExhausted when the budget is gone (or was consumed concurrently
// since validation).
func (r *CouponRepository) ConsumeUse(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx, consumeCouponUseSQL, tenantID, id)
	if err != nil {
		return fmt.Errorf("consuming use of coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrExhausted
	}
	return nil
}

// TenantIDs returns every tenant with at least one active coupon. Used to
// drive periodic code-filter rebuilds.
func (r *CouponRepository) TenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, listCouponTenantsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon tenants: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var tenant string
		err := row.Scan(&tenant)
		return tenant, err
	})
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		value        decimal.Decimal
		validFrom    *time.Time
		validUntil   *time.Time
		maxUses      *int32
		usedCount    int32
	)
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Code, &discountType, &value,
		&validFrom, &validUntil, &maxUses, &usedCount, &c.Active,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.Value = value
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	if maxUses != nil {
		c.MaxUses = int(*maxUses)
	}
	c.UsedCount = int(usedCount)
	return c, err
}
