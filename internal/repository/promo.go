package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/merchantkit/backoffice/internal/domain/promo"
)

const (
	listFlashSalesSQL = `SELECT id, tenant_id, name, discount_type, discount_value, product_ids,
		start_time, end_time, max_per_order, total_quantity, sold_quantity, active
		FROM flash_sales WHERE tenant_id = $1 AND active ORDER BY start_time DESC, id`

	// Half-open window [start_time, end_time). Ordered by start time then id
	// so promotion resolution is deterministic.
	listActiveFlashSalesSQL = `SELECT id, tenant_id, name, discount_type, discount_value, product_ids,
		start_time, end_time, max_per_order, total_quantity, sold_quantity, active
		FROM flash_sales
		WHERE tenant_id = $1 AND active AND start_time <= $2 AND end_time > $2
		ORDER BY start_time, id`

	createFlashSaleSQL = `INSERT INTO flash_sales
		(id, tenant_id, name, discount_type, discount_value, product_ids,
		 start_time, end_time, max_per_order, total_quantity, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	// Guarded increment: succeeds only while the unit budget still covers
	// qty, re-validated under the row lock at commit time.
	consumeFlashSaleBudgetSQL = `UPDATE flash_sales SET sold_quantity = sold_quantity + $3
		WHERE tenant_id = $1 AND id = $2
		  AND (total_quantity IS NULL OR sold_quantity + $3 <= total_quantity)`

	getFlashSaleBudgetSQL = `SELECT total_quantity, sold_quantity
		FROM flash_sales WHERE tenant_id = $1 AND id = $2`
)

var _ promo.Repository = (*FlashSaleRepository)(nil)

// FlashSaleRepository implements promo.Repository backed by PostgreSQL.
type FlashSaleRepository struct {
	db DB
}

// NewFlashSaleRepository returns a FlashSaleRepository over the given DB.
func NewFlashSaleRepository(db DB) *FlashSaleRepository {
	return &FlashSaleRepository{db: db}
}

// List returns the tenant's flash sales, newest window first.
func (r *FlashSaleRepository) List(ctx context.Context, tenantID string) ([]promo.FlashSale, error) {
	rows, err := r.db.Query(ctx, listFlashSalesSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing flash sales: %w", err)
	}
	return pgx.CollectRows(rows, scanFlashSale)
}

// ListActive returns the sales whose window contains at.
func (r *FlashSaleRepository) ListActive(ctx context.Context, tenantID string, at time.Time) ([]promo.FlashSale, error) {
	rows, err := r.db.Query(ctx, listActiveFlashSalesSQL, tenantID, at)
	if err != nil {
		return nil, fmt.Errorf("listing active flash sales: %w", err)
	}
	return pgx.CollectRows(rows, scanFlashSale)
}

// Create persists a new flash sale.
func (r *FlashSaleRepository) Create(ctx context.Context, s *promo.FlashSale) error {
	var maxPerOrder, totalQuantity *int32
	if s.MaxPerOrder > 0 {
		v := int32(s.MaxPerOrder)
		maxPerOrder = &v
	}
	if s.TotalQuantity > 0 {
		v := int32(s.TotalQuantity)
		totalQuantity = &v
	}

	_, err := r.db.Exec(ctx, createFlashSaleSQL,
		s.ID, s.TenantID, s.Name, string(s.DiscountType), s.DiscountValue, s.ProductIDs,
		s.StartTime, s.EndTime, maxPerOrder, totalQuantity, s.Active,
	)
	if err != nil {
		return fmt.Errorf("creating flash sale %q: %w", s.ID, err)
	}
	return nil
}

// ConsumeBudget adds qty to sold_quantity while the budget covers it. On a
// miss it re-reads the counters to report the exact remainder.
func (r *FlashSaleRepository) ConsumeBudget(ctx context.Context, tenantID, id string, qty int) error {
	tag, err := r.db.Exec(ctx, consumeFlashSaleBudgetSQL, tenantID, id, qty)
	if err != nil {
		return fmt.Errorf("consuming budget of flash sale %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var total, sold *int32
	err = r.db.QueryRow(ctx, getFlashSaleBudgetSQL, tenantID, id).Scan(&total, &sold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promo.ErrNotFound
		}
		return fmt.Errorf("reading budget of flash sale %q: %w", id, err)
	}

	remaining := 0
	if total != nil && sold != nil {
		remaining = int(*total - *sold)
	}
	return &promo.ExhaustedError{SaleID: id, Remaining: remaining, Requested: qty}
}

func scanFlashSale(row pgx.CollectableRow) (promo.FlashSale, error) {
	var (
		s             promo.FlashSale
		discountType  string
		discountValue decimal.Decimal
		maxPerOrder   *int32
		totalQuantity *int32
		soldQuantity  int32
	)
	err := row.Scan(
		&s.ID, &s.TenantID, &s.Name, &discountType, &discountValue, &s.ProductIDs,
		&s.StartTime, &s.EndTime, &maxPerOrder, &totalQuantity, &soldQuantity, &s.Active,
	)
	s.DiscountType = promo.DiscountType(discountType)
	s.DiscountValue = discountValue
	if maxPerOrder != nil {
		s.MaxPerOrder = int(*maxPerOrder)
	}
	if totalQuantity != nil {
		s.TotalQuantity = int(*totalQuantity)
	}
	s.SoldQuantity = int(soldQuantity)
	return s, err
}
