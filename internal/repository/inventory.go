package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/merchantkit/backoffice/internal/domain/inventory"
)

const (
	listInventorySQL = `SELECT product_id, tenant_id, quantity, reserved
		FROM inventory WHERE tenant_id = $1 ORDER BY product_id`

	getInventorySQL = `SELECT product_id, tenant_id, quantity, reserved
		FROM inventory WHERE tenant_id = $1 AND product_id = $2`

	// Atomic compare-and-increment: the availability condition is evaluated
	// under the row lock the UPDATE takes, so two concurrent reservations
	// for the same product serialize instead of racing a read-then-write.
	reserveInventorySQL = `UPDATE inventory
		SET reserved = reserved + $3, updated_at = now()
		WHERE tenant_id = $1 AND product_id = $2 AND quantity - reserved >= $3`

	// Clamped at zero so releasing an already-released reservation can never
	// drive the counter negative.
	releaseInventorySQL = `UPDATE inventory
		SET reserved = GREATEST(reserved - $3, 0), updated_at = now()
		WHERE tenant_id = $1 AND product_id = $2`

	// Physical stock may never drop below the amount already reserved.
	adjustInventorySQL = `UPDATE inventory
		SET quantity = quantity + $3, updated_at = now()
		WHERE tenant_id = $1 AND product_id = $2 AND quantity + $3 >= reserved
		RETURNING product_id, tenant_id, quantity, reserved`
)

// ErrAdjustBelowReserved is returned when a stock adjustment would leave
// quantity below the reserved amount.
var ErrAdjustBelowReserved = errors.New("adjustment would drop quantity below reserved")

var _ inventory.Repository = (*InventoryRepository)(nil)

// InventoryRepository implements inventory.Repository backed by PostgreSQL.
type InventoryRepository struct {
	db DB
}

// NewInventoryRepository returns an InventoryRepository over the given DB.
func NewInventoryRepository(db DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// List returns the tenant's inventory records.
func (r *InventoryRepository) List(ctx context.Context, tenantID string) ([]inventory.Record, error) {
	rows, err := r.db.Query(ctx, listInventorySQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	return pgx.CollectRows(rows, scanInventory)
}

// Get returns the record for one product.
func (r *InventoryRepository) Get(ctx context.Context, tenantID, productID string) (*inventory.Record, error) {
	rows, err := r.db.Query(ctx, getInventorySQL, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("getting inventory for product %q: %w", productID, err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanInventory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting inventory for product %q: %w", productID, err)
	}
	return &rec, nil
}

// Reserve commits the increment only if quantity - reserved still covers qty
// at commit time. A missing row counts as zero stock.
func (r *InventoryRepository) Reserve(ctx context.Context, tenantID, productID string, qty int) error {
	tag, err := r.db.Exec(ctx, reserveInventorySQL, tenantID, productID, qty)
	if err != nil {
		return fmt.Errorf("reserving %d of product %q: %w", qty, productID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Guard failed: re-read to report the exact availability.
	rec, err := r.Get(ctx, tenantID, productID)
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			return &inventory.InsufficientError{ProductID: productID, Requested: qty, Available: 0}
		}
		return err
	}
	return &inventory.InsufficientError{ProductID: productID, Requested: qty, Available: rec.Available()}
}

// Release returns qty units to the available pool, clamped at zero.
func (r *InventoryRepository) Release(ctx context.Context, tenantID, productID string, qty int) error {
	_, err := r.db.Exec(ctx, releaseInventorySQL, tenantID, productID, qty)
	if err != nil {
		return fmt.Errorf("releasing %d of product %q: %w", qty, productID, err)
	}
	return nil
}

// AdjustQuantity changes physical stock by delta, rejecting adjustments that
// would leave quantity below reserved.
func (r *InventoryRepository) AdjustQuantity(ctx context.Context, tenantID, productID string, delta int) (*inventory.Record, error) {
	rows, err := r.db.Query(ctx, adjustInventorySQL, tenantID, productID, delta)
	if err != nil {
		return nil, fmt.Errorf("adjusting inventory for product %q: %w", productID, err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanInventory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing row from a rejected adjustment.
			if _, getErr := r.Get(ctx, tenantID, productID); errors.Is(getErr, inventory.ErrNotFound) {
				return nil, inventory.ErrNotFound
			}
			return nil, ErrAdjustBelowReserved
		}
		return nil, fmt.Errorf("adjusting inventory for product %q: %w", productID, err)
	}
	return &rec, nil
}

func scanInventory(row pgx.CollectableRow) (inventory.Record, error) {
	var rec inventory.Record
	err := row.Scan(&rec.ProductID, &rec.TenantID, &rec.Quantity, &rec.Reserved)
	return rec, err
}
