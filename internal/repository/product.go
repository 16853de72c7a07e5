package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/merchantkit/backoffice/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, tenant_id, name, price, active
		FROM products WHERE tenant_id = $1 AND active ORDER BY id`

	getProductByIDSQL = `SELECT id, tenant_id, name, price, active
		FROM products WHERE tenant_id = $1 AND id = $2 AND active`

	getProductsByIDsSQL = `SELECT id, tenant_id, name, price, active
		FROM products WHERE tenant_id = $1 AND id = ANY($2) AND active`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository over the given DB.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns the tenant's active products ordered by ID.
func (r *ProductRepository) List(ctx context.Context, tenantID string) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single active product of the tenant.
func (r *ProductRepository) GetByID(ctx context.Context, tenantID, id string) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getProductByIDSQL, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns the tenant's active products matching any of the given IDs.
// Missing ids are simply absent from the result; the caller decides whether
// that is an error.
func (r *ProductRepository) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.Active)
	return p, err
}
