package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/merchantkit/backoffice/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, tenant_id, order_number, status, customer_name, customer_email,
		 subtotal, discount_amount, tax_amount, shipping_amount, final_amount,
		 coupon_id, flash_sale_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	createOrderLineSQL = `INSERT INTO order_items
		(order_id, product_id, quantity, unit_price, line_discount, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL = `SELECT id, tenant_id, order_number, status, customer_name, customer_email,
		subtotal, discount_amount, tax_amount, shipping_amount, final_amount,
		coupon_id, flash_sale_id, notes, created_at
		FROM orders WHERE tenant_id = $1 AND id = $2`

	listOrdersSQL = `SELECT id, tenant_id, order_number, status, customer_name, customer_email,
		subtotal, discount_amount, tax_amount, shipping_amount, final_amount,
		coupon_id, flash_sale_id, notes, created_at
		FROM orders WHERE tenant_id = $1 ORDER BY created_at DESC`

	getOrderLinesSQL = `SELECT product_id, quantity, unit_price, line_discount, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $3 WHERE tenant_id = $1 AND id = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository over the given DB.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists the order and all of its lines.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	var couponID, flashSaleID *string
	if o.CouponID != "" {
		couponID = &o.CouponID
	}
	if o.FlashSaleID != "" {
		flashSaleID = &o.FlashSaleID
	}

	_, err := r.db.Exec(ctx, createOrderSQL,
		o.ID, o.TenantID, o.OrderNumber, string(o.Status), o.CustomerName, o.CustomerEmail,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.ShippingAmount, o.FinalAmount,
		couponID, flashSaleID, o.Notes, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, line := range o.Lines {
		_, err := r.db.Exec(ctx, createOrderLineSQL,
			o.ID, line.ProductID, line.Quantity, line.UnitPrice, line.LineDiscount, line.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("creating line for product %q of order %q: %w", line.ProductID, o.ID, err)
		}
	}
	return nil
}

// Get returns one order with its lines.
func (r *OrderRepository) Get(ctx context.Context, tenantID, id string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, getOrderSQL, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	lineRows, err := r.db.Query(ctx, getOrderLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting lines of order %q: %w", id, err)
	}
	o.Lines, err = pgx.CollectRows(lineRows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("getting lines of order %q: %w", id, err)
	}
	return &o, nil
}

// List returns the tenant's orders without lines, newest first.
func (r *OrderRepository) List(ctx context.Context, tenantID string) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, tenantID, id string, status order.Status) error {
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL, tenantID, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		status      string
		couponID    *string
		flashSaleID *string
	)
	err := row.Scan(
		&o.ID, &o.TenantID, &o.OrderNumber, &status, &o.CustomerName, &o.CustomerEmail,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.ShippingAmount, &o.FinalAmount,
		&couponID, &flashSaleID, &o.Notes, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	if couponID != nil {
		o.CouponID = *couponID
	}
	if flashSaleID != nil {
		o.FlashSaleID = *flashSaleID
	}
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var line order.Line
	err := row.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineDiscount, &line.LineTotal)
	return line, err
}
