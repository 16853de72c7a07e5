// Package repository implements the domain repositories on PostgreSQL via
// pgx. All repositories run against a DB, which both the pool and an open
// transaction satisfy; Store.InTx binds every repository to one transaction
// so the order workflow is atomic.
package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchantkit/backoffice/db"
	"github.com/merchantkit/backoffice/internal/domain/order"
)

// DB is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Store is the unit-of-work entry point over a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ order.UnitOfWork = (*Store)(nil)

// InTx runs fn with every repository bound to one transaction. The
// transaction commits when fn returns nil and rolls back otherwise, so a
// failing step leaves no partial reservation or counter increment behind.
//
// Read-committed isolation suffices here: the hot counters (inventory
// reserved, coupon used_count, flash-sale sold_quantity) are only mutated
// through guarded single-statement updates that re-check their bound under
// the row lock the update itself takes.
func (s *Store) InTx(ctx context.Context, fn func(tx order.Stores) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(Bind(tx))
	})
}

// Bind returns the full repository set bound to db.
func Bind(db DB) order.Stores {
	return order.Stores{
		Products:  NewProductRepository(db),
		Sales:     NewFlashSaleRepository(db),
		Coupons:   NewCouponRepository(db),
		Inventory: NewInventoryRepository(db),
		Orders:    NewOrderRepository(db),
		History:   NewHistoryRepository(db),
	}
}

// SQLSTATE codes signalling transaction-level contention worth retrying.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// IsConflict reports whether err is an infrastructure-level transaction
// conflict (serialization failure or deadlock) that the caller may retry.
// Business-rule failures never classify as conflicts.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}
