package repository

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/merchantkit/backoffice/internal/domain/coupon"
	"github.com/merchantkit/backoffice/internal/domain/inventory"
	"github.com/merchantkit/backoffice/internal/domain/order"
	"github.com/merchantkit/backoffice/internal/domain/promo"
)

var itPool *pgxpool.Pool

// TestMain provisions one postgres container for the whole package. Run with
// -short to skip the container-backed tests entirely.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("backoffice"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skipping integration tests: %v\n", err)
		os.Exit(m.Run())
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err == nil {
		itPool, err = NewPool(ctx, url)
	}
	if err == nil {
		err = RunMigrations(ctx, itPool)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration setup failed: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()
	itPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func requirePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if itPool == nil {
		t.Skip("integration test: requires Docker")
	}
	return itPool
}

// seedProduct inserts a product with stock into a fresh tenant and returns
// the tenant id and product id.
func seedProduct(t *testing.T, price string, stock int) (tenantID, productID string) {
	t.Helper()
	pool := requirePool(t)
	ctx := context.Background()

	tenantID = "t-" + uuid.NewString()[:8]
	productID = "p-" + uuid.NewString()[:8]

	_, err := pool.Exec(ctx,
		`INSERT INTO products (id, tenant_id, name, price) VALUES ($1, $2, $3, $4)`,
		productID, tenantID, "test product", decimal.RequireFromString(price))
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO inventory (product_id, tenant_id, quantity) VALUES ($1, $2, $3)`,
		productID, tenantID, stock)
	require.NoError(t, err)
	return tenantID, productID
}

func TestReserve_ConcurrentNeverOversells(t *testing.T) {
	pool := requirePool(t)
	ctx := context.Background()

	const stock = 10
	const workers = 25
	tenantID, productID := seedProduct(t, "10.00", stock)
	store := NewStore(pool)

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.InTx(ctx, func(tx order.Stores) error {
				return tx.Inventory.Reserve(ctx, tenantID, productID, 1)
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded, insufficient := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			var insErr *inventory.InsufficientError
			require.ErrorAs(t, err, &insErr)
			insufficient++
		}
	}
	assert.Equal(t, stock, succeeded)
	assert.Equal(t, workers-stock, insufficient)

	rec, err := NewInventoryRepository(pool).Get(ctx, tenantID, productID)
	require.NoError(t, err)
	assert.Equal(t, stock, rec.Reserved)
	assert.Equal(t, stock, rec.Quantity)
}

func TestReserve_MissingRowIsZeroStock(t *testing.T) {
	pool := requirePool(t)

	repo := NewInventoryRepository(pool)
	err := repo.Reserve(context.Background(), "t-none", "p-none", 1)

	var insErr *inventory.InsufficientError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, 0, insErr.Available)
}

func TestRelease_ClampsAtZero(t *testing.T) {
	pool := requirePool(t)
	ctx := context.Background()

	tenantID, productID := seedProduct(t, "10.00", 5)
	repo := NewInventoryRepository(pool)

	require.NoError(t, repo.Reserve(ctx, tenantID, productID, 3))
	require.NoError(t, repo.Release(ctx, tenantID, productID, 3))
	// Duplicate release must not drive reserved negative.
	require.NoError(t, repo.Release(ctx, tenantID, productID, 3))

	rec, err := repo.Get(ctx, tenantID, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Reserved)
}

func TestAdjustQuantity_RejectsDropBelowReserved(t *testing.T) {
	pool := requirePool(t)
	ctx := context.Background()

	tenantID, productID := seedProduct(t, "10.00", 5)
	repo := NewInventoryRepository(pool)
	require.NoError(t, repo.Reserve(ctx, tenantID, productID, 4))

	_, err := repo.AdjustQuantity(ctx, tenantID, productID, -2)
	require.ErrorIs(t, err, ErrAdjustBelowReserved)

	rec, err := repo.AdjustQuantity(ctx, tenantID, productID, -1)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Quantity)
	assert.Equal(t, 4, rec.Reserved)
}

func TestCouponConsume_ConcurrentRespectsMaxUses(t *testing.T) {
	pool := requirePool(t)
	ctx := context.Background()

	tenantID := "t-" + uuid.NewString()[:8]
	couponID := "c-" + uuid.NewString()[:8]
	_, err := pool.Exec(ctx,
		`INSERT INTO coupons (id, tenant_id, code, discount_type, value, max_uses)
		 VALUES ($1, $2, $3, 'fixed', 5.00, 5)`,
		couponID, tenantID, "CAPPED")
	require.NoError(t, err)

	const workers = 12
	store := NewStore(pool)
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.InTx(ctx, func(tx order.Stores) error {
				return tx.Coupons.ConsumeUse(ctx, tenantID, couponID)
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, coupon.ErrExhausted)
		}
	}
	assert.Equal(t, 5, succeeded)

	var used int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT used_count FROM coupons WHERE id = $1`, couponID).Scan(&used))
	assert.Equal(t, 5, used)
}

func TestFlashSaleBudget_GuardedConsume(t *testing.T) {
	pool := requirePool(t)
	ctx := context.Background()

	tenantID := "t-" + uuid.NewString()[:8]
	saleID := "fs-" + uuid.NewString()[:8]
	now := time.Now()
	repo := NewFlashSaleRepository(pool)
	require.NoError(t, repo.Create(ctx, &promo.FlashSale{
		ID:            saleID,
		TenantID:      tenantID,
		Name:          "budget sale",
		DiscountType:  promo.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		ProductIDs:    []string{"p1"},
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
		TotalQuantity: 5,
		Active:        true,
	}))

	require.NoError(t, repo.ConsumeBudget(ctx, tenantID, saleID, 4))

	err := repo.ConsumeBudget(ctx, tenantID, saleID, 2)
	var exhausted *promo.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Remaining)

	require.NoError(t, repo.ConsumeBudget(ctx, tenantID, saleID, 1))
}

func TestInTx_RollbackLeavesNoSideEffects(t *testing.T) {
	pool := requirePool(t)
	ctx := context.Background()

	tenantID, productID := seedProduct(t, "10.00", 5)
	store := NewStore(pool)

	boom := errors.New("forced failure")
	orderID := uuid.NewString()
	err := store.InTx(ctx, func(tx order.Stores) error {
		if err := tx.Orders.Create(ctx, &order.Order{
			ID:          orderID,
			TenantID:    tenantID,
			OrderNumber: "ORD-TEST-" + orderID[:8],
			Status:      order.StatusPending,
			Subtotal:    decimal.RequireFromString("10.00"),
			FinalAmount: decimal.RequireFromString("10.00"),
			TaxAmount:   decimal.Zero, ShippingAmount: decimal.Zero, DiscountAmount: decimal.Zero,
			CreatedAt: time.Now(),
			Lines: []order.Line{{
				ProductID: productID, Quantity: 1,
				UnitPrice:    decimal.RequireFromString("10.00"),
				LineDiscount: decimal.Zero,
				LineTotal:    decimal.RequireFromString("10.00"),
			}},
		}); err != nil {
			return err
		}
		if err := tx.Inventory.Reserve(ctx, tenantID, productID, 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = NewOrderRepository(pool).Get(ctx, tenantID, orderID)
	require.ErrorIs(t, err, order.ErrNotFound)

	rec, err := NewInventoryRepository(pool).Get(ctx, tenantID, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Reserved)
}

func TestOrderRepository_RoundTrip(t *testing.T) {
	pool := requirePool(t)
	ctx := context.Background()

	tenantID, productID := seedProduct(t, "25.50", 5)
	repo := NewOrderRepository(pool)

	o := &order.Order{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		OrderNumber:    "ORD-RT-" + uuid.NewString()[:8],
		Status:         order.StatusPending,
		CustomerName:   "Ada",
		Subtotal:       decimal.RequireFromString("51.00"),
		DiscountAmount: decimal.RequireFromString("5.10"),
		TaxAmount:      decimal.Zero,
		ShippingAmount: decimal.Zero,
		FinalAmount:    decimal.RequireFromString("45.90"),
		CreatedAt:      time.Now(),
		Lines: []order.Line{{
			ProductID:    productID,
			Quantity:     2,
			UnitPrice:    decimal.RequireFromString("25.50"),
			LineDiscount: decimal.RequireFromString("5.10"),
			LineTotal:    decimal.RequireFromString("45.90"),
		}},
	}
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.Get(ctx, tenantID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)
	assert.True(t, o.FinalAmount.Equal(got.FinalAmount))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Quantity)

	require.NoError(t, repo.UpdateStatus(ctx, tenantID, o.ID, order.StatusCancelled))
	got, err = repo.Get(ctx, tenantID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
}
