// Command seed-db provisions a demo tenant with products, stock, a running
// flash sale, and coupons. Safe to re-run: everything is upserted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/merchantkit/backoffice/internal/repository"
)

type seedProduct struct {
	ID    string
	Name  string
	Price string
	Stock int
}

var demoProducts = []seedProduct{
	{ID: "espresso-machine", Name: "Espresso Machine", Price: "249.00", Stock: 40},
	{ID: "burr-grinder", Name: "Burr Grinder", Price: "89.50", Stock: 120},
	{ID: "pour-over-kettle", Name: "Pour Over Kettle", Price: "54.90", Stock: 200},
	{ID: "ceramic-mug", Name: "Ceramic Mug", Price: "14.25", Stock: 500},
	{ID: "beans-ethiopia-1kg", Name: "Ethiopia Beans 1kg", Price: "33.33", Stock: 300},
}

func main() {
	var (
		databaseURL string
		tenantID    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&tenantID, "tenant", "demo", "tenant id to seed")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, tenantID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully", slog.String("tenant", tenantID))
}

func run(ctx context.Context, databaseURL, tenantID string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool, tenantID); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedFlashSale(ctx, pool, tenantID); err != nil {
		return errors.Wrap(err, "seed flash sale")
	}
	if err := seedCoupons(ctx, pool, tenantID); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, tenantID string) error {
	slog.Info("upserting products", slog.Int("count", len(demoProducts)))

	for _, p := range demoProducts {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return errors.Wrapf(err, "parse price of %s", p.ID)
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO products (id, tenant_id, name, price)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = $3, price = $4, active = TRUE`,
			p.ID, tenantID, p.Name, price)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO inventory (product_id, tenant_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id, product_id)
				DO UPDATE SET quantity = GREATEST($3, inventory.reserved), updated_at = now()`,
			p.ID, tenantID, p.Stock)
		if err != nil {
			return errors.Wrapf(err, "upsert inventory for %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.Int("stock", p.Stock))
	}
	return nil
}

func seedFlashSale(ctx context.Context, pool *pgxpool.Pool, tenantID string) error {
	slog.Info("seeding launch flash sale")

	now := time.Now()
	_, err := pool.Exec(ctx, `
		INSERT INTO flash_sales
			(id, tenant_id, name, discount_type, discount_value, product_ids,
			 start_time, end_time, max_per_order, total_quantity)
		VALUES ($1, $2, $3, 'percentage', $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		"fs-launch-"+tenantID, tenantID, "Launch Week",
		decimal.NewFromInt(10),
		[]string{"espresso-machine", "burr-grinder"},
		now.Add(-time.Hour), now.Add(7*24*time.Hour),
		3, 100)
	return err
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, tenantID string) error {
	slog.Info("seeding coupons")

	coupons := []struct {
		code         string
		discountType string
		value        decimal.Decimal
		maxUses      *int
	}{
		{code: "SAVE10", discountType: "percentage", value: decimal.NewFromInt(10)},
		{code: "WELCOME15", discountType: "fixed", value: decimal.NewFromInt(15), maxUses: ptr(100)},
	}

	for _, c := range coupons {
		_, err := pool.Exec(ctx, `
			INSERT INTO coupons (id, tenant_id, code, discount_type, value, max_uses)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, code)
				DO UPDATE SET discount_type = $4, value = $5, max_uses = $6, active = TRUE`,
			"cp-"+tenantID+"-"+c.code, tenantID, c.code, c.discountType, c.value, c.maxUses)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code))
	}
	return nil
}

func ptr(v int) *int { return &v }
