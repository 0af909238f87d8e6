// Command seed-db loads the demo catalog, promotional coupons and API keys.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/engage-orders/internal/domain/auth"
	"github.com/xenking/engage-orders/internal/domain/coupon"
	"github.com/xenking/engage-orders/internal/repository"
)

type seedService struct {
	id, name, description string
	products              []seedProduct
}

type seedProduct struct {
	id, name     string
	quantity     int
	price        string
	deliveryTime string
}

var catalog = []seedService{
	{
		id: "yt-views", name: "YouTube Views",
		description: "Organic view growth for your videos.",
		products: []seedProduct{
			{id: "yt-views-10k", name: "10.000 Views", quantity: 10000, price: "850.00", deliveryTime: "24-48 hours"},
			{id: "yt-views-50k", name: "50.000 Views", quantity: 50000, price: "2750.00", deliveryTime: "24-48 hours"},
			{id: "yt-views-100k-tr", name: "100.000 Turkish Views", quantity: 100000, price: "4500.00", deliveryTime: "12-24 hours"},
			{id: "yt-views-25k-premium", name: "25.000 Premium Views", quantity: 25000, price: "1850.00", deliveryTime: "6-12 hours"},
		},
	},
	{
		id: "yt-likes", name: "YouTube Likes",
		description: "Organic likes that lift video engagement.",
		products: []seedProduct{
			{id: "yt-likes-1k", name: "1.000 Likes", quantity: 1000, price: "250.00", deliveryTime: "12-24 hours"},
			{id: "yt-likes-5k", name: "5.000 Likes", quantity: 5000, price: "1000.00", deliveryTime: "24-48 hours"},
		},
	},
	{
		id: "yt-subs", name: "YouTube Subscribers",
		description: "Organic subscriber growth for your channel.",
		products: []seedProduct{
			{id: "yt-subs-1k", name: "1.000 Subscribers", quantity: 1000, price: "1200.00", deliveryTime: "48-72 hours"},
		},
	},
	{
		id: "yt-comments", name: "YouTube Comments",
		description: "Organic comments that improve algorithm performance.",
		products: []seedProduct{
			{id: "yt-comments-100", name: "100 Comments", quantity: 100, price: "400.00", deliveryTime: "24-48 hours"},
		},
	},
}

type seedCoupon struct {
	code, name   string
	kind         coupon.DiscountType
	value        string
	minimum      string
	maxDiscount  string
	totalLimit   *int
	perUserLimit int
}

func limit(n int) *int { return &n }

var coupons = []seedCoupon{
	{code: "WELCOME10", name: "Welcome discount", kind: coupon.DiscountPercentage, value: "10", minimum: "0", perUserLimit: 1},
	{code: "SUMMER25", name: "Summer campaign", kind: coupon.DiscountPercentage, value: "25", minimum: "1000", maxDiscount: "750", totalLimit: limit(500), perUserLimit: 1},
	{code: "FLAT100", name: "100 off", kind: coupon.DiscountFixed, value: "100", minimum: "500", totalLimit: limit(1000), perUserLimit: 3},
}

type seedKey struct {
	id, name, userID string
	role             auth.Role
	env              string
}

var keys = []seedKey{
	{id: "demo-customer", name: "Demo customer", userID: "user-demo", role: auth.RoleCustomer, env: "ENGAGE_SEED_CUSTOMER_KEY"},
	{id: "demo-admin", name: "Demo operator", userID: "admin-demo", role: auth.RoleOperator, env: "ENGAGE_SEED_ADMIN_KEY"},
}

func main() {
	_ = godotenv.Load()

	var (
		databaseURL string
		pepper      string
	)
	flag.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	flag.StringVar(&pepper, "api-key-pepper", os.Getenv("ENGAGE_AUTH_API_KEY_PEPPER"), "HMAC pepper for API key hashing")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, databaseURL, []byte(pepper)); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, databaseURL string, pepper []byte) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := seedCatalog(ctx, tx); err != nil {
			return errors.Wrap(err, "seed catalog")
		}
		if err := seedCoupons(ctx, tx, time.Now().UTC()); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
		if err := seedKeys(ctx, tx, pepper); err != nil {
			return errors.Wrap(err, "seed api keys")
		}
		return nil
	})
}

func seedCatalog(ctx context.Context, tx pgx.Tx) error {
	lg := zctx.From(ctx)
	batch := &pgx.Batch{}
	for _, s := range catalog {
		batch.Queue(`INSERT INTO services (id, name, description) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description`,
			s.id, s.name, s.description)
		for _, p := range s.products {
			price, err := decimal.NewFromString(p.price)
			if err != nil {
				return errors.Wrapf(err, "price of %s", p.id)
			}
			batch.Queue(`INSERT INTO products (id, service_id, name, quantity, price, currency, delivery_time)
				VALUES ($1, $2, $3, $4, $5, '₺', $6)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, quantity = EXCLUDED.quantity,
					price = EXCLUDED.price, delivery_time = EXCLUDED.delivery_time`,
				p.id, s.id, p.name, p.quantity, price, p.deliveryTime)
		}
		lg.Info("Queued service", zap.String("id", s.id), zap.Int("products", len(s.products)))
	}
	return tx.SendBatch(ctx, batch).Close()
}

func seedCoupons(ctx context.Context, tx pgx.Tx, now time.Time) error {
	batch := &pgx.Batch{}
	for _, c := range coupons {
		value, err := decimal.NewFromString(c.value)
		if err != nil {
			return errors.Wrapf(err, "value of %s", c.code)
		}
		minimum, err := decimal.NewFromString(c.minimum)
		if err != nil {
			return errors.Wrapf(err, "minimum of %s", c.code)
		}
		var maxDiscount decimal.NullDecimal
		if c.maxDiscount != "" {
			if maxDiscount.Decimal, err = decimal.NewFromString(c.maxDiscount); err != nil {
				return errors.Wrapf(err, "max discount of %s", c.code)
			}
			maxDiscount.Valid = true
		}
		batch.Queue(`INSERT INTO coupons (id, code, name, discount_type, discount_value, minimum_amount,
				maximum_discount, usage_limit_total, usage_limit_per_user, valid_from, valid_until)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, discount_type = EXCLUDED.discount_type,
				discount_value = EXCLUDED.discount_value, minimum_amount = EXCLUDED.minimum_amount,
				maximum_discount = EXCLUDED.maximum_discount, usage_limit_total = EXCLUDED.usage_limit_total,
				usage_limit_per_user = EXCLUDED.usage_limit_per_user, valid_until = EXCLUDED.valid_until`,
			"coupon-"+c.code, c.code, c.name, string(c.kind), value, minimum,
			maxDiscount, c.totalLimit, c.perUserLimit, now, now.AddDate(1, 0, 0))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	zctx.From(ctx).Info("Upserted coupons", zap.Int("count", len(coupons)))
	return nil
}

func seedKeys(ctx context.Context, tx pgx.Tx, pepper []byte) error {
	lg := zctx.From(ctx)
	for _, k := range keys {
		raw := os.Getenv(k.env)
		if raw == "" {
			lg.Info("Skipping API key", zap.String("id", k.id), zap.String("env", k.env))
			continue
		}
		if _, err := tx.Exec(ctx, `INSERT INTO api_keys (id, key_hash, name, user_id, role, scopes)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, role = EXCLUDED.role, active = TRUE`,
			k.id, auth.HashKey(pepper, raw), k.name, k.userID, string(k.role), []string{"orders"},
		); err != nil {
			return errors.Wrapf(err, "upsert key %s", k.id)
		}
		lg.Info("Upserted API key", zap.String("id", k.id), zap.String("role", string(k.role)))
	}
	return nil
}
