// Command coupon-ingest imports promo codes from gzipped partner lists.
//
// A code is imported only when it shows up in at least --min-lists of the
// given lists. Pass one builds a bloom filter per list, pass two keeps codes
// that other lists' filters claim to contain and confirms the count exactly.
package main

import (
	"bufio"
	"context"
	"flag"
	"math/bits"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/engage-orders/internal/domain/coupon"
	"github.com/xenking/engage-orders/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 5_000_000
	batchSize     = 1000
)

// rule is the discount granted to imported codes with a matching prefix.
type rule struct {
	name    string
	kind    coupon.DiscountType
	value   decimal.Decimal
	minimum decimal.Decimal
	// maxDiscount is zero when uncapped.
	maxDiscount decimal.Decimal
}

var prefixRules = []struct {
	prefix string
	rule   rule
}{
	{"VIP", rule{name: "VIP partner", kind: coupon.DiscountPercentage, value: decimal.NewFromInt(30), maxDiscount: decimal.NewFromInt(1500)}},
	{"HALF", rule{name: "Half price", kind: coupon.DiscountPercentage, value: decimal.NewFromInt(50), minimum: decimal.NewFromInt(500), maxDiscount: decimal.NewFromInt(1000)}},
	{"FLAT", rule{name: "Flat partner discount", kind: coupon.DiscountFixed, value: decimal.NewFromInt(150), minimum: decimal.NewFromInt(750)}},
}

var defaultRule = rule{name: "Partner promo", kind: coupon.DiscountPercentage, value: decimal.NewFromInt(10)}

func ruleFor(code string) rule {
	for _, r := range prefixRules {
		if strings.HasPrefix(code, r.prefix) {
			return r.rule
		}
	}
	return defaultRule
}

func main() {
	_ = godotenv.Load()

	var (
		databaseURL string
		minLists    int
		capacity    uint
		validFor    time.Duration
		dryRun      bool
	)
	flag.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	flag.IntVar(&minLists, "min-lists", 2, "lists a code must appear in")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected codes per list, sizes the bloom filters")
	flag.DurationVar(&validFor, "valid-for", 90*24*time.Hour, "validity window of imported coupons")
	flag.BoolVar(&dryRun, "dry-run", false, "report matches without writing")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	files := flag.Args()
	if len(files) < minLists {
		lg.Fatal("Not enough lists", zap.Int("given", len(files)), zap.Int("min_lists", minLists))
	}
	if databaseURL == "" && !dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	codes, err := matchCodes(ctx, files, minLists, capacity)
	if err != nil {
		lg.Fatal("Scan failed", zap.Error(err))
	}
	lg.Info("Codes matched", zap.Int("count", len(codes)))
	if dryRun || len(codes) == 0 {
		return
	}

	if err := store(ctx, databaseURL, codes, time.Now().UTC(), validFor); err != nil {
		lg.Fatal("Import failed", zap.Error(err))
	}
	lg.Info("Import completed")
}

// matchCodes returns the normalized codes present in at least minLists files.
func matchCodes(ctx context.Context, files []string, minLists int, capacity uint) ([]string, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(capacity, bloomFPR)
			n, err := scan(gctx, path, func(code string) { f.AddString(code) })
			if err != nil {
				return err
			}
			zctx.From(ctx).Info("Filter built", zap.String("file", path), zap.Uint64("codes", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "build filters")
	}

	// A bitmask per code records which lists really contain it.
	seen := make([]map[string]uint64, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			local := make(map[string]uint64)
			_, err := scan(gctx, path, func(code string) {
				others := 0
				for j, f := range filters {
					if j != i && f.TestString(code) {
						others++
					}
				}
				if others+1 >= minLists {
					local[code] |= 1 << uint(i)
				}
			})
			seen[i] = local
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	merged := make(map[string]uint64)
	for _, local := range seen {
		for code, mask := range local {
			merged[code] |= mask
		}
	}
	var out []string
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= minLists {
			out = append(out, code)
		}
	}
	return out, nil
}

// scan streams a gzipped list and calls fn with every valid normalized code.
func scan(ctx context.Context, path string, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "gzip %s", path)
	}
	defer func() { _ = gz.Close() }()

	lg := zctx.From(ctx)
	var n uint64
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		code, err := coupon.NormalizeCode(sc.Text())
		if err != nil {
			continue
		}
		n++
		if n%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			lg.Info("Scan progress", zap.String("file", path), zap.Uint64("codes", n))
		}
		fn(code)
	}
	if err := sc.Err(); err != nil {
		return n, errors.Wrapf(err, "scan %s", path)
	}
	return n, ctx.Err()
}

const upsertCouponSQL = `
INSERT INTO coupons (id, code, name, discount_type, discount_value, minimum_amount,
	maximum_discount, usage_limit_per_user, valid_from, valid_until)
VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9)
ON CONFLICT (code) DO UPDATE SET valid_until = GREATEST(coupons.valid_until, EXCLUDED.valid_until)`

func store(ctx context.Context, databaseURL string, codes []string, now time.Time, validFor time.Duration) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg := zctx.From(ctx)
	for start := 0; start < len(codes); start += batchSize {
		chunk := codes[start:min(start+batchSize, len(codes))]

		batch := &pgx.Batch{}
		for _, code := range chunk {
			r := ruleFor(code)
			var maxDiscount decimal.NullDecimal
			if r.maxDiscount.IsPositive() {
				maxDiscount = decimal.NewNullDecimal(r.maxDiscount)
			}
			batch.Queue(upsertCouponSQL,
				uuid.NewString(), code, r.name, string(r.kind), r.value, r.minimum,
				maxDiscount, now, now.Add(validFor))
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "upsert batch at %d", start)
		}
		lg.Info("Write progress", zap.Int("written", start+len(chunk)), zap.Int("total", len(codes)))
	}
	return nil
}
