// Command promo-import loads upstream promotion exports into the promotions
// table. Files may be JSON arrays (.json) or JSON lines (.jsonl), each
// optionally gzip-compressed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/repository"
)

func main() {
	var (
		databaseURL string
		skipUnknown bool
		batchSize   int
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&skipUnknown, "skip-unknown", false, "drop promotions that name products missing from the catalog")
	flag.IntVar(&batchSize, "batch-size", 500, "promotions per upsert batch")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if flag.NArg() == 0 {
		lg.Fatal("No input files given")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	imp := &importer{lg: lg, skipUnknown: skipUnknown, batchSize: max(batchSize, 1)}
	if err := run(ctx, imp, databaseURL, flag.Args()); err != nil {
		lg.Fatal("Promotion import failed", zap.Error(err))
	}
}

func run(ctx context.Context, imp *importer, databaseURL string, files []string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if imp.catalog, err = catalogFilter(ctx, repository.NewProductRepository(pool)); err != nil {
		return errors.Wrap(err, "load catalog names")
	}

	promos, err := imp.readAll(ctx, files)
	if err != nil {
		return err
	}
	return imp.store(ctx, repository.NewPromotionRepository(pool), promos)
}

type nameSource interface {
	EachName(ctx context.Context, fn func(name string)) error
}

// catalogFilter builds a bloom filter of catalog product names. A name that
// tests negative is certainly absent from the catalog.
func catalogFilter(ctx context.Context, src nameSource) (*bloom.BloomFilter, error) {
	var names []string
	if err := src.EachName(ctx, func(name string) { names = append(names, name) }); err != nil {
		return nil, err
	}
	filter := bloom.NewWithEstimates(uint(max(len(names), 1024)), bloomFPR)
	for _, name := range names {
		filter.AddString(name)
	}
	return filter, nil
}
