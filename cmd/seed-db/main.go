// Command seed-db loads a catalog fixture (products, shared resources and
// manual discounts) into PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/repository"
)

type productJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Kind      cart.Kind       `json:"kind"`
	Available *bool           `json:"available"`
}

type resourceJSON struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Available int            `json:"available"`
	PerUnit   map[string]int `json:"per_unit"`
}

type fixture struct {
	Products  []productJSON         `json:"products"`
	Resources []resourceJSON        `json:"resources"`
	Discounts []discount.Definition `json:"discounts"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, catalogFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogFile string) error {
	fx, err := readFixture(catalogFile)
	if err != nil {
		return err
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := repository.NewProductRepository(pool).Upsert(ctx, fx.products()...); err != nil {
		return errors.Wrap(err, "seed products")
	}
	lg.Info("Products upserted", zap.Int("count", len(fx.Products)))

	if err := repository.NewInventoryRepository(pool).Upsert(ctx, fx.resources()...); err != nil {
		return errors.Wrap(err, "seed resources")
	}
	lg.Info("Resources upserted", zap.Int("count", len(fx.Resources)))

	if err := repository.NewDiscountRepository(pool).Upsert(ctx, fx.Discounts...); err != nil {
		return errors.Wrap(err, "seed discounts")
	}
	lg.Info("Discounts upserted", zap.Int("count", len(fx.Discounts)))
	return nil
}

func readFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, errors.Wrap(err, "parse catalog file")
	}
	for _, d := range fx.Discounts {
		if _, err := discount.ParseType(string(d.Type)); err != nil {
			return nil, errors.Wrapf(err, "discount %s", d.ID)
		}
	}
	return &fx, nil
}

func (fx *fixture) products() []catalog.Product {
	out := make([]catalog.Product, len(fx.Products))
	for i, p := range fx.Products {
		kind := p.Kind
		if kind == "" {
			kind = cart.KindProduct
		}
		out[i] = catalog.Product{
			ID:        p.ID,
			Name:      p.Name,
			Category:  p.Category,
			Price:     p.Price,
			Kind:      kind,
			Available: p.Available == nil || *p.Available,
		}
	}
	return out
}

func (fx *fixture) resources() []repository.Resource {
	out := make([]repository.Resource, len(fx.Resources))
	for i, r := range fx.Resources {
		out[i] = repository.Resource(r)
	}
	return out
}
