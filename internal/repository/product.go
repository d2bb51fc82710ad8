package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
)

const (
	productColumns = `id, name, category, price, kind, available`

	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductByNameSQL = `SELECT ` + productColumns + ` FROM products WHERE name = $1`
	listProductNamesSQL = `SELECT name FROM products`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category, price = EXCLUDED.price,
			kind = EXCLUDED.kind, available = EXCLUDED.available`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetByName returns the product with the given display name.
func (r *ProductRepository) GetByName(ctx context.Context, name string) (*catalog.Product, error) {
	return r.getOne(ctx, getProductByNameSQL, name)
}

func (r *ProductRepository) getOne(ctx context.Context, query, key string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", key, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", key, err)
	}
	return &p, nil
}

// Upsert inserts products or overwrites existing rows with the same id.
func (r *ProductRepository) Upsert(ctx context.Context, products ...catalog.Product) error {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL, p.ID, p.Name, p.Category, p.Price, string(p.Kind), p.Available)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting products: %w", err)
	}
	return nil
}

// EachName streams every catalog product name to fn without loading the
// whole catalog.
func (r *ProductRepository) EachName(ctx context.Context, fn func(name string)) error {
	rows, err := r.pool.Query(ctx, listProductNamesSQL)
	if err != nil {
		return fmt.Errorf("listing product names: %w", err)
	}
	var name string
	if _, err := pgx.ForEachRow(rows, []any{&name}, func() error {
		fn(name)
		return nil
	}); err != nil {
		return fmt.Errorf("listing product names: %w", err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p    catalog.Product
		kind string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &kind, &p.Available)
	p.Kind = cart.Kind(kind)
	return p, err
}
