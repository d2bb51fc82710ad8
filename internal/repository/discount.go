package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-pricing/internal/domain/discount"
)

const (
	listDiscountsSQL = `SELECT id, name, type, value, min_spend, scope, targets
		FROM discounts WHERE active ORDER BY id`

	upsertDiscountSQL = `INSERT INTO discounts (id, name, type, value, min_spend, scope, targets)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, value = EXCLUDED.value,
			min_spend = EXCLUDED.min_spend, scope = EXCLUDED.scope, targets = EXCLUDED.targets`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// ListDiscounts returns the active manual discounts.
func (r *DiscountRepository) ListDiscounts(ctx context.Context) ([]discount.Definition, error) {
	rows, err := r.pool.Query(ctx, listDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}
	defs, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}
	return defs, nil
}

// Upsert inserts discounts or overwrites rows with the same id.
func (r *DiscountRepository) Upsert(ctx context.Context, defs ...discount.Definition) error {
	batch := &pgx.Batch{}
	for _, d := range defs {
		names := d.Target.Names
		if names == nil {
			names = []string{}
		}
		batch.Queue(upsertDiscountSQL,
			d.ID, d.Name, string(d.Type), d.Value, d.MinSpend, string(d.Target.Scope), names,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting discounts: %w", err)
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Definition, error) {
	var (
		d           discount.Definition
		typ, scope string
	)
	if err := row.Scan(&d.ID, &d.Name, &typ, &d.Value, &d.MinSpend, &scope, &d.Target.Names); err != nil {
		return d, err
	}
	t, err := discount.ParseType(typ)
	if err != nil {
		return d, fmt.Errorf("discount %q: %w", d.ID, err)
	}
	d.Type = t
	d.Target.Scope = discount.Scope(scope)
	return d, nil
}
