package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
)

// checkInventorySQL sums per-resource need for the demanded products and
// keeps only resources that cannot cover it.
const checkInventorySQL = `SELECT r.type, r.name, SUM(pr.per_unit * d.qty)::INT AS needed, r.available
	FROM UNNEST($1::TEXT[], $2::INT[]) AS d(product_id, qty)
	JOIN product_resources pr ON pr.product_id = d.product_id
	JOIN resources r ON r.id = pr.resource_id
	GROUP BY r.id, r.type, r.name, r.available
	HAVING SUM(pr.per_unit * d.qty) > r.available
	ORDER BY r.type, r.name`

var _ catalog.Inventory = (*InventoryRepository)(nil)

// InventoryRepository checks cart demand against shared resources.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository that uses the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// Check returns the resources the demand would overdraw.
func (r *InventoryRepository) Check(ctx context.Context, demand map[string]int) ([]catalog.Conflict, error) {
	if len(demand) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(demand))
	qtys := make([]int32, 0, len(demand))
	for id, q := range demand {
		ids = append(ids, id)
		qtys = append(qtys, int32(q))
	}

	rows, err := r.pool.Query(ctx, checkInventorySQL, ids, qtys)
	if err != nil {
		return nil, fmt.Errorf("checking inventory: %w", err)
	}
	conflicts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Conflict, error) {
		var c catalog.Conflict
		err := row.Scan(&c.Type, &c.Name, &c.Needed, &c.Available)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("checking inventory: %w", err)
	}
	return conflicts, nil
}

// Resource is a shared stock entry and the per-unit draw of each product on it.
type Resource struct {
	ID        string
	Type      string
	Name      string
	Available int
	PerUnit   map[string]int
}

const (
	upsertResourceSQL = `INSERT INTO resources (id, type, name, available) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, name = EXCLUDED.name, available = EXCLUDED.available`

	linkResourceSQL = `INSERT INTO product_resources (product_id, resource_id, per_unit) VALUES ($1, $2, $3)
		ON CONFLICT (product_id, resource_id) DO UPDATE SET per_unit = EXCLUDED.per_unit`
)

// Upsert stores resources and their product links in one transaction.
func (r *InventoryRepository) Upsert(ctx context.Context, resources ...Resource) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, res := range resources {
			batch.Queue(upsertResourceSQL, res.ID, res.Type, res.Name, res.Available)
			for productID, perUnit := range res.PerUnit {
				batch.Queue(linkResourceSQL, productID, res.ID, perUnit)
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting resources: %w", err)
		}
		return nil
	})
}
