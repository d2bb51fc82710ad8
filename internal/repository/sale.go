package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-pricing/internal/domain/sale"
)

const (
	saleColumns = `id, cart_id, items, subtotal, addons_cost, manual_discount,
		promotional_discount, total, status, completed_at`

	createSaleSQL = `INSERT INTO sales (` + saleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getSaleSQL = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ sale.Repository = (*SaleRepository)(nil)

// SaleRepository implements sale.Repository backed by PostgreSQL.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// Create persists a completed sale. Items are stored as JSONB.
func (r *SaleRepository) Create(ctx context.Context, s *sale.Sale) error {
	itemsJSON, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("marshaling sale items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createSaleSQL,
		s.ID, s.CartID, itemsJSON, s.Subtotal, s.AddonsCost, s.ManualDiscount,
		s.PromotionalDiscount, s.Total, string(s.Status), s.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("creating sale %q: %w", s.ID, err)
	}
	return nil
}

// Get returns a sale by id.
func (r *SaleRepository) Get(ctx context.Context, id string) (*sale.Sale, error) {
	s, err := getSale(ctx, r.pool, getSaleSQL, id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func getSale(ctx context.Context, q querier, query, id string) (sale.Sale, error) {
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return sale.Sale{}, fmt.Errorf("getting sale %q: %w", id, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sale.Sale{}, sale.ErrNotFound
		}
		return sale.Sale{}, fmt.Errorf("getting sale %q: %w", id, err)
	}
	return s, nil
}

func scanSale(row pgx.CollectableRow) (sale.Sale, error) {
	var (
		s         sale.Sale
		itemsJSON []byte
		status    string
	)
	if err := row.Scan(
		&s.ID, &s.CartID, &itemsJSON, &s.Subtotal, &s.AddonsCost, &s.ManualDiscount,
		&s.PromotionalDiscount, &s.Total, &status, &s.CompletedAt,
	); err != nil {
		return s, err
	}
	s.Status = sale.Status(status)
	if err := json.Unmarshal(itemsJSON, &s.Items); err != nil {
		return s, fmt.Errorf("decoding sale items: %w", err)
	}
	return s, nil
}
