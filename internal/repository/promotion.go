package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-pricing/internal/domain/promotion"
)

const (
	listPromotionsSQL = `SELECT payload FROM promotions ORDER BY seq`

	upsertPromotionSQL = `INSERT INTO promotions (id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
)

// RawPromotion is an upstream promotion payload keyed by its id.
type RawPromotion struct {
	ID      string
	Payload []byte
}

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository stores promotions as the raw upstream JSON so that
// normalization always sees the original field values.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListRecords returns every stored promotion in insertion order.
func (r *PromotionRepository) ListRecords(ctx context.Context) ([]promotion.Record, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (promotion.Record, error) {
		var payload []byte
		if err := row.Scan(&payload); err != nil {
			return promotion.Record{}, err
		}
		return promotion.DecodeRecord(payload)
	})
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	return records, nil
}

// Upsert stores payloads in one batch, replacing rows with the same id.
func (r *PromotionRepository) Upsert(ctx context.Context, promos []RawPromotion) error {
	if len(promos) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range promos {
		batch.Queue(upsertPromotionSQL, p.ID, p.Payload)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d promotions: %w", len(promos), err)
	}
	return nil
}
