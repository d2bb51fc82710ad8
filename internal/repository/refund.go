package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-pricing/internal/domain/refund"
	"github.com/xenking/pos-pricing/internal/domain/sale"
)

const (
	lockSaleSQL = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1 FOR UPDATE`

	listRefundsSQL = `SELECT id, sale_id, lines, amount, full_refund, reason, created_at
		FROM refunds WHERE sale_id = $1 ORDER BY created_at, id`

	insertRefundSQL = `INSERT INTO refunds (id, sale_id, lines, amount, full_refund, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	setSaleStatusSQL = `UPDATE sales SET status = $2 WHERE id = $1`

	expireSalesSQL = `UPDATE sales SET status = 'REFUND_EXPIRED'
		WHERE status IN ('OPEN_FOR_REFUND', 'PARTIALLY_REFUNDED') AND completed_at <= $1`
)

var _ refund.Ledger = (*RefundLedger)(nil)

// RefundLedger implements refund.Ledger. Submissions for one sale serialize
// on a row lock of the sale.
type RefundLedger struct {
	pool *pgxpool.Pool
}

// NewRefundLedger returns a RefundLedger that uses the given pool.
func NewRefundLedger(pool *pgxpool.Pool) *RefundLedger {
	return &RefundLedger{pool: pool}
}

// Submit locks the sale, runs decide over the current ledger and appends the
// resulting record in the same transaction.
func (r *RefundLedger) Submit(ctx context.Context, saleID string, decide refund.DecideFunc) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := getSale(ctx, tx, lockSaleSQL, saleID)
		if err != nil {
			return err
		}
		records, err := listRefunds(ctx, tx, saleID)
		if err != nil {
			return err
		}

		next, err := decide(s, records)
		if err != nil {
			return err
		}

		rec := next.Record
		linesJSON, err := json.Marshal(rec.Lines)
		if err != nil {
			return fmt.Errorf("marshaling refund lines: %w", err)
		}
		if _, err := tx.Exec(ctx, insertRefundSQL,
			rec.ID, saleID, linesJSON, rec.Amount, rec.Full, rec.Reason, rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting refund %q: %w", rec.ID, err)
		}
		if next.Status != s.Status {
			if _, err := tx.Exec(ctx, setSaleStatusSQL, saleID, string(next.Status)); err != nil {
				return fmt.Errorf("updating sale %q status: %w", saleID, err)
			}
		}
		return nil
	})
}

// Load returns a sale together with its refund records in creation order.
func (r *RefundLedger) Load(ctx context.Context, saleID string) (sale.Sale, []refund.Record, error) {
	s, err := getSale(ctx, r.pool, getSaleSQL, saleID)
	if err != nil {
		return sale.Sale{}, nil, err
	}
	records, err := listRefunds(ctx, r.pool, saleID)
	if err != nil {
		return sale.Sale{}, nil, err
	}
	return s, records, nil
}

// ExpireBefore closes the refund window of sales completed at or before
// cutoff.
func (r *RefundLedger) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, expireSalesSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expiring refund windows: %w", err)
	}
	return tag.RowsAffected(), nil
}

func listRefunds(ctx context.Context, q querier, saleID string) ([]refund.Record, error) {
	rows, err := q.Query(ctx, listRefundsSQL, saleID)
	if err != nil {
		return nil, fmt.Errorf("listing refunds of %q: %w", saleID, err)
	}
	records, err := pgx.CollectRows(rows, scanRefund)
	if err != nil {
		return nil, fmt.Errorf("listing refunds of %q: %w", saleID, err)
	}
	return records, nil
}

func scanRefund(row pgx.CollectableRow) (refund.Record, error) {
	var (
		rec       refund.Record
		linesJSON []byte
	)
	if err := row.Scan(
		&rec.ID, &rec.SaleID, &linesJSON, &rec.Amount, &rec.Full, &rec.Reason, &rec.CreatedAt,
	); err != nil {
		return rec, err
	}
	if err := json.Unmarshal(linesJSON, &rec.Lines); err != nil {
		return rec, fmt.Errorf("decoding refund lines: %w", err)
	}
	return rec, nil
}
