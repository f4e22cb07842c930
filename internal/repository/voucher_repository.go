package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/airtime-voucher-service/internal/model"
	"github.com/fairyhunter13/airtime-voucher-service/pkg/database"
)

// VoucherRepository provides data access for per-pool voucher tables using pgx.
type VoucherRepository struct {
	db database.TxQuerier
}

// NewVoucherRepository creates a new VoucherRepository with the given pool.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{db: pool}
}

// NewVoucherRepositoryWithQuerier creates a VoucherRepository with a custom
// querier. This is primarily used for testing.
func NewVoucherRepositoryWithQuerier(db database.TxQuerier) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// PickForUpdate selects one unused voucher matching (operator, denomination)
// and locks its row for the remainder of the transaction. SKIP LOCKED keeps
// concurrent transactions from contending for the same row, so two callers
// can never be handed the same voucher.
// Returns nil, nil when no unused voucher matches.
func (r *VoucherRepository) PickForUpdate(ctx context.Context, tx database.TxQuerier, pool, operator, denomination string) (*model.Voucher, error) {
	query := fmt.Sprintf(
		`SELECT id, operator, denomination, voucher, used, reason FROM %s
		 WHERE operator = $1 AND denomination = $2 AND NOT used
		 LIMIT 1 FOR UPDATE SKIP LOCKED`,
		tableName(pool, suffixVouchers))

	var v model.Voucher
	err := tx.QueryRow(ctx, query, operator, denomination).Scan(
		&v.ID,
		&v.Operator,
		&v.Denomination,
		&v.Voucher,
		&v.Used,
		&v.Reason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Exhausted - let service decide
		}
		return nil, classify(err, fmt.Sprintf("pick voucher from pool %s", pool))
	}
	return &v, nil
}

// Consume marks a previously locked voucher as used. Must be called within
// the transaction that locked the row.
func (r *VoucherRepository) Consume(ctx context.Context, tx database.TxQuerier, pool string, voucherID int64, reason string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET used = TRUE, reason = $1, modified_at = $2 WHERE id = $3`,
		tableName(pool, suffixVouchers))

	if _, err := tx.Exec(ctx, query, reason, time.Now().UTC(), voucherID); err != nil {
		return classify(err, fmt.Sprintf("consume voucher %d in pool %s", voucherID, pool))
	}
	return nil
}

// BulkInsert adds imported vouchers to the pool via COPY. All rows start out
// unused. Duplicate voucher codes are permitted by the schema.
func (r *VoucherRepository) BulkInsert(ctx context.Context, tx database.BulkTxQuerier, pool string, rows []model.ImportRow) error {
	now := time.Now().UTC()
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{pool + "_" + suffixVouchers},
		[]string{"operator", "denomination", "voucher", "used", "created_at", "modified_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{rows[i].Operator, rows[i].Denomination, rows[i].Voucher, false, now, now}, nil
		}),
	)
	if err != nil {
		return classify(err, fmt.Sprintf("bulk insert vouchers into pool %s", pool))
	}
	return nil
}

// Counts returns the voucher census grouped by operator, denomination and
// used flag.
func (r *VoucherRepository) Counts(ctx context.Context, pool string) ([]model.VoucherCount, error) {
	query := fmt.Sprintf(
		`SELECT operator, denomination, used, COUNT(voucher) AS count FROM %s
		 GROUP BY operator, denomination, used`,
		tableName(pool, suffixVouchers))

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("count vouchers in pool %s", pool))
	}
	defer rows.Close()

	counts := []model.VoucherCount{}
	for rows.Next() {
		var c model.VoucherCount
		if err := rows.Scan(&c.Operator, &c.Denomination, &c.Used, &c.Count); err != nil {
			return nil, fmt.Errorf("scan voucher count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, fmt.Sprintf("iterate voucher counts for pool %s", pool))
	}
	return counts, nil
}

// ListOperators returns the distinct operators present in the pool.
func (r *VoucherRepository) ListOperators(ctx context.Context, tx database.TxQuerier, pool string) ([]string, error) {
	return r.listDistinct(ctx, tx, pool, "operator")
}

// ListDenominations returns the distinct denominations present in the pool.
func (r *VoucherRepository) ListDenominations(ctx context.Context, tx database.TxQuerier, pool string) ([]string, error) {
	return r.listDistinct(ctx, tx, pool, "denomination")
}

func (r *VoucherRepository) listDistinct(ctx context.Context, tx database.TxQuerier, pool, column string) ([]string, error) {
	// column is one of two compile-time constants, never caller input.
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s`, column, tableName(pool, suffixVouchers))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("list %ss in pool %s", column, pool))
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, fmt.Sprintf("iterate %ss for pool %s", column, pool))
	}
	return values, nil
}
