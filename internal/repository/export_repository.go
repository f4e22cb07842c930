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

// ExportRepository provides data access for per-pool export audit tables and
// the exported-voucher links used to replay prior exports.
type ExportRepository struct {
	db database.TxQuerier
}

// NewExportRepository creates a new ExportRepository with the given pool.
func NewExportRepository(pool *pgxpool.Pool) *ExportRepository {
	return &ExportRepository{db: pool}
}

// NewExportRepositoryWithQuerier creates an ExportRepository with a custom
// querier. This is primarily used for testing.
func NewExportRepositoryWithQuerier(db database.TxQuerier) *ExportRepository {
	return &ExportRepository{db: db}
}

// FindAudit fetches the prior export audit row for a request id.
// Returns nil, nil when the export has not been seen before.
func (r *ExportRepository) FindAudit(ctx context.Context, tx database.TxQuerier, pool, requestID string) (*model.ExportAuditRecord, error) {
	query := fmt.Sprintf(
		`SELECT request_id, request_data, warnings, created_at FROM %s WHERE request_id = $1`,
		tableName(pool, suffixExportAudit))

	var rec model.ExportAuditRecord
	err := tx.QueryRow(ctx, query, requestID).Scan(
		&rec.RequestID,
		&rec.RequestData,
		&rec.Warnings,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Fresh export - let service proceed
		}
		return nil, classify(err, fmt.Sprintf("find export audit for request %s in pool %s", requestID, pool))
	}
	return &rec, nil
}

// RecordAudit appends one export audit row. reqData and warnings are stored
// as JSON text.
func (r *ExportRepository) RecordAudit(ctx context.Context, tx database.TxQuerier, pool, requestID, reqData, warnings string) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (request_id, request_data, warnings, created_at) VALUES ($1, $2, $3, $4)`,
		tableName(pool, suffixExportAudit))

	if _, err := tx.Exec(ctx, query, requestID, reqData, warnings, time.Now().UTC()); err != nil {
		return classify(err, fmt.Sprintf("record export audit for request %s in pool %s", requestID, pool))
	}
	return nil
}

// Link records that a voucher was handed out by the given export request.
func (r *ExportRepository) Link(ctx context.Context, tx database.TxQuerier, pool, requestID string, voucherID int64) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (request_id, voucher_id, created_at) VALUES ($1, $2, $3)`,
		tableName(pool, suffixExportedVouchers))

	if _, err := tx.Exec(ctx, query, requestID, voucherID, time.Now().UTC()); err != nil {
		return classify(err, fmt.Sprintf("link exported voucher %d for request %s in pool %s", voucherID, requestID, pool))
	}
	return nil
}

// VouchersByRequestID rehydrates the voucher list a prior export handed out,
// by joining the exported-voucher links back to the voucher table.
func (r *ExportRepository) VouchersByRequestID(ctx context.Context, tx database.TxQuerier, pool, requestID string) ([]model.ExportedVoucher, error) {
	query := fmt.Sprintf(
		`SELECT v.operator, v.denomination, v.voucher
		 FROM %s v JOIN %s e ON e.voucher_id = v.id
		 WHERE e.request_id = $1
		 ORDER BY e.id`,
		tableName(pool, suffixVouchers), tableName(pool, suffixExportedVouchers))

	rows, err := tx.Query(ctx, query, requestID)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("rehydrate export %s from pool %s", requestID, pool))
	}
	defer rows.Close()

	vouchers := []model.ExportedVoucher{}
	for rows.Next() {
		var v model.ExportedVoucher
		if err := rows.Scan(&v.Operator, &v.Denomination, &v.Voucher); err != nil {
			return nil, fmt.Errorf("scan exported voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, fmt.Sprintf("iterate exported vouchers for pool %s", pool))
	}
	return vouchers, nil
}
