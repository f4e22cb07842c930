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

// auditColumns maps the audit_query field names to their columns. Anything
// else is rejected before it reaches SQL.
var auditColumns = map[string]string{
	"request_id":     "request_id",
	"transaction_id": "transaction_id",
	"user_id":        "user_id",
}

// AuditRepository provides data access for per-pool issue audit tables.
type AuditRepository struct {
	db database.TxQuerier
}

// NewAuditRepository creates a new AuditRepository with the given pool.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: pool}
}

// NewAuditRepositoryWithQuerier creates an AuditRepository with a custom
// querier. This is primarily used for testing.
func NewAuditRepositoryWithQuerier(db database.TxQuerier) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends one audit row for a processed issue request. reqData and
// respData are stored as JSON text.
func (r *AuditRepository) Record(ctx context.Context, tx database.TxQuerier, pool string, key model.AuditKey, reqData, respData string, isError bool) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (request_id, transaction_id, user_id, request_data, response_data, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tableName(pool, suffixAudit))

	_, err := tx.Exec(ctx, query,
		key.RequestID, key.TransactionID, key.UserID, reqData, respData, isError, time.Now().UTC())
	if err != nil {
		return classify(err, fmt.Sprintf("record audit for request %s in pool %s", key.RequestID, pool))
	}
	return nil
}

// FindByRequestID fetches the prior audit row for a request id.
// Returns nil, nil when the request has not been seen before.
func (r *AuditRepository) FindByRequestID(ctx context.Context, tx database.TxQuerier, pool, requestID string) (*model.AuditRecord, error) {
	query := fmt.Sprintf(
		`SELECT request_id, transaction_id, user_id, request_data, response_data, error, created_at
		 FROM %s WHERE request_id = $1`,
		tableName(pool, suffixAudit))

	var rec model.AuditRecord
	err := tx.QueryRow(ctx, query, requestID).Scan(
		&rec.Key.RequestID,
		&rec.Key.TransactionID,
		&rec.Key.UserID,
		&rec.RequestData,
		&rec.ResponseData,
		&rec.Error,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Fresh request - let service proceed
		}
		return nil, classify(err, fmt.Sprintf("find audit for request %s in pool %s", requestID, pool))
	}
	return &rec, nil
}

// QueryByField returns all audit rows whose given field matches value,
// ordered by creation time ascending.
func (r *AuditRepository) QueryByField(ctx context.Context, pool, field, value string) ([]model.AuditRecord, error) {
	column, ok := auditColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown audit field %q", field)
	}
	query := fmt.Sprintf(
		`SELECT request_id, transaction_id, user_id, request_data, response_data, error, created_at
		 FROM %s WHERE %s = $1 ORDER BY created_at`,
		tableName(pool, suffixAudit), column)

	rows, err := r.db.Query(ctx, query, value)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("query audit by %s in pool %s", field, pool))
	}
	defer rows.Close()

	records := []model.AuditRecord{}
	for rows.Next() {
		var rec model.AuditRecord
		if err := rows.Scan(
			&rec.Key.RequestID,
			&rec.Key.TransactionID,
			&rec.Key.UserID,
			&rec.RequestData,
			&rec.ResponseData,
			&rec.Error,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, fmt.Sprintf("iterate audit rows for pool %s", pool))
	}
	return records, nil
}
