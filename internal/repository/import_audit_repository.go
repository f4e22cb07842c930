package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/airtime-voucher-service/pkg/database"
)

// ImportAuditRepository provides data access for per-pool import audit tables.
type ImportAuditRepository struct {
	db database.TxQuerier
}

// NewImportAuditRepository creates a new ImportAuditRepository with the given pool.
func NewImportAuditRepository(pool *pgxpool.Pool) *ImportAuditRepository {
	return &ImportAuditRepository{db: pool}
}

// NewImportAuditRepositoryWithQuerier creates an ImportAuditRepository with
// a custom querier. This is primarily used for testing.
func NewImportAuditRepositoryWithQuerier(db database.TxQuerier) *ImportAuditRepository {
	return &ImportAuditRepository{db: db}
}

// FindByRequestID returns the content MD5 recorded for a prior import with
// this request id. found is false when the import has not been seen before.
func (r *ImportAuditRepository) FindByRequestID(ctx context.Context, tx database.TxQuerier, pool, requestID string) (contentMD5 string, found bool, err error) {
	query := fmt.Sprintf(`SELECT content_md5 FROM %s WHERE request_id = $1`,
		tableName(pool, suffixImportAudit))

	err = tx.QueryRow(ctx, query, requestID).Scan(&contentMD5)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, classify(err, fmt.Sprintf("find import audit for request %s in pool %s", requestID, pool))
	}
	return contentMD5, true, nil
}

// Record appends one import audit row.
func (r *ImportAuditRepository) Record(ctx context.Context, tx database.TxQuerier, pool, requestID, contentMD5 string) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (request_id, content_md5, created_at) VALUES ($1, $2, $3)`,
		tableName(pool, suffixImportAudit))

	if _, err := tx.Exec(ctx, query, requestID, contentMD5, time.Now().UTC()); err != nil {
		return classify(err, fmt.Sprintf("record import audit for request %s in pool %s", requestID, pool))
	}
	return nil
}
