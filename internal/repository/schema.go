package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/airtime-voucher-service/internal/service"
	"github.com/fairyhunter13/airtime-voucher-service/pkg/database"
)

// Table name suffixes making up a pool's table set. The physical name of
// each table is "<pool>_<suffix>".
const (
	suffixVouchers         = "vouchers"
	suffixAudit            = "audit"
	suffixImportAudit      = "import_audit"
	suffixExportAudit      = "export_audit"
	suffixExportedVouchers = "exported_vouchers"
)

// undefinedTableCode is the PostgreSQL SQLSTATE for a query against a table
// that does not exist. It is how a missing pool announces itself.
const undefinedTableCode = "42P01"

// tableName returns the quoted physical name of one of a pool's tables.
// Quoting via pgx.Identifier keeps arbitrary pool names out of raw SQL.
func tableName(pool, suffix string) string {
	return pgx.Identifier{pool + "_" + suffix}.Sanitize()
}

// indexName returns the quoted name for an index on one of a pool's tables.
func indexName(pool, suffix, tag string) string {
	return pgx.Identifier{pool + "_" + suffix + "_" + tag + "_idx"}.Sanitize()
}

// classify maps low-level pgx errors to domain errors. A query against a
// pool whose tables were never created surfaces as service.ErrNoPool.
func classify(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode {
		return service.ErrNoPool
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SchemaRepository owns the per-pool DDL. Tables are created lazily by the
// first import and are never dropped.
type SchemaRepository struct{}

// NewSchemaRepository creates a new SchemaRepository.
func NewSchemaRepository() *SchemaRepository {
	return &SchemaRepository{}
}

// CreateTables creates a pool's five tables and their indexes if they do
// not exist yet. It runs inside the caller's transaction so a failed import
// does not leave a half-created pool behind.
func (r *SchemaRepository) CreateTables(ctx context.Context, tx database.TxQuerier, pool string) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			operator TEXT NOT NULL,
			denomination TEXT NOT NULL,
			voucher TEXT NOT NULL,
			used BOOLEAN NOT NULL DEFAULT FALSE,
			reason TEXT,
			created_at TIMESTAMP NOT NULL,
			modified_at TIMESTAMP NOT NULL
		)`, tableName(pool, suffixVouchers)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (operator, denomination, used)`,
			indexName(pool, suffixVouchers, "type"), tableName(pool, suffixVouchers)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL UNIQUE,
			transaction_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			request_data TEXT NOT NULL,
			response_data TEXT NOT NULL,
			error BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, tableName(pool, suffixAudit)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (transaction_id)`,
			indexName(pool, suffixAudit, "transaction_id"), tableName(pool, suffixAudit)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (user_id)`,
			indexName(pool, suffixAudit, "user_id"), tableName(pool, suffixAudit)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL UNIQUE,
			content_md5 TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, tableName(pool, suffixImportAudit)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL UNIQUE,
			request_data TEXT NOT NULL,
			warnings TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, tableName(pool, suffixExportAudit)),

		// request_id is indexed but NOT unique: one export links many vouchers.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL,
			voucher_id BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, tableName(pool, suffixExportedVouchers)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (request_id)`,
			indexName(pool, suffixExportedVouchers, "request_id"), tableName(pool, suffixExportedVouchers)),
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create pool tables for %s: %w", pool, err)
		}
	}
	return nil
}
