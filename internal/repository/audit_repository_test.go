package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airtime-voucher-service/internal/model"
	"github.com/fairyhunter13/airtime-voucher-service/internal/service"
)

func TestAuditRepository_Record_Success(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	mockTx := &mockQuerier{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			capturedArgs = arguments
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}

	repo := NewAuditRepositoryWithQuerier(&mockQuerier{})
	key := model.AuditKey{RequestID: "req-0", TransactionID: "tx-0", UserID: "u-0"}
	err := repo.Record(context.Background(), mockTx, "pool1", key,
		`{"operator":"Tank","denomination":"red"}`, `"no_voucher"`, true)

	require.NoError(t, err)
	assert.Contains(t, capturedSQL, `INSERT INTO "pool1_audit"`)
	require.Len(t, capturedArgs, 7)
	assert.Equal(t, "req-0", capturedArgs[0])
	assert.Equal(t, "tx-0", capturedArgs[1])
	assert.Equal(t, "u-0", capturedArgs[2])
	assert.Equal(t, `"no_voucher"`, capturedArgs[4])
	assert.Equal(t, true, capturedArgs[5])
}

func TestAuditRepository_Record_PoolMissing(t *testing.T) {
	mockTx := &mockQuerier{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, undefinedTableError()
		},
	}

	repo := NewAuditRepositoryWithQuerier(&mockQuerier{})
	err := repo.Record(context.Background(), mockTx, "ghost",
		model.AuditKey{RequestID: "req-0"}, `{}`, `{}`, false)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrNoPool))
}

func TestAuditRepository_FindByRequestID_Success(t *testing.T) {
	createdAt := time.Now().UTC()
	var capturedArgs []any
	mockTx := &mockQuerier{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedArgs = args
			return &mockRow{
				scanFn: func(dest ...any) error {
					*(dest[0].(*string)) = "req-0"
					*(dest[1].(*string)) = "tx-0"
					*(dest[2].(*string)) = "u-0"
					*(dest[3].(*string)) = `{"operator":"Tank","denomination":"red"}`
					*(dest[4].(*string)) = `{"id":7}`
					*(dest[5].(*bool)) = false
					*(dest[6].(*time.Time)) = createdAt
					return nil
				},
			}
		},
	}

	repo := NewAuditRepositoryWithQuerier(&mockQuerier{})
	rec, err := repo.FindByRequestID(context.Background(), mockTx, "pool1", "req-0")

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.AuditKey{RequestID: "req-0", TransactionID: "tx-0", UserID: "u-0"}, rec.Key)
	assert.Equal(t, `{"id":7}`, rec.ResponseData)
	assert.False(t, rec.Error)
	assert.Equal(t, createdAt, rec.CreatedAt)
	assert.Equal(t, []any{"req-0"}, capturedArgs)
}

func TestAuditRepository_FindByRequestID_NotFound(t *testing.T) {
	mockTx := &mockQuerier{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFn: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	repo := NewAuditRepositoryWithQuerier(&mockQuerier{})
	rec, err := repo.FindByRequestID(context.Background(), mockTx, "pool1", "req-new")

	require.NoError(t, err)
	assert.Nil(t, rec, "a fresh request id is not an error")
}

func TestAuditRepository_FindByRequestID_PoolMissing(t *testing.T) {
	mockTx := &mockQuerier{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFn: func(dest ...any) error { return undefinedTableError() }}
		},
	}

	repo := NewAuditRepositoryWithQuerier(&mockQuerier{})
	rec, err := repo.FindByRequestID(context.Background(), mockTx, "ghost", "req-0")

	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, service.ErrNoPool))
}

func TestAuditRepository_QueryByField_Success(t *testing.T) {
	createdAt := time.Now().UTC()
	var capturedSQL string
	var capturedArgs []any
	mock := &mockQuerier{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			capturedSQL = sql
			capturedArgs = args
			return &mockRows{rows: [][]any{
				{"req-0", "tx-0", "u-1", `{}`, `{"id":7}`, false, createdAt},
				{"req-1", "tx-1", "u-1", `{}`, `"no_voucher"`, true, createdAt},
			}}, nil
		},
	}

	repo := NewAuditRepositoryWithQuerier(mock)
	records, err := repo.QueryByField(context.Background(), "pool1", "user_id", "u-1")

	require.NoError(t, err)
	assert.Contains(t, capturedSQL, "WHERE user_id = $1")
	assert.Contains(t, capturedSQL, "ORDER BY created_at")
	assert.Equal(t, []any{"u-1"}, capturedArgs)
	require.Len(t, records, 2)
	assert.Equal(t, "req-0", records[0].Key.RequestID)
	assert.True(t, records[1].Error)
}

func TestAuditRepository_QueryByField_NoMatches(t *testing.T) {
	mock := &mockQuerier{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &mockRows{}, nil
		},
	}

	repo := NewAuditRepositoryWithQuerier(mock)
	records, err := repo.QueryByField(context.Background(), "pool1", "request_id", "req-unseen")

	require.NoError(t, err)
	assert.NotNil(t, records, "no matches is an empty list, not null")
	assert.Empty(t, records)
}

func TestAuditRepository_QueryByField_UnknownField(t *testing.T) {
	queried := false
	mock := &mockQuerier{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			queried = true
			return &mockRows{}, nil
		},
	}

	repo := NewAuditRepositoryWithQuerier(mock)
	_, err := repo.QueryByField(context.Background(), "pool1", "created_at; DROP TABLE x", "v")

	require.Error(t, err)
	assert.False(t, queried, "an unknown field must be rejected before it reaches SQL")
}

func TestAuditRepository_QueryByField_PoolMissing(t *testing.T) {
	mock := &mockQuerier{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return nil, undefinedTableError()
		},
	}

	repo := NewAuditRepositoryWithQuerier(mock)
	records, err := repo.QueryByField(context.Background(), "ghost", "transaction_id", "tx-0")

	require.Error(t, err)
	assert.Nil(t, records)
	assert.True(t, errors.Is(err, service.ErrNoPool))
}
