package service

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/airtime-voucher-service/internal/model"
	"github.com/fairyhunter13/airtime-voucher-service/pkg/database"
)

// noVoucherTag is the response_data stored for an issue request that found
// no voucher. Replaying such a request re-raises ErrNoVoucher.
const noVoucherTag = "no_voucher"

// SchemaRepositoryInterface defines the interface for pool DDL.
type SchemaRepositoryInterface interface {
	CreateTables(ctx context.Context, tx database.TxQuerier, pool string) error
}

// VoucherRepositoryInterface defines the interface for voucher data access.
type VoucherRepositoryInterface interface {
	PickForUpdate(ctx context.Context, tx database.TxQuerier, pool, operator, denomination string) (*model.Voucher, error)
	Consume(ctx context.Context, tx database.TxQuerier, pool string, voucherID int64, reason string) error
	BulkInsert(ctx context.Context, tx database.BulkTxQuerier, pool string, rows []model.ImportRow) error
	Counts(ctx context.Context, pool string) ([]model.VoucherCount, error)
	ListOperators(ctx context.Context, tx database.TxQuerier, pool string) ([]string, error)
	ListDenominations(ctx context.Context, tx database.TxQuerier, pool string) ([]string, error)
}

// AuditRepositoryInterface defines the interface for the issue audit ledger.
type AuditRepositoryInterface interface {
	Record(ctx context.Context, tx database.TxQuerier, pool string, key model.AuditKey, reqData, respData string, isError bool) error
	FindByRequestID(ctx context.Context, tx database.TxQuerier, pool, requestID string) (*model.AuditRecord, error)
	QueryByField(ctx context.Context, pool, field, value string) ([]model.AuditRecord, error)
}

// ImportAuditRepositoryInterface defines the interface for the import ledger.
type ImportAuditRepositoryInterface interface {
	FindByRequestID(ctx context.Context, tx database.TxQuerier, pool, requestID string) (contentMD5 string, found bool, err error)
	Record(ctx context.Context, tx database.TxQuerier, pool, requestID, contentMD5 string) error
}

// ExportRepositoryInterface defines the interface for the export ledger.
type ExportRepositoryInterface interface {
	FindAudit(ctx context.Context, tx database.TxQuerier, pool, requestID string) (*model.ExportAuditRecord, error)
	RecordAudit(ctx context.Context, tx database.TxQuerier, pool, requestID, reqData, warnings string) error
	Link(ctx context.Context, tx database.TxQuerier, pool, requestID string, voucherID int64) error
	VouchersByRequestID(ctx context.Context, tx database.TxQuerier, pool, requestID string) ([]model.ExportedVoucher, error)
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// VoucherService implements the per-pool transactional voucher engine: every
// mutating operation runs in exactly one transaction and is made
// exactly-once by its audit ledger.
type VoucherService struct {
	pool     TxBeginner
	schema   SchemaRepositoryInterface
	vouchers VoucherRepositoryInterface
	audits   AuditRepositoryInterface
	imports  ImportAuditRepositoryInterface
	exports  ExportRepositoryInterface
}

// NewVoucherService creates a new VoucherService with the given pool and repositories.
func NewVoucherService(
	pool *pgxpool.Pool,
	schema SchemaRepositoryInterface,
	vouchers VoucherRepositoryInterface,
	audits AuditRepositoryInterface,
	imports ImportAuditRepositoryInterface,
	exports ExportRepositoryInterface,
) *VoucherService {
	return &VoucherService{
		pool:     pool,
		schema:   schema,
		vouchers: vouchers,
		audits:   audits,
		imports:  imports,
		exports:  exports,
	}
}

// NewVoucherServiceWithTxBeginner creates a VoucherService with a custom
// TxBeginner. Primarily used for testing.
func NewVoucherServiceWithTxBeginner(
	pool TxBeginner,
	schema SchemaRepositoryInterface,
	vouchers VoucherRepositoryInterface,
	audits AuditRepositoryInterface,
	imports ImportAuditRepositoryInterface,
	exports ExportRepositoryInterface,
) *VoucherService {
	return &VoucherService{
		pool:     pool,
		schema:   schema,
		vouchers: vouchers,
		audits:   audits,
		imports:  imports,
		exports:  exports,
	}
}

// pickAndConsume selects one unused voucher for (operator, denomination) and
// marks it used with the given reason, inside the caller's transaction.
// The returned projection reflects the row as read, before consumption.
// Returns nil, nil when the pool has no matching unused voucher.
func (s *VoucherService) pickAndConsume(ctx context.Context, tx database.TxQuerier, pool, operator, denomination, reason string) (*model.Voucher, error) {
	voucher, err := s.vouchers.PickForUpdate(ctx, tx, pool, operator, denomination)
	if err != nil || voucher == nil {
		return nil, err
	}
	if err := s.vouchers.Consume(ctx, tx, pool, voucher.ID, reason); err != nil {
		return nil, err
	}
	return voucher, nil
}

// Issue hands out one voucher for (operator, denomination), exactly once per
// audit key. A replayed request returns the originally issued voucher (or
// re-raises ErrNoVoucher); the same request id with different parameters
// fails with ErrAuditMismatch.
func (s *VoucherService) Issue(ctx context.Context, pool, operator, denomination string, key model.AuditKey) (*model.Voucher, error) {
	reqData := model.IssueParams{Operator: operator, Denomination: denomination}
	reqJSON, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("encode issue request: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	prior, err := s.audits.FindByRequestID(ctx, tx, pool, key.RequestID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return s.replayIssue(prior, key, reqData)
	}

	voucher, err := s.pickAndConsume(ctx, tx, pool, operator, denomination, model.ReasonIssued)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		// The exhausted outcome is audited and committed too, so a retry
		// replays the same failure instead of probing the pool again.
		tagJSON, _ := json.Marshal(noVoucherTag)
		if err := s.audits.Record(ctx, tx, pool, key, string(reqJSON), string(tagJSON), true); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return nil, ErrNoVoucher
	}

	respJSON, err := json.Marshal(voucher)
	if err != nil {
		return nil, fmt.Errorf("encode issued voucher: %w", err)
	}
	if err := s.audits.Record(ctx, tx, pool, key, string(reqJSON), string(respJSON), false); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return voucher, nil
}

// replayIssue reconstructs the outcome of a previously audited issue
// request. The audit key and the request parameters must both match the
// stored row; anything else is a protocol violation, not a retry.
func (s *VoucherService) replayIssue(prior *model.AuditRecord, key model.AuditKey, reqData model.IssueParams) (*model.Voucher, error) {
	var priorReq model.IssueParams
	if err := json.Unmarshal([]byte(prior.RequestData), &priorReq); err != nil {
		return nil, fmt.Errorf("decode audited request %s: %w", key.RequestID, err)
	}
	if prior.Key != key || priorReq != reqData {
		return nil, ErrAuditMismatch
	}

	if prior.Error {
		var tag string
		if err := json.Unmarshal([]byte(prior.ResponseData), &tag); err != nil || tag != noVoucherTag {
			return nil, fmt.Errorf("unrecognized audited error %q for request %s", prior.ResponseData, key.RequestID)
		}
		return nil, ErrNoVoucher
	}

	var voucher model.Voucher
	if err := json.Unmarshal([]byte(prior.ResponseData), &voucher); err != nil {
		return nil, fmt.Errorf("decode audited voucher for request %s: %w", key.RequestID, err)
	}
	return &voucher, nil
}

// Import adds vouchers to a pool, creating the pool's tables on first use.
// The request id plus the content MD5 form the idempotency token: a replay
// with the same MD5 is a no-op, a replay with a different MD5 fails with
// ErrAuditMismatch.
func (s *VoucherService) Import(ctx context.Context, pool, requestID, contentMD5 string, rows []model.ImportRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.schema.CreateTables(ctx, tx, pool); err != nil {
		return err
	}

	priorMD5, found, err := s.imports.FindByRequestID(ctx, tx, pool, requestID)
	if err != nil {
		return err
	}
	if found {
		if priorMD5 == contentMD5 {
			return nil // Replay - rollback discards nothing
		}
		return ErrAuditMismatch
	}

	if err := s.imports.Record(ctx, tx, pool, requestID, contentMD5); err != nil {
		return err
	}
	if err := s.vouchers.BulkInsert(ctx, tx, pool, rows); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Export consumes vouchers in bulk, exactly once per request id. For each
// (operator, denomination) pair it takes up to params.Count vouchers (all
// available when Count is nil) and records a warning when a pair comes up
// short. A replay with equal parameters rehydrates the original voucher list
// without consuming anything.
func (s *VoucherService) Export(ctx context.Context, pool, requestID string, params model.ExportParams) (*model.ExportResult, error) {
	reqJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode export request: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prior, err := s.exports.FindAudit(ctx, tx, pool, requestID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return s.replayExport(ctx, tx, pool, requestID, prior, params)
	}

	operators := params.Operators
	if operators == nil {
		if operators, err = s.vouchers.ListOperators(ctx, tx, pool); err != nil {
			return nil, err
		}
	}
	denominations := params.Denominations
	if denominations == nil {
		if denominations, err = s.vouchers.ListDenominations(ctx, tx, pool); err != nil {
			return nil, err
		}
	}

	result := &model.ExportResult{
		Vouchers: []model.ExportedVoucher{},
		Warnings: []string{},
	}
	for _, operator := range operators {
		for _, denomination := range denominations {
			taken := 0
			for params.Count == nil || taken < *params.Count {
				voucher, err := s.pickAndConsume(ctx, tx, pool, operator, denomination, model.ReasonExported)
				if err != nil {
					return nil, err
				}
				if voucher == nil {
					break
				}
				if err := s.exports.Link(ctx, tx, pool, requestID, voucher.ID); err != nil {
					return nil, err
				}
				result.Vouchers = append(result.Vouchers, model.ExportedVoucher{
					Operator:     voucher.Operator,
					Denomination: voucher.Denomination,
					Voucher:      voucher.Voucher,
				})
				taken++
			}
			if params.Count != nil && taken < *params.Count {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("Insufficient vouchers available for '%s' '%s'.", operator, denomination))
			}
		}
	}

	warnJSON, err := json.Marshal(result.Warnings)
	if err != nil {
		return nil, fmt.Errorf("encode export warnings: %w", err)
	}
	if err := s.exports.RecordAudit(ctx, tx, pool, requestID, string(reqJSON), string(warnJSON)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

// replayExport reconstructs the outcome of a previously audited export. The
// decoded request parameters must be deeply equal to the stored ones; a nil
// operator list and an explicit empty one are different requests.
func (s *VoucherService) replayExport(ctx context.Context, tx database.TxQuerier, pool, requestID string, prior *model.ExportAuditRecord, params model.ExportParams) (*model.ExportResult, error) {
	var priorParams model.ExportParams
	if err := json.Unmarshal([]byte(prior.RequestData), &priorParams); err != nil {
		return nil, fmt.Errorf("decode audited export request %s: %w", requestID, err)
	}
	if !reflect.DeepEqual(priorParams, params) {
		return nil, ErrAuditMismatch
	}

	vouchers, err := s.exports.VouchersByRequestID(ctx, tx, pool, requestID)
	if err != nil {
		return nil, err
	}
	warnings := []string{}
	if err := json.Unmarshal([]byte(prior.Warnings), &warnings); err != nil {
		return nil, fmt.Errorf("decode audited export warnings for request %s: %w", requestID, err)
	}
	return &model.ExportResult{Vouchers: vouchers, Warnings: warnings}, nil
}

// AuditQuery returns the issue audit rows whose field matches value, in
// creation order.
func (s *VoucherService) AuditQuery(ctx context.Context, pool, field, value string) ([]model.AuditRecord, error) {
	return s.audits.QueryByField(ctx, pool, field, value)
}

// VoucherCounts returns the pool's voucher census grouped by operator,
// denomination and used flag.
func (s *VoucherService) VoucherCounts(ctx context.Context, pool string) ([]model.VoucherCount, error) {
	return s.vouchers.Counts(ctx, pool)
}
