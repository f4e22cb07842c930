package model

import (
	"encoding/json"
	"time"
)

// Consumption reasons recorded on a voucher when it is handed out.
const (
	ReasonIssued   = "issued"
	ReasonExported = "exported"
)

// Voucher is the projection of a voucher row exposed to callers and stored
// in audit response_data. Timestamps are deliberately excluded; Used and
// Reason reflect the row as read, before consumption.
type Voucher struct {
	ID           int64   `json:"id"`
	Operator     string  `json:"operator"`
	Denomination string  `json:"denomination"`
	Voucher      string  `json:"voucher"`
	Used         bool    `json:"used"`
	Reason       *string `json:"reason"`
}

// AuditKey is the identifying triple attached to every issue request.
type AuditKey struct {
	RequestID     string `json:"request_id"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
}

// IssueParams is the audited request_data payload for an issue request.
type IssueParams struct {
	Operator     string `json:"operator"`
	Denomination string `json:"denomination"`
}

// ImportRow is one voucher parsed from an import CSV body.
type ImportRow struct {
	Operator     string
	Denomination string
	Voucher      string
}

// ExportParams is the audited request_data payload for an export request.
// A nil Count means "all available"; nil Operators/Denominations mean "all
// known values", while an explicit empty list selects no pairs at all.
type ExportParams struct {
	Count         *int     `json:"count"`
	Operators     []string `json:"operators"`
	Denominations []string `json:"denominations"`
}

// ExportedVoucher is the projection of a consumed voucher returned by export.
type ExportedVoucher struct {
	Operator     string `json:"operator"`
	Denomination string `json:"denomination"`
	Voucher      string `json:"voucher"`
}

// ExportResult is the outcome of an export request, fresh or replayed.
type ExportResult struct {
	Vouchers []ExportedVoucher `json:"vouchers"`
	Warnings []string          `json:"warnings"`
}

// AuditRecord is a raw row from a pool's audit table. RequestData and
// ResponseData hold the stored JSON text verbatim.
type AuditRecord struct {
	Key          AuditKey
	RequestData  string
	ResponseData string
	Error        bool
	CreatedAt    time.Time
}

// ExportAuditRecord is a raw row from a pool's export_audit table.
type ExportAuditRecord struct {
	RequestID   string
	RequestData string
	Warnings    string
	CreatedAt   time.Time
}

// VoucherCount is one row of the grouped voucher census.
type VoucherCount struct {
	Operator     string `json:"operator"`
	Denomination string `json:"denomination"`
	Used         bool   `json:"used"`
	Count        int64  `json:"count"`
}

// IssueRequest is the DTO for the issue endpoint body.
type IssueRequest struct {
	TransactionID string `json:"transaction_id" validate:"max=255"`
	UserID        string `json:"user_id" validate:"max=255"`
	Denomination  string `json:"denomination" validate:"max=255"`
}

// ExportRequest is the DTO for the export endpoint body.
type ExportRequest struct {
	Count         *int     `json:"count" validate:"omitempty,gte=0"`
	Operators     []string `json:"operators" validate:"omitempty,dive,max=255"`
	Denominations []string `json:"denominations" validate:"omitempty,dive,max=255"`
}

// AuditEntry is the API projection of an audit row for audit_query results.
// RequestData and ResponseData carry the stored JSON decoded in place;
// CreatedAt is ISO-8601 with microseconds.
type AuditEntry struct {
	RequestID     string          `json:"request_id"`
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	RequestData   json.RawMessage `json:"request_data"`
	ResponseData  json.RawMessage `json:"response_data"`
	Error         bool            `json:"error"`
	CreatedAt     string          `json:"created_at"`
}
