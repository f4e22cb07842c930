package handler

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/fairyhunter13/airtime-voucher-service/internal/model"
)

// createdAtLayout is ISO-8601 with microseconds, the format audit rows have
// always been reported in.
const createdAtLayout = "2006-01-02T15:04:05.000000"

// AuditServiceInterface defines the interface for audit and census queries.
type AuditServiceInterface interface {
	AuditQuery(ctx context.Context, pool, field, value string) ([]model.AuditRecord, error)
	VoucherCounts(ctx context.Context, pool string) ([]model.VoucherCount, error)
}

// AuditHandler handles HTTP requests for audit queries and voucher counts.
type AuditHandler struct {
	service AuditServiceInterface
}

// NewAuditHandler creates a new AuditHandler with the given service.
func NewAuditHandler(svc AuditServiceInterface) *AuditHandler {
	return &AuditHandler{service: svc}
}

// Query handles GET /:pool/audit_query?field=...&value=... requests.
func (h *AuditHandler) Query(c *fiber.Ctx) error {
	pool := c.Params("pool")
	queries := c.Queries()
	rid := optionalID(queries["request_id"])

	if err := checkParamKeys(queryKeys(queries), []string{"field", "value"}, []string{"request_id"}); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}

	field := queries["field"]
	switch field {
	case "request_id", "transaction_id", "user_id":
	default:
		return jsonError(c, rid, fiber.StatusBadRequest, "Invalid audit field.")
	}

	records, err := h.service.AuditQuery(c.Context(), pool, field, queries["value"])
	if err != nil {
		return respondServiceError(c, rid, err)
	}

	results := make([]model.AuditEntry, 0, len(records))
	for _, rec := range records {
		results = append(results, model.AuditEntry{
			RequestID:     rec.Key.RequestID,
			TransactionID: rec.Key.TransactionID,
			UserID:        rec.Key.UserID,
			RequestData:   json.RawMessage(rec.RequestData),
			ResponseData:  json.RawMessage(rec.ResponseData),
			Error:         rec.Error,
			CreatedAt:     rec.CreatedAt.Format(createdAtLayout),
		})
	}

	return c.JSON(fiber.Map{
		"request_id": rid,
		"results":    results,
	})
}

// VoucherCounts handles GET /:pool/voucher_counts requests.
func (h *AuditHandler) VoucherCounts(c *fiber.Ctx) error {
	pool := c.Params("pool")
	queries := c.Queries()
	rid := optionalID(queries["request_id"])

	if err := checkParamKeys(queryKeys(queries), nil, []string{"request_id"}); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}

	counts, err := h.service.VoucherCounts(c.Context(), pool)
	if err != nil {
		return respondServiceError(c, rid, err)
	}

	return c.JSON(fiber.Map{
		"request_id":     rid,
		"voucher_counts": counts,
	})
}

func queryKeys(queries map[string]string) []string {
	keys := make([]string, 0, len(queries))
	for name := range queries {
		keys = append(keys, name)
	}
	return keys
}
