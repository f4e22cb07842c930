package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/airtime-voucher-service/internal/model"
)

// ExportServiceInterface defines the interface for export business logic.
type ExportServiceInterface interface {
	Export(ctx context.Context, pool, requestID string, params model.ExportParams) (*model.ExportResult, error)
}

// ExportHandler handles HTTP requests for bulk voucher exports.
type ExportHandler struct {
	service   ExportServiceInterface
	validator *validator.Validate
}

// NewExportHandler creates a new ExportHandler with the given service and validator.
func NewExportHandler(svc ExportServiceInterface, v *validator.Validate) *ExportHandler {
	return &ExportHandler{service: svc, validator: v}
}

// exportParamNames maps the DTO field names back to their wire names for
// validation messages.
var exportParamNames = map[string]string{
	"Count":         "count",
	"Operators":     "operators",
	"Denominations": "denominations",
}

// Export handles PUT /:pool/export/:request_id requests. All body fields
// are optional; a null count means "all available" and null operator or
// denomination lists mean "all known values".
func (h *ExportHandler) Export(c *fiber.Ctx) error {
	pool := c.Params("pool")
	requestID := c.Params("request_id")
	rid := optionalID(requestID)

	params, err := parseJSONParams(c.Body(), nil,
		[]string{"count", "operators", "denominations"})
	if err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}

	var req model.ExportRequest
	if err := decodeParam(params, "count", &req.Count); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}
	if err := decodeParam(params, "operators", &req.Operators); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}
	if err := decodeParam(params, "denominations", &req.Denominations); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, formatExportValidationError(err))
	}

	result, err := h.service.Export(c.Context(), pool, requestID, model.ExportParams{
		Count:         req.Count,
		Operators:     req.Operators,
		Denominations: req.Denominations,
	})
	if err != nil {
		return respondServiceError(c, rid, err)
	}

	log.Info().
		Str("pool", pool).
		Str("request_id", requestID).
		Int("vouchers", len(result.Vouchers)).
		Int("warnings", len(result.Warnings)).
		Msg("vouchers exported")

	return c.JSON(fiber.Map{
		"request_id": rid,
		"vouchers":   result.Vouchers,
		"warnings":   result.Warnings,
	})
}

// formatExportValidationError converts validator errors on the export DTO
// to caller-visible messages.
func formatExportValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			// List elements report as e.g. Operators[2].
			if i := strings.IndexByte(field, '['); i >= 0 {
				field = field[:i]
			}
			if name, ok := exportParamNames[field]; ok {
				return "Invalid value for parameter '" + name + "'."
			}
		}
	}
	return "Invalid request parameters."
}
