package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/airtime-voucher-service/internal/model"
)

// IssueServiceInterface defines the interface for issue business logic.
type IssueServiceInterface interface {
	Issue(ctx context.Context, pool, operator, denomination string, key model.AuditKey) (*model.Voucher, error)
}

// IssueHandler handles HTTP requests for single-voucher issuing.
type IssueHandler struct {
	service   IssueServiceInterface
	validator *validator.Validate
}

// NewIssueHandler creates a new IssueHandler with the given service and validator.
func NewIssueHandler(svc IssueServiceInterface, v *validator.Validate) *IssueHandler {
	return &IssueHandler{service: svc, validator: v}
}

// issueParamNames maps the DTO field names back to their wire names for
// validation messages.
var issueParamNames = map[string]string{
	"TransactionID": "transaction_id",
	"UserID":        "user_id",
	"Denomination":  "denomination",
}

// Issue handles PUT /:pool/issue/:operator/:request_id requests.
func (h *IssueHandler) Issue(c *fiber.Ctx) error {
	pool := c.Params("pool")
	operator := c.Params("operator")
	requestID := c.Params("request_id")
	rid := optionalID(requestID)

	params, err := parseJSONParams(c.Body(),
		[]string{"transaction_id", "user_id", "denomination"}, nil)
	if err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}

	var req model.IssueRequest
	if err := decodeParam(params, "transaction_id", &req.TransactionID); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}
	if err := decodeParam(params, "user_id", &req.UserID); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}
	if err := decodeParam(params, "denomination", &req.Denomination); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, formatIssueValidationError(err))
	}

	key := model.AuditKey{
		RequestID:     requestID,
		TransactionID: req.TransactionID,
		UserID:        req.UserID,
	}
	voucher, err := h.service.Issue(c.Context(), pool, operator, req.Denomination, key)
	if err != nil {
		return respondServiceError(c, rid, err)
	}

	log.Info().
		Str("pool", pool).
		Str("operator", operator).
		Str("denomination", req.Denomination).
		Str("request_id", requestID).
		Msg("voucher issued")

	return c.JSON(fiber.Map{
		"request_id": rid,
		"voucher":    voucher.Voucher,
	})
}

// formatIssueValidationError converts validator errors on the issue DTO to
// caller-visible messages.
func formatIssueValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if name, ok := issueParamNames[fe.Field()]; ok {
				return "Invalid value for parameter '" + name + "'."
			}
		}
	}
	return "Invalid request parameters."
}
