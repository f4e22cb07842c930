package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/airtime-voucher-service/internal/service"
)

// Caller-visible error messages. The wire contract fixes these strings;
// notably "No voucher available." travels as a 500 even though an empty
// pool is not an exceptional state.
const (
	msgNoPool        = "Voucher pool does not exist."
	msgNoVoucher     = "No voucher available."
	msgAuditMismatch = "This request has already been performed with different parameters."
	msgInternal      = "Internal server error."
)

// optionalID returns a pointer to id, or nil when it is empty so the
// request_id field serializes as JSON null.
func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// jsonError writes the {request_id, error} body every failed request gets.
func jsonError(c *fiber.Ctx, requestID *string, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"request_id": requestID,
		"error":      msg,
	})
}

// respondServiceError maps a service error to its fixed status and message.
// Anything outside the domain taxonomy is logged and answered as a 500.
func respondServiceError(c *fiber.Ctx, requestID *string, err error) error {
	var pErr *paramError
	switch {
	case errors.Is(err, service.ErrNoPool):
		return jsonError(c, requestID, fiber.StatusNotFound, msgNoPool)
	case errors.Is(err, service.ErrNoVoucher):
		return jsonError(c, requestID, fiber.StatusInternalServerError, msgNoVoucher)
	case errors.Is(err, service.ErrAuditMismatch):
		return jsonError(c, requestID, fiber.StatusBadRequest, msgAuditMismatch)
	case errors.As(err, &pErr):
		return jsonError(c, requestID, fiber.StatusBadRequest, pErr.msg)
	default:
		log.Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request failed")
		return jsonError(c, requestID, fiber.StatusInternalServerError, msgInternal)
	}
}
