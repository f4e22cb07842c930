package handler

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/airtime-voucher-service/internal/model"
)

// ImportServiceInterface defines the interface for import business logic.
type ImportServiceInterface interface {
	Import(ctx context.Context, pool, requestID, contentMD5 string, rows []model.ImportRow) error
}

// ImportHandler handles HTTP requests for bulk voucher imports.
type ImportHandler struct {
	service ImportServiceInterface
}

// NewImportHandler creates a new ImportHandler with the given service.
func NewImportHandler(svc ImportServiceInterface) *ImportHandler {
	return &ImportHandler{service: svc}
}

// Import handles PUT /:pool/import/:request_id requests. The body is CSV
// with an operator,denomination,voucher header and must carry a Content-MD5
// header matching the raw bytes; the lowercased digest doubles as the
// import's idempotency token.
func (h *ImportHandler) Import(c *fiber.Ctx) error {
	pool := c.Params("pool")
	requestID := c.Params("request_id")
	rid := optionalID(requestID)

	contentMD5 := c.Get("Content-MD5")
	if contentMD5 == "" {
		return jsonError(c, rid, fiber.StatusBadRequest, "Missing Content-MD5 header.")
	}
	contentMD5 = strings.ToLower(contentMD5)

	body := c.Body()
	if digest := fmt.Sprintf("%x", md5.Sum(body)); contentMD5 != digest {
		return jsonError(c, rid, fiber.StatusBadRequest, "Content-MD5 header does not match content.")
	}

	rows, err := parseVoucherCSV(body)
	if err != nil {
		return jsonError(c, rid, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Import(c.Context(), pool, requestID, contentMD5, rows); err != nil {
		return respondServiceError(c, rid, err)
	}

	log.Info().
		Str("pool", pool).
		Str("request_id", requestID).
		Int("vouchers", len(rows)).
		Msg("vouchers imported")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"request_id": rid,
		"imported":   true,
	})
}

// parseVoucherCSV decodes an import body. The header is case-insensitive
// and must contain the operator, denomination and voucher columns; column
// order and extra columns are accepted.
func parseVoucherCSV(body []byte) ([]model.ImportRow, error) {
	reader := csv.NewReader(bytes.NewReader(body))

	header, err := reader.Read()
	if err != nil {
		return nil, &paramError{"Missing CSV header."}
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"operator", "denomination", "voucher"} {
		if _, ok := columns[required]; !ok {
			return nil, &paramError{"CSV header must contain 'operator', 'denomination' and 'voucher' columns."}
		}
	}

	rows := []model.ImportRow{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &paramError{"Malformed CSV body."}
		}
		rows = append(rows, model.ImportRow{
			Operator:     record[columns["operator"]],
			Denomination: record[columns["denomination"]],
			Voucher:      record[columns["voucher"]],
		})
	}
	return rows, nil
}
