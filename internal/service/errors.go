package service

import "errors"

var (
	// ErrNoPool is returned when a pool's tables have not been created yet
	// (no import has ever run for that pool name).
	ErrNoPool = errors.New("voucher pool does not exist")

	// ErrNoVoucher is returned when no unused voucher matches the requested
	// operator and denomination.
	ErrNoVoucher = errors.New("no voucher available")

	// ErrAuditMismatch is returned when a request id has been seen before
	// with different parameters.
	ErrAuditMismatch = errors.New("request already performed with different parameters")
)
