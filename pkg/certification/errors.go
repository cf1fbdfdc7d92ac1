package certification

import "agrichain/pkg/ledger"

var (
	ErrUnauthorized        = ledger.NewError(ledger.KindUnauthorized, 200, "sender is not an authorized certifier")
	ErrCertificationExists = ledger.NewError(ledger.KindConflict, 201, "certification already exists")
	ErrNotFound            = ledger.NewError(ledger.KindNotFound, 202, "certification not found")
	ErrAlreadyRevoked      = ledger.NewError(ledger.KindInvalidState, 203, "certification already revoked")
	ErrInvalidType         = ledger.NewError(ledger.KindValidation, 204, "unknown certification type")
	ErrInvalidExpiry       = ledger.NewError(ledger.KindValidation, 205, "expiry blocks must be positive and keep the expiry height in range")
	ErrFarmNotVerified     = ledger.NewError(ledger.KindInvalidState, 206, "farm is not verified")
	ErrFarmNotFound        = ledger.NewError(ledger.KindNotFound, 207, "farm not found")
	ErrAlreadyCertifier    = ledger.NewError(ledger.KindConflict, 208, "principal is already a certifier")
	ErrNotCertifier        = ledger.NewError(ledger.KindNotFound, 209, "principal is not a certifier")
	ErrInvalidInput        = ledger.NewError(ledger.KindValidation, 210, "invalid certification input")
)
