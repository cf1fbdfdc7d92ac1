package quality

import "agrichain/pkg/ledger"

var (
	ErrUnauthorized    = ledger.NewError(ledger.KindUnauthorized, 300, "sender is not authorized")
	ErrTestExists      = ledger.NewError(ledger.KindConflict, 301, "test already recorded")
	ErrNotFound        = ledger.NewError(ledger.KindNotFound, 302, "test not found")
	ErrShipmentMissing = ledger.NewError(ledger.KindNotFound, 303, "shipment not found")
	ErrAlreadyTester   = ledger.NewError(ledger.KindConflict, 304, "principal is already a tester")
	ErrNotTester       = ledger.NewError(ledger.KindNotFound, 305, "principal is not a tester")
	ErrInvalidInput    = ledger.NewError(ledger.KindValidation, 306, "invalid test input")
)
