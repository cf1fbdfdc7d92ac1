package farm

import "agrichain/pkg/ledger"

var (
	ErrUnauthorized     = ledger.NewError(ledger.KindUnauthorized, 100, "only the contract owner can review farms")
	ErrFarmExists       = ledger.NewError(ledger.KindConflict, 101, "farm already registered")
	ErrFarmNotFound     = ledger.NewError(ledger.KindNotFound, 102, "farm not found")
	ErrInvalidInput     = ledger.NewError(ledger.KindValidation, 103, "invalid farm input")
	ErrAlreadyVerified  = ledger.NewError(ledger.KindInvalidState, 104, "farm is already verified")
	ErrAlreadySuspended = ledger.NewError(ledger.KindInvalidState, 105, "farm is already suspended")
)
