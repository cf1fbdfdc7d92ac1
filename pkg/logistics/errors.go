package logistics

import "agrichain/pkg/ledger"

var (
	ErrUnauthorized      = ledger.NewError(ledger.KindUnauthorized, 400, "sender may not manage this shipment")
	ErrShipmentExists    = ledger.NewError(ledger.KindConflict, 401, "shipment already exists")
	ErrNotFound          = ledger.NewError(ledger.KindNotFound, 402, "shipment not found")
	ErrInvalidStatus     = ledger.NewError(ledger.KindValidation, 403, "unknown shipment status")
	ErrInvalidTransition = ledger.NewError(ledger.KindInvalidState, 404, "status transition not allowed")
	ErrInvalidQuantity   = ledger.NewError(ledger.KindValidation, 405, "quantity must be greater than zero")
	ErrFarmNotFound      = ledger.NewError(ledger.KindNotFound, 406, "farm not found")
	ErrFarmNotVerified   = ledger.NewError(ledger.KindInvalidState, 407, "farm is not verified")
	ErrInvalidInput      = ledger.NewError(ledger.KindValidation, 408, "invalid shipment input")
)
