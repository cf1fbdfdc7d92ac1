package ledger

import "github.com/google/uuid"

// Tx carries the caller context of a single contract call.
type Tx struct {
	Sender Principal
	TxID   string
}

// NewTx stamps a fresh transaction id for sender.
func NewTx(sender Principal) Tx {
	return Tx{Sender: sender, TxID: uuid.NewString()}
}

// Authenticated fails with ErrMissingSender when the transaction has no sender.
func (t Tx) Authenticated() error {
	if t.Sender == "" {
		return ErrMissingSender
	}
	return nil
}

// Governance holds the contract owner shared by every contract.
type Governance struct {
	Owner Principal
}

// IsOwner reports whether p is the configured contract owner.
func (g Governance) IsOwner(p Principal) bool {
	return g.Owner != "" && p == g.Owner
}
