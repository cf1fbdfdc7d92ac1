package farm

import "agrichain/pkg/ledger"

// ContractName is the namespace and registry name of the farm registry.
const ContractName = "farm-verification"

// Status is the verification state of a farm.
type Status uint8

const (
	StatusPending   Status = 1
	StatusVerified  Status = 2
	StatusSuspended Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusVerified:
		return "verified"
	case StatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Farm is a registered producer. Dates are block heights.
type Farm struct {
	ID               string           `json:"farm-id"`
	Owner            ledger.Principal `json:"owner"`
	Name             string           `json:"name"`
	Location         string           `json:"location"`
	Status           Status           `json:"status"`
	RegistrationDate uint64           `json:"registration-date"`
	LastUpdated      uint64           `json:"last-updated"`
	ReviewedBy       ledger.Principal `json:"reviewed-by,omitempty"`
}
