package logistics

import "agrichain/pkg/ledger"

// ContractName is the namespace and registry name of the shipment tracker.
const ContractName = "logistics-tracking"

// Status is the lifecycle state of a shipment.
type Status uint8

const (
	StatusCreated   Status = 1
	StatusInTransit Status = 2
	StatusDelivered Status = 3
	StatusCancelled Status = 4
)

func (s Status) Valid() bool {
	return s >= StatusCreated && s <= StatusCancelled
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusInTransit:
		return "in-transit"
	case StatusDelivered:
		return "delivered"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further updates are accepted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusCreated:   {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusInTransit, StatusDelivered, StatusCancelled},
}

// CanTransition reports whether a shipment in from may move to to.
// InTransit to InTransit records a checkpoint.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Shipment is a consignment of crop leaving a farm. Dates are block heights.
type Shipment struct {
	ID              string           `json:"shipment-id"`
	FarmID          string           `json:"farm-id"`
	Owner           ledger.Principal `json:"owner"`
	CropType        string           `json:"crop-type"`
	Quantity        uint64           `json:"quantity"`
	Origin          string           `json:"origin"`
	Destination     string           `json:"destination"`
	Status          Status           `json:"status"`
	CurrentLocation string           `json:"current-location"`
	CreationDate    uint64           `json:"creation-date"`
	LastUpdated     uint64           `json:"last-updated"`
	Updates         uint64           `json:"updates"`
}

// HistoryEntry is one append-only status record.
type HistoryEntry struct {
	Sequence    uint64           `json:"sequence"`
	Status      Status           `json:"status"`
	Location    string           `json:"location"`
	BlockHeight uint64           `json:"block-height"`
	UpdatedBy   ledger.Principal `json:"updated-by"`
	TxID        string           `json:"tx-id"`
}
