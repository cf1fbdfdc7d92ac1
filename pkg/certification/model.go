package certification

import "agrichain/pkg/ledger"

// ContractName is the namespace and registry name of the certification contract.
const ContractName = "crop-certification"

// Type is the certification scheme.
type Type uint8

const (
	TypeOrganic                  Type = 1
	TypeFairTrade                Type = 2
	TypeNonGMO                   Type = 3
	TypeGoodAgriculturalPractice Type = 4
)

// Valid reports whether t is one of the known schemes.
func (t Type) Valid() bool {
	return t >= TypeOrganic && t <= TypeGoodAgriculturalPractice
}

func (t Type) String() string {
	switch t {
	case TypeOrganic:
		return "organic"
	case TypeFairTrade:
		return "fair-trade"
	case TypeNonGMO:
		return "non-gmo"
	case TypeGoodAgriculturalPractice:
		return "good-agricultural-practice"
	default:
		return "unknown"
	}
}

// Certification is a time-bounded claim about a farm's crop. Dates are block heights.
type Certification struct {
	ID         string           `json:"certification-id"`
	FarmID     string           `json:"farm-id"`
	CropType   string           `json:"crop-type"`
	Type       Type             `json:"certification-type"`
	IssueDate  uint64           `json:"issue-date"`
	ExpiryDate uint64           `json:"expiry-date"`
	Certifier  ledger.Principal `json:"certifier"`
	Revoked    bool             `json:"revoked"`
	RevokedAt  uint64           `json:"revoked-at,omitempty"`
	RevokedBy  ledger.Principal `json:"revoked-by,omitempty"`
}

// ActiveAt reports whether the certification is unrevoked and unexpired at height.
// Farm verification is checked separately.
func (c Certification) ActiveAt(height uint64) bool {
	return !c.Revoked && height < c.ExpiryDate
}
