package quality

import "agrichain/pkg/ledger"

// ContractName is the namespace and registry name of the quality contract.
const ContractName = "quality-verification"

// Test is a lab result recorded against a shipment. TestDate is a block height.
type Test struct {
	ID         string           `json:"test-id"`
	ShipmentID string           `json:"shipment-id"`
	TestType   string           `json:"test-type"`
	Result     string           `json:"result"`
	Passed     bool             `json:"passed"`
	TestDate   uint64           `json:"test-date"`
	Tester     ledger.Principal `json:"tester"`
	Notes      string           `json:"notes"`
}

// AllPassed is true when tests is non-empty and every test passed.
func AllPassed(tests []Test) bool {
	if len(tests) == 0 {
		return false
	}
	for _, t := range tests {
		if !t.Passed {
			return false
		}
	}
	return true
}
