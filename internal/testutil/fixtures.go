package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agrichain/pkg/ledger"
	"agrichain/pkg/storage"
	"agrichain/pkg/storage/sqlstore"
)

// Principals used across tests.
const (
	Owner     ledger.Principal = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	Tester    ledger.Principal = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"
	Farmer    ledger.Principal = "ST2JHG361ZXG51QTKY2NQCVBPPRRE2KZB1HR05NNC"
	Certifier ledger.Principal = "ST2NEB84ASENDXKYGJPQW86YXQCEFEX2ZQPG87ND"
	Stranger  ledger.Principal = "ST3AM1A56AK2C1XAFJ4115ZSV26EB49BVQ10MGCS0"
)

// Fixture values.
const (
	FixtureHeight uint64 = 12345

	FarmID       = "farm123"
	FarmName     = "Green Acres"
	FarmLocation = "California, USA"

	CertificationID = "cert123"
	CropType        = "Organic Tomatoes"
	OneYearBlocks   = 52560

	ShipmentID  = "ship123"
	Quantity    = 1000
	Origin      = "California, USA"
	Destination = "New York, USA"
	Checkpoint  = "Nevada, USA"

	TestID     = "test123"
	TestType   = "Pesticide Residue"
	TestResult = "Below threshold"
	TestNotes  = "Sample was clean"
)

// Governance returns the fixture governance with Owner as contract owner.
func Governance() ledger.Governance {
	return ledger.Governance{Owner: Owner}
}

// Tx builds a transaction sent by p.
func Tx(p ledger.Principal) ledger.Tx {
	return ledger.NewTx(p)
}

// NewClock starts a manual clock at FixtureHeight.
func NewClock() *ledger.ManualClock {
	return ledger.NewManualClock(FixtureHeight)
}

// NewMemoryStore opens an in-memory world state that is closed when the test ends.
func NewMemoryStore(t testing.TB) storage.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), storage.TypeMemory, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}
