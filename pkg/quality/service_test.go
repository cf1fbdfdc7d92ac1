package quality_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"agrichain/internal/testutil"
	"agrichain/pkg/ledger"
	"agrichain/pkg/quality"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// knownShipments stands in for the logistics contract.
type knownShipments map[string]bool

func (k knownShipments) ShipmentExists(_ context.Context, id string) (bool, error) {
	return k[id], nil
}

func newService(t *testing.T) (*quality.Service, *ledger.ManualClock) {
	t.Helper()
	clock := testutil.NewClock()
	shipments := knownShipments{testutil.ShipmentID: true, "ship456": true}
	svc := quality.NewService(quality.NewRepository(testutil.NewMemoryStore(t)), shipments, clock, testutil.Governance(), nil)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.AddTester(context.Background(), testutil.Tx(testutil.Owner), testutil.Tester))
	return svc, clock
}

func record(t *testing.T, svc *quality.Service, id, shipmentID string, passed bool) {
	t.Helper()
	require.NoError(t, svc.RecordTest(context.Background(), testutil.Tx(testutil.Tester), id, shipmentID,
		testutil.TestType, testutil.TestResult, passed, testutil.TestNotes))
}

func TestRecordTest(t *testing.T) {
	svc, _ := newService(t)
	record(t, svc, testutil.TestID, testutil.ShipmentID, true)

	got, err := svc.GetTestDetails(context.Background(), testutil.TestID)
	require.NoError(t, err)
	want := quality.Test{
		ID:         testutil.TestID,
		ShipmentID: testutil.ShipmentID,
		TestType:   testutil.TestType,
		Result:     testutil.TestResult,
		Passed:     true,
		TestDate:   testutil.FixtureHeight,
		Tester:     testutil.Tester,
		Notes:      testutil.TestNotes,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("test mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordTest_Rejections(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tester := testutil.Tx(testutil.Tester)

	assert.ErrorIs(t, svc.RecordTest(ctx, testutil.Tx(testutil.Stranger), "t1", testutil.ShipmentID, testutil.TestType, testutil.TestResult, true, ""), quality.ErrUnauthorized)
	assert.ErrorIs(t, svc.RecordTest(ctx, testutil.Tx(testutil.Owner), "t1", testutil.ShipmentID, testutil.TestType, testutil.TestResult, true, ""), quality.ErrUnauthorized)
	assert.ErrorIs(t, svc.RecordTest(ctx, tester, "t1", "unknown", testutil.TestType, testutil.TestResult, true, ""), quality.ErrShipmentMissing)
	assert.ErrorIs(t, svc.RecordTest(ctx, tester, "t1", testutil.ShipmentID, "", testutil.TestResult, true, ""), quality.ErrInvalidInput)
	assert.ErrorIs(t, svc.RecordTest(ctx, tester, "t\x1f1", testutil.ShipmentID, testutil.TestType, testutil.TestResult, true, ""), quality.ErrInvalidInput)
	assert.ErrorIs(t, svc.RecordTest(ctx, tester, "t1", "ship\x1f123", testutil.TestType, testutil.TestResult, true, ""), quality.ErrInvalidInput)
	assert.ErrorIs(t, svc.RecordTest(ctx, tester, "t1", testutil.ShipmentID, testutil.TestType, testutil.TestResult, true, strings.Repeat("n", ledger.MaxNotesLength+1)), quality.ErrInvalidInput)

	require.NoError(t, svc.RecordTest(ctx, tester, "t1", testutil.ShipmentID, testutil.TestType, testutil.TestResult, true, strings.Repeat("n", ledger.MaxNotesLength)))
	assert.ErrorIs(t, svc.RecordTest(ctx, tester, "t1", testutil.ShipmentID, testutil.TestType, testutil.TestResult, true, ""), quality.ErrTestExists)

	_, err := svc.GetTestDetails(ctx, "missing")
	assert.ErrorIs(t, err, quality.ErrNotFound)
}

func TestTesterRoster(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	owner := testutil.Tx(testutil.Owner)

	assert.ErrorIs(t, svc.AddTester(ctx, owner, testutil.Tester), quality.ErrAlreadyTester)
	assert.ErrorIs(t, svc.AddTester(ctx, testutil.Tx(testutil.Tester), testutil.Stranger), quality.ErrUnauthorized)
	assert.ErrorIs(t, svc.AddTester(ctx, owner, "bogus"), ledger.ErrInvalidPrincipal)
	assert.ErrorIs(t, svc.RemoveTester(ctx, owner, testutil.Stranger), quality.ErrNotTester)

	ok, err := svc.IsTester(ctx, testutil.Tester)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := svc.ListTesters(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, testutil.FixtureHeight, members[0].AddedAt)

	require.NoError(t, svc.RemoveTester(ctx, owner, testutil.Tester))
	ok, err = svc.IsTester(ctx, testutil.Tester)
	require.NoError(t, err)
	assert.False(t, ok)

	err = svc.RecordTest(ctx, testutil.Tx(testutil.Tester), "t1", testutil.ShipmentID, testutil.TestType, testutil.TestResult, true, "")
	assert.ErrorIs(t, err, quality.ErrUnauthorized)
}

func TestShipmentPassedAllTests(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	ok, err := svc.ShipmentPassedAllTests(ctx, testutil.ShipmentID)
	require.NoError(t, err)
	assert.False(t, ok, "no tests recorded")

	record(t, svc, "t1", testutil.ShipmentID, true)
	record(t, svc, "t2", testutil.ShipmentID, true)
	record(t, svc, "t3", "ship456", false)

	ok, err = svc.ShipmentPassedAllTests(ctx, testutil.ShipmentID)
	require.NoError(t, err)
	assert.True(t, ok)

	record(t, svc, "t4", testutil.ShipmentID, false)
	ok, err = svc.ShipmentPassedAllTests(ctx, testutil.ShipmentID)
	require.NoError(t, err)
	assert.False(t, ok)

	tests, err := svc.ListShipmentTests(ctx, testutil.ShipmentID)
	require.NoError(t, err)
	require.Len(t, tests, 3)
	assert.Equal(t, "t1", tests[0].ID)
	assert.Equal(t, "t4", tests[2].ID)
}

func TestAllPassed_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		results := rapid.SliceOf(rapid.Bool()).Draw(rt, "results")
		tests := make([]quality.Test, len(results))
		failed := 0
		for i, passed := range results {
			tests[i] = quality.Test{ID: fmt.Sprintf("t%d", i), Passed: passed}
			if !passed {
				failed++
			}
		}
		assert.Equal(rt, len(results) > 0 && failed == 0, quality.AllPassed(tests))
	})
}

func TestShipmentPassedAllTests_Property(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tester := testutil.Tx(testutil.Tester)

	type tally struct{ total, failed int }
	model := map[string]*tally{testutil.ShipmentID: {}, "ship456": {}}
	n := 0

	rapid.Check(t, func(rt *rapid.T) {
		shipmentID := rapid.SampledFrom([]string{testutil.ShipmentID, "ship456"}).Draw(rt, "shipment")
		passed := rapid.Bool().Draw(rt, "passed")
		n++
		require.NoError(rt, svc.RecordTest(ctx, tester, fmt.Sprintf("run%04d", n), shipmentID, testutil.TestType, testutil.TestResult, passed, ""))

		m := model[shipmentID]
		m.total++
		if !passed {
			m.failed++
		}
		for id, m := range model {
			got, err := svc.ShipmentPassedAllTests(ctx, id)
			require.NoError(rt, err)
			assert.Equal(rt, m.total > 0 && m.failed == 0, got, id)
		}
	})
}
