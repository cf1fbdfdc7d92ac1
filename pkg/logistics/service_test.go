package logistics_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"agrichain/internal/testutil"
	"agrichain/pkg/farm"
	"agrichain/pkg/ledger"
	"agrichain/pkg/logistics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	farms     *farm.Service
	shipments *logistics.Service
	clock     *ledger.ManualClock
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewMemoryStore(t)
	clock := testutil.NewClock()
	gov := testutil.Governance()

	farms := farm.NewService(farm.NewRepository(store), clock, gov, nil)
	t.Cleanup(farms.Close)
	shipments := logistics.NewService(logistics.NewRepository(store), farms, clock, gov, nil)
	t.Cleanup(shipments.Close)

	require.NoError(t, farms.RegisterFarm(ctx, testutil.Tx(testutil.Farmer), testutil.FarmID, testutil.FarmName, testutil.FarmLocation))
	require.NoError(t, farms.VerifyFarm(ctx, testutil.Tx(testutil.Owner), testutil.FarmID))
	return fixture{farms: farms, shipments: shipments, clock: clock}
}

func (f fixture) create(t *testing.T, id string) ledger.Tx {
	t.Helper()
	tx := testutil.Tx(testutil.Farmer)
	require.NoError(t, f.shipments.CreateShipment(context.Background(), tx, id, testutil.FarmID, testutil.CropType,
		testutil.Quantity, testutil.Origin, testutil.Destination))
	return tx
}

func TestCreateShipment(t *testing.T) {
	f := setup(t)
	tx := f.create(t, testutil.ShipmentID)

	got, err := f.shipments.GetShipmentDetails(context.Background(), testutil.ShipmentID)
	require.NoError(t, err)
	want := logistics.Shipment{
		ID:              testutil.ShipmentID,
		FarmID:          testutil.FarmID,
		Owner:           testutil.Farmer,
		CropType:        testutil.CropType,
		Quantity:        testutil.Quantity,
		Origin:          testutil.Origin,
		Destination:     testutil.Destination,
		Status:          logistics.StatusCreated,
		CurrentLocation: testutil.Origin,
		CreationDate:    testutil.FixtureHeight,
		LastUpdated:     testutil.FixtureHeight,
		Updates:         1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("shipment mismatch (-want +got):\n%s", diff)
	}

	history, err := f.shipments.GetShipmentHistory(context.Background(), testutil.ShipmentID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, logistics.HistoryEntry{
		Status:      logistics.StatusCreated,
		Location:    testutil.Origin,
		BlockHeight: testutil.FixtureHeight,
		UpdatedBy:   testutil.Farmer,
		TxID:        tx.TxID,
	}, history[0])

	ok, err := f.shipments.ShipmentExists(context.Background(), testutil.ShipmentID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateShipment_Rejections(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	farmer := testutil.Tx(testutil.Farmer)

	require.NoError(t, f.farms.RegisterFarm(ctx, farmer, "pending-farm", "Pending", "Somewhere"))

	cases := []struct {
		name     string
		tx       ledger.Tx
		id       string
		farmID   string
		quantity uint64
		want     error
	}{
		{"zero quantity", farmer, "s1", testutil.FarmID, 0, logistics.ErrInvalidQuantity},
		{"missing farm", farmer, "s1", "nowhere", 1, logistics.ErrFarmNotFound},
		{"not the farm owner", testutil.Tx(testutil.Stranger), "s1", testutil.FarmID, 1, logistics.ErrUnauthorized},
		{"unverified farm", farmer, "s1", "pending-farm", 1, logistics.ErrFarmNotVerified},
		{"empty id", farmer, "", testutil.FarmID, 1, logistics.ErrInvalidInput},
		{"key separator in id", farmer, "s\x1f1", testutil.FarmID, 1, logistics.ErrInvalidInput},
		{"key separator in farm id", farmer, "s1", "farm\x1f123", 1, logistics.ErrInvalidInput},
		{"no sender", ledger.Tx{}, "s1", testutil.FarmID, 1, ledger.ErrMissingSender},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.shipments.CreateShipment(ctx, tc.tx, tc.id, tc.farmID, testutil.CropType, tc.quantity, testutil.Origin, testutil.Destination)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	f.create(t, testutil.ShipmentID)
	err := f.shipments.CreateShipment(ctx, farmer, testutil.ShipmentID, testutil.FarmID, testutil.CropType, 1, testutil.Origin, testutil.Destination)
	assert.ErrorIs(t, err, logistics.ErrShipmentExists)

	ok, err := f.shipments.ShipmentExists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateShipmentStatus(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.create(t, testutil.ShipmentID)
	farmer := testutil.Tx(testutil.Farmer)

	f.clock.Advance(6)
	require.NoError(t, f.shipments.UpdateShipmentStatus(ctx, farmer, testutil.ShipmentID, logistics.StatusInTransit, testutil.Checkpoint))
	f.clock.Advance(6)
	require.NoError(t, f.shipments.UpdateShipmentStatus(ctx, testutil.Tx(testutil.Owner), testutil.ShipmentID, logistics.StatusInTransit, "Colorado, USA"))
	f.clock.Advance(6)
	require.NoError(t, f.shipments.UpdateShipmentStatus(ctx, farmer, testutil.ShipmentID, logistics.StatusDelivered, testutil.Destination))

	sh, err := f.shipments.GetShipmentDetails(ctx, testutil.ShipmentID)
	require.NoError(t, err)
	assert.Equal(t, logistics.StatusDelivered, sh.Status)
	assert.Equal(t, testutil.Destination, sh.CurrentLocation)
	assert.Equal(t, testutil.FixtureHeight+18, sh.LastUpdated)
	assert.Equal(t, testutil.FixtureHeight, sh.CreationDate)

	history, err := f.shipments.GetShipmentHistory(ctx, testutil.ShipmentID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	locations := []string{testutil.Origin, testutil.Checkpoint, "Colorado, USA", testutil.Destination}
	for i, e := range history {
		assert.Equal(t, uint64(i), e.Sequence)
		assert.Equal(t, locations[i], e.Location)
		assert.Equal(t, testutil.FixtureHeight+uint64(6*i), e.BlockHeight)
	}
	assert.Equal(t, testutil.Owner, history[2].UpdatedBy)

	err = f.shipments.UpdateShipmentStatus(ctx, farmer, testutil.ShipmentID, logistics.StatusCancelled, testutil.Destination)
	assert.ErrorIs(t, err, logistics.ErrInvalidTransition)
}

func TestUpdateShipmentStatus_Rejections(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.create(t, testutil.ShipmentID)
	farmer := testutil.Tx(testutil.Farmer)

	assert.ErrorIs(t, f.shipments.UpdateShipmentStatus(ctx, farmer, "missing", logistics.StatusInTransit, testutil.Checkpoint), logistics.ErrNotFound)
	assert.ErrorIs(t, f.shipments.UpdateShipmentStatus(ctx, farmer, testutil.ShipmentID, logistics.Status(7), testutil.Checkpoint), logistics.ErrInvalidStatus)
	assert.ErrorIs(t, f.shipments.UpdateShipmentStatus(ctx, farmer, testutil.ShipmentID, logistics.StatusDelivered, testutil.Checkpoint), logistics.ErrInvalidTransition)
	assert.ErrorIs(t, f.shipments.UpdateShipmentStatus(ctx, farmer, testutil.ShipmentID, logistics.StatusCreated, testutil.Checkpoint), logistics.ErrInvalidTransition)
	assert.ErrorIs(t, f.shipments.UpdateShipmentStatus(ctx, testutil.Tx(testutil.Stranger), testutil.ShipmentID, logistics.StatusInTransit, testutil.Checkpoint), logistics.ErrUnauthorized)
	assert.ErrorIs(t, f.shipments.UpdateShipmentStatus(ctx, farmer, testutil.ShipmentID, logistics.StatusInTransit, ""), logistics.ErrInvalidInput)

	_, err := f.shipments.GetShipmentHistory(ctx, "missing")
	assert.ErrorIs(t, err, logistics.ErrNotFound)

	history, err := f.shipments.GetShipmentHistory(ctx, testutil.ShipmentID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCanTransition(t *testing.T) {
	all := []logistics.Status{logistics.StatusCreated, logistics.StatusInTransit, logistics.StatusDelivered, logistics.StatusCancelled}
	allowed := map[[2]logistics.Status]bool{
		{logistics.StatusCreated, logistics.StatusInTransit}:   true,
		{logistics.StatusCreated, logistics.StatusCancelled}:   true,
		{logistics.StatusInTransit, logistics.StatusInTransit}: true,
		{logistics.StatusInTransit, logistics.StatusDelivered}: true,
		{logistics.StatusInTransit, logistics.StatusCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]logistics.Status{from, to}], logistics.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

// Any sequence of requested updates leaves the shipment in the state the
// transition table predicts, with one history entry per accepted update.
func TestUpdateShipmentStatus_Property(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	farmer := testutil.Tx(testutil.Farmer)
	n := 0

	rapid.Check(t, func(rt *rapid.T) {
		n++
		id := fmt.Sprintf("prop-%d", n)
		require.NoError(rt, f.shipments.CreateShipment(ctx, farmer, id, testutil.FarmID, testutil.CropType, 1, testutil.Origin, testutil.Destination))

		requested := rapid.SliceOfN(rapid.IntRange(0, 5), 0, 12).Draw(rt, "statuses")
		state := logistics.StatusCreated
		accepted := 1
		for _, r := range requested {
			next := logistics.Status(r)
			err := f.shipments.UpdateShipmentStatus(ctx, farmer, id, next, testutil.Checkpoint)
			switch {
			case !next.Valid():
				assert.ErrorIs(rt, err, logistics.ErrInvalidStatus)
			case logistics.CanTransition(state, next):
				require.NoError(rt, err)
				state = next
				accepted++
			default:
				assert.ErrorIs(rt, err, logistics.ErrInvalidTransition)
			}
		}

		sh, err := f.shipments.GetShipmentDetails(ctx, id)
		require.NoError(rt, err)
		assert.Equal(rt, state, sh.Status)

		history, err := f.shipments.GetShipmentHistory(ctx, id)
		require.NoError(rt, err)
		require.Len(rt, history, accepted)
		for i, e := range history {
			assert.Equal(rt, uint64(i), e.Sequence)
		}
		assert.Equal(rt, state, history[len(history)-1].Status)
	})
}
