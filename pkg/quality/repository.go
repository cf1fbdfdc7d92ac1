package quality

import (
	"context"
	"encoding/json"
	"fmt"

	"agrichain/pkg/roster"
	"agrichain/pkg/storage"
)

const (
	testObject    = "test"
	shipmentIndex = "shipment~test"
	testerRole    = "tester"
)

// Repository stores lab tests, the per-shipment index and the tester roster.
type Repository struct {
	store   storage.Store
	testers *roster.Roster
}

func NewRepository(store storage.Store) *Repository {
	return &Repository{store: store, testers: roster.New(store, ContractName, testerRole)}
}

func (r *Repository) Testers() *roster.Roster { return r.testers }

func (r *Repository) Get(ctx context.Context, id string) (Test, bool, error) {
	key, err := storage.CompositeKey(testObject, id)
	if err != nil {
		return Test{}, false, err
	}
	raw, err := r.store.Get(ctx, ContractName, key)
	if err != nil || raw == nil {
		return Test{}, false, err
	}
	var t Test
	if err := json.Unmarshal(raw, &t); err != nil {
		return Test{}, false, fmt.Errorf("decode test %s: %w", id, err)
	}
	return t, true, nil
}

// Insert writes a new test and indexes it under its shipment.
func (r *Repository) Insert(ctx context.Context, t Test) error {
	key, err := storage.CompositeKey(testObject, t.ID)
	if err != nil {
		return err
	}
	idx, err := storage.CompositeKey(shipmentIndex, t.ShipmentID, t.ID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode test %s: %w", t.ID, err)
	}
	if err := r.store.Put(ctx, ContractName, key, raw); err != nil {
		return err
	}
	return r.store.Put(ctx, ContractName, idx, []byte{0x00})
}

func (r *Repository) ListByShipment(ctx context.Context, shipmentID string) ([]Test, error) {
	prefix, err := storage.CompositeKey(shipmentIndex, shipmentID)
	if err != nil {
		return nil, err
	}
	kvs, err := r.store.Scan(ctx, ContractName, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Test, 0, len(kvs))
	for _, kv := range kvs {
		_, attrs := storage.SplitCompositeKey(kv.Key)
		if len(attrs) != 2 {
			continue
		}
		t, ok, err := r.Get(ctx, attrs[1])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}
