package farm

import (
	"context"
	"encoding/json"
	"fmt"

	"agrichain/pkg/ledger"
	"agrichain/pkg/storage"
)

const (
	farmObject  = "farm"
	ownerObject = "owner~farm"
)

// Repository maps farms onto the farm-verification namespace of the world state.
type Repository struct {
	store storage.Store
}

// NewRepository wires the store so the service goroutine can work without sharing mutable state.
func NewRepository(store storage.Store) *Repository {
	return &Repository{store: store}
}

// Get loads a farm; ok is false when it was never registered.
func (r *Repository) Get(ctx context.Context, id string) (Farm, bool, error) {
	key, err := storage.CompositeKey(farmObject, id)
	if err != nil {
		return Farm{}, false, err
	}
	raw, err := r.store.Get(ctx, ContractName, key)
	if err != nil || raw == nil {
		return Farm{}, false, err
	}
	var f Farm
	if err := json.Unmarshal(raw, &f); err != nil {
		return Farm{}, false, fmt.Errorf("decode farm %s: %w", id, err)
	}
	return f, true, nil
}

// Save writes the farm record.
func (r *Repository) Save(ctx context.Context, f Farm) error {
	key, err := storage.CompositeKey(farmObject, f.ID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode farm %s: %w", f.ID, err)
	}
	return r.store.Put(ctx, ContractName, key, raw)
}

// IndexOwner records that owner registered id.
func (r *Repository) IndexOwner(ctx context.Context, owner ledger.Principal, id string) error {
	key, err := storage.CompositeKey(ownerObject, string(owner), id)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, ContractName, key, []byte{0x00})
}

// List returns every farm ordered by id.
func (r *Repository) List(ctx context.Context) ([]Farm, error) {
	prefix, err := storage.CompositeKey(farmObject)
	if err != nil {
		return nil, err
	}
	kvs, err := r.store.Scan(ctx, ContractName, prefix)
	if err != nil {
		return nil, err
	}
	farms := make([]Farm, 0, len(kvs))
	for _, kv := range kvs {
		var f Farm
		if err := json.Unmarshal(kv.Value, &f); err != nil {
			return nil, fmt.Errorf("decode farm %q: %w", kv.Key, err)
		}
		farms = append(farms, f)
	}
	return farms, nil
}

// ListByOwner resolves the owner index into farm records.
func (r *Repository) ListByOwner(ctx context.Context, owner ledger.Principal) ([]Farm, error) {
	prefix, err := storage.CompositeKey(ownerObject, string(owner))
	if err != nil {
		return nil, err
	}
	kvs, err := r.store.Scan(ctx, ContractName, prefix)
	if err != nil {
		return nil, err
	}
	farms := make([]Farm, 0, len(kvs))
	for _, kv := range kvs {
		_, attrs := storage.SplitCompositeKey(kv.Key)
		if len(attrs) != 2 {
			continue
		}
		f, ok, err := r.Get(ctx, attrs[1])
		if err != nil {
			return nil, err
		}
		if ok {
			farms = append(farms, f)
		}
	}
	return farms, nil
}
