package logistics

import (
	"context"
	"encoding/json"
	"fmt"

	"agrichain/pkg/storage"
)

const (
	shipmentObject = "shipment"
	historyObject  = "history"
)

// Repository keeps shipments and their history rows in the logistics namespace.
// History keys carry a zero-padded sequence so a prefix scan returns them in order.
type Repository struct {
	store storage.Store
}

func NewRepository(store storage.Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) Get(ctx context.Context, id string) (Shipment, bool, error) {
	key, err := storage.CompositeKey(shipmentObject, id)
	if err != nil {
		return Shipment{}, false, err
	}
	raw, err := r.store.Get(ctx, ContractName, key)
	if err != nil || raw == nil {
		return Shipment{}, false, err
	}
	var s Shipment
	if err := json.Unmarshal(raw, &s); err != nil {
		return Shipment{}, false, fmt.Errorf("decode shipment %s: %w", id, err)
	}
	return s, true, nil
}

// Append stores the shipment together with its next history entry.
func (r *Repository) Append(ctx context.Context, s Shipment, entry HistoryEntry) error {
	hkey, err := storage.CompositeKey(historyObject, s.ID, fmt.Sprintf("%010d", entry.Sequence))
	if err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history of %s: %w", s.ID, err)
	}
	if err := r.store.Put(ctx, ContractName, hkey, raw); err != nil {
		return err
	}

	key, err := storage.CompositeKey(shipmentObject, s.ID)
	if err != nil {
		return err
	}
	raw, err = json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode shipment %s: %w", s.ID, err)
	}
	return r.store.Put(ctx, ContractName, key, raw)
}

func (r *Repository) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	prefix, err := storage.CompositeKey(historyObject, id)
	if err != nil {
		return nil, err
	}
	kvs, err := r.store.Scan(ctx, ContractName, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(kvs))
	for _, kv := range kvs {
		var e HistoryEntry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			return nil, fmt.Errorf("decode history of %s: %w", id, err)
		}
		out = append(out, e)
	}
	return out, nil
}
