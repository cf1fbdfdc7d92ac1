package certification

import (
	"context"
	"encoding/json"
	"fmt"

	"agrichain/pkg/roster"
	"agrichain/pkg/storage"
)

const (
	certObject    = "certification"
	farmIndex     = "farm~cert"
	certifierRole = "certifier"
)

// Repository stores certifications, their per-farm index and the certifier roster.
type Repository struct {
	store      storage.Store
	certifiers *roster.Roster
}

func NewRepository(store storage.Store) *Repository {
	return &Repository{
		store:      store,
		certifiers: roster.New(store, ContractName, certifierRole),
	}
}

// Certifiers exposes the roster of principals allowed to issue certifications.
func (r *Repository) Certifiers() *roster.Roster { return r.certifiers }

func (r *Repository) Get(ctx context.Context, id string) (Certification, bool, error) {
	key, err := storage.CompositeKey(certObject, id)
	if err != nil {
		return Certification{}, false, err
	}
	raw, err := r.store.Get(ctx, ContractName, key)
	if err != nil || raw == nil {
		return Certification{}, false, err
	}
	var c Certification
	if err := json.Unmarshal(raw, &c); err != nil {
		return Certification{}, false, fmt.Errorf("decode certification %s: %w", id, err)
	}
	return c, true, nil
}

// Save writes the record and, for new certifications, the farm index entry.
func (r *Repository) Save(ctx context.Context, c Certification, index bool) error {
	key, err := storage.CompositeKey(certObject, c.ID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode certification %s: %w", c.ID, err)
	}
	if err := r.store.Put(ctx, ContractName, key, raw); err != nil {
		return err
	}
	if !index {
		return nil
	}
	idx, err := storage.CompositeKey(farmIndex, c.FarmID, c.ID)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, ContractName, idx, []byte{0x00})
}

// ListByFarm returns the farm's certifications ordered by id.
func (r *Repository) ListByFarm(ctx context.Context, farmID string) ([]Certification, error) {
	prefix, err := storage.CompositeKey(farmIndex, farmID)
	if err != nil {
		return nil, err
	}
	kvs, err := r.store.Scan(ctx, ContractName, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Certification, 0, len(kvs))
	for _, kv := range kvs {
		_, attrs := storage.SplitCompositeKey(kv.Key)
		if len(attrs) != 2 {
			continue
		}
		c, ok, err := r.Get(ctx, attrs[1])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}
