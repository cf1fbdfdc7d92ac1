// Package roster keeps sets of authorized principals (testers, certifiers) in the
// world state of the contract that owns them.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agrichain/pkg/ledger"
	"agrichain/pkg/storage"
)

var (
	ErrMember    = errors.New("principal is already a member")
	ErrNotMember = errors.New("principal is not a member")
)

// Member records who granted a principal its role and when.
type Member struct {
	Principal ledger.Principal `json:"principal"`
	AddedBy   ledger.Principal `json:"added-by"`
	AddedAt   uint64           `json:"added-at"`
	AddedOn   time.Time        `json:"added-on"`
}

// Roster is a named set stored under one namespace.
type Roster struct {
	store     storage.Store
	namespace string
	name      string
}

// New binds a roster called name to the contract namespace.
func New(store storage.Store, namespace, name string) *Roster {
	return &Roster{store: store, namespace: namespace, name: name}
}

func (r *Roster) key(p ledger.Principal) (string, error) {
	return storage.CompositeKey(r.name, string(p))
}

// Add grants membership; ErrMember when p already belongs.
func (r *Roster) Add(ctx context.Context, p, by ledger.Principal, height uint64) error {
	key, err := r.key(p)
	if err != nil {
		return err
	}
	existing, err := r.store.Get(ctx, r.namespace, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrMember
	}
	raw, err := json.Marshal(Member{Principal: p, AddedBy: by, AddedAt: height, AddedOn: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode %s member: %w", r.name, err)
	}
	return r.store.Put(ctx, r.namespace, key, raw)
}

// Remove revokes membership; ErrNotMember when p does not belong.
func (r *Roster) Remove(ctx context.Context, p ledger.Principal) error {
	ok, err := r.Contains(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	key, err := r.key(p)
	if err != nil {
		return err
	}
	return r.store.Delete(ctx, r.namespace, key)
}

// Contains reports membership.
func (r *Roster) Contains(ctx context.Context, p ledger.Principal) (bool, error) {
	key, err := r.key(p)
	if err != nil {
		return false, err
	}
	raw, err := r.store.Get(ctx, r.namespace, key)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// List returns every member ordered by principal.
func (r *Roster) List(ctx context.Context) ([]Member, error) {
	prefix, err := storage.CompositeKey(r.name)
	if err != nil {
		return nil, err
	}
	kvs, err := r.store.Scan(ctx, r.namespace, prefix)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(kvs))
	for _, kv := range kvs {
		var m Member
		if err := json.Unmarshal(kv.Value, &m); err != nil {
			return nil, fmt.Errorf("decode %s member %q: %w", r.name, kv.Key, err)
		}
		members = append(members, m)
	}
	return members, nil
}
