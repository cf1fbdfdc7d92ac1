// Package leveldbstore keeps the world state in a goleveldb database. Namespaces
// share one key space as "namespace 0x00 key".
package leveldbstore

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"agrichain/pkg/storage"
)

var namespaceSep = []byte{0x00}

// Store adapts a leveldb handle to storage.Store.
type Store struct {
	db   *leveldb.DB
	sync bool
}

var _ storage.Store = (*Store)(nil)

// Open creates or opens the database directory at path. With syncWrites every Put and
// Delete is fsynced before returning.
func Open(path string, syncWrites bool) (*Store, error) {
	if path == "" {
		return nil, errors.New("leveldb storage requires a path")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open leveldb at %s", path)
	}
	return &Store{db: db, sync: syncWrites}, nil
}

func (s *Store) writeOptions() *opt.WriteOptions {
	return &opt.WriteOptions{Sync: s.sync}
}

// Get returns the value stored under key, or nil when the key is absent.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, err := s.db.Get(levelKey(namespace, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%q", namespace, key)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Put inserts or replaces the value under key.
func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	if err := s.db.Put(levelKey(namespace, key), value, s.writeOptions()); err != nil {
		return errors.Wrapf(err, "put %s/%q", namespace, key)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete(levelKey(namespace, key), s.writeOptions()); err != nil {
		return errors.Wrapf(err, "delete %s/%q", namespace, key)
	}
	return nil
}

// Scan lists every key in namespace starting with prefix, ordered by key.
func (s *Store) Scan(ctx context.Context, namespace, prefix string) ([]storage.KV, error) {
	iter := s.db.NewIterator(util.BytesPrefix(levelKey(namespace, prefix)), nil)
	defer iter.Release()

	var out []storage.KV
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		out = append(out, storage.KV{Key: appKey(iter.Key()), Value: value})
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrapf(err, "scan %s/%q", namespace, prefix)
	}
	return out, nil
}

// Close releases the database lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func levelKey(namespace, key string) []byte {
	out := make([]byte, 0, len(namespace)+len(namespaceSep)+len(key))
	out = append(out, namespace...)
	out = append(out, namespaceSep...)
	return append(out, key...)
}

func appKey(level []byte) string {
	parts := bytes.SplitN(level, namespaceSep, 2)
	if len(parts) < 2 {
		return ""
	}
	return string(parts[1])
}
