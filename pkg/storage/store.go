// Package storage defines the world state every contract reads and writes.
//
// State is organised in namespaces, one per contract, each holding opaque values
// under string keys. Backends live in sub-packages: sqlstore (database/sql, which
// also drives the in-memory memorydriver) and leveldbstore.
package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// KV is a single entry returned by Scan.
type KV struct {
	Key   string
	Value []byte
}

// Store is the world state. Get returns nil, nil for missing keys and Scan returns
// entries sorted by key.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	Scan(ctx context.Context, namespace, prefix string) ([]KV, error)
	Close() error
}

// Supported backend identifiers.
const (
	TypeMemory  = "memory"
	TypeSQLite  = "sqlite"
	TypeSQLite3 = "sqlite3"
	TypeLevelDB = "leveldb"
)

// Types lists every backend accepted by configuration.
func Types() []string {
	return []string{TypeMemory, TypeSQLite, TypeSQLite3, TypeLevelDB}
}

// compositeSep separates composite key parts. It sorts below every printable
// character and survives TEXT columns.
const compositeSep = "\x1f"

// ErrInvalidKeyPart is returned when a composite key attribute contains the separator.
var ErrInvalidKeyPart = errors.New("composite key part contains the separator")

// CompositeKey joins objectType and attrs into a single key whose prefixes can be scanned.
// Every part is terminated by the separator, so CompositeKey("a") is a prefix of
// CompositeKey("a", "b") but CompositeKey("a", "b") is not a prefix of CompositeKey("a", "bc").
func CompositeKey(objectType string, attrs ...string) (string, error) {
	var b strings.Builder
	for _, part := range append([]string{objectType}, attrs...) {
		if strings.Contains(part, compositeSep) {
			return "", errors.Wrapf(ErrInvalidKeyPart, "part %q", part)
		}
		b.WriteString(part)
		b.WriteString(compositeSep)
	}
	return b.String(), nil
}

// SplitCompositeKey reverses CompositeKey.
func SplitCompositeKey(key string) (string, []string) {
	parts := strings.Split(strings.TrimSuffix(key, compositeSep), compositeSep)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

// PrefixEnd returns the smallest key greater than every key starting with prefix,
// or "" when no such bound exists.
func PrefixEnd(prefix string) string {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return string(end[:i+1])
		}
	}
	return ""
}
