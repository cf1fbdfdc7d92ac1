package sqlstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"agrichain/pkg/storage"
	"agrichain/pkg/storage/storagetest"
)

func TestStore_Memory(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := Open(context.Background(), storage.TypeMemory, "", nil)
		require.NoError(t, err)
		return store
	})
}

func TestStore_SQLite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := Open(context.Background(), storage.TypeSQLite, filepath.Join(t.TempDir(), "state.db"), nil)
		require.NoError(t, err)
		return store
	})
}

func TestStore_SQLite3(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := Open(context.Background(), storage.TypeSQLite3, filepath.Join(t.TempDir(), "state.db"), nil)
		if err != nil && strings.Contains(err.Error(), "cgo") {
			t.Skip("go-sqlite3 needs cgo")
		}
		require.NoError(t, err)
		return store
	})
}

func TestOpen_RejectsUnknownType(t *testing.T) {
	_, err := Open(context.Background(), "duckdb", "x", nil)
	require.Error(t, err)
}
