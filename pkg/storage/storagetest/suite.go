// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrichain/pkg/storage"
)

// Run exercises a fresh store returned by open. The store is closed by Run.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("missing key reads as nil", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		value, err := store.Get(context.Background(), "farm-verification", "nope")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("put then get", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "farm-verification", "farm123", []byte(`{"name":"Green Acres"}`)))
		value, err := store.Get(ctx, "farm-verification", "farm123")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Green Acres"}`, string(value))

		require.NoError(t, store.Put(ctx, "farm-verification", "farm123", []byte(`{"name":"Blue Acres"}`)))
		value, err = store.Get(ctx, "farm-verification", "farm123")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Blue Acres"}`, string(value))
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "crop-certification", "id", []byte("cert")))
		require.NoError(t, store.Put(ctx, "logistics-tracking", "id", []byte("ship")))

		value, err := store.Get(ctx, "crop-certification", "id")
		require.NoError(t, err)
		assert.Equal(t, "cert", string(value))

		kvs, err := store.Scan(ctx, "logistics-tracking", "")
		require.NoError(t, err)
		require.Len(t, kvs, 1)
		assert.Equal(t, "ship", string(kvs[0].Value))
	})

	t.Run("delete", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "quality-verification", "k", []byte("v")))
		require.NoError(t, store.Delete(ctx, "quality-verification", "k"))
		require.NoError(t, store.Delete(ctx, "quality-verification", "k"))

		value, err := store.Get(ctx, "quality-verification", "k")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("scan by composite prefix is ordered and bounded", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		keys := [][]string{
			{"shipment~test", "ship2", "test-b"},
			{"shipment~test", "ship1", "test-b"},
			{"shipment~test", "ship1", "test-a"},
			{"shipment~test", "ship10", "test-z"},
			{"test", "test-a"},
		}
		for _, parts := range keys {
			key, err := storage.CompositeKey(parts[0], parts[1:]...)
			require.NoError(t, err)
			require.NoError(t, store.Put(ctx, "quality-verification", key, []byte{0x01}))
		}

		prefix, err := storage.CompositeKey("shipment~test", "ship1")
		require.NoError(t, err)
		kvs, err := store.Scan(ctx, "quality-verification", prefix)
		require.NoError(t, err)

		var got []string
		for _, kv := range kvs {
			_, attrs := storage.SplitCompositeKey(kv.Key)
			got = append(got, attrs[1])
		}
		assert.Equal(t, []string{"test-a", "test-b"}, got)
	})
}
