package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract verifies that a SnapshotStore implementation
// honours the interface contract. Adapters call it from their own tests.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-" + time.Now().Format("20060102150405.000")

	t.Run("Save and Load", func(t *testing.T) {
		snap := map[string]any{"name": "weft", "count": int64(42), "items": []any{"a", "b"}}
		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "weft", loaded["name"])
		// JSON backed stores return numbers as float64 or json.Number; only presence is part of the contract.
		assert.NotNil(t, loaded["count"])
		assert.Len(t, loaded["items"], 2)
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, map[string]any{"k": "v"}))
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded["k"] = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "v", again["k"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, map[string]any{"x": "y"}))
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := sessionID+"-1", sessionID+"-2"
		require.NoError(t, store.Save(ctx, id1, map[string]any{}))
		require.NoError(t, store.Save(ctx, id2, map[string]any{}))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
