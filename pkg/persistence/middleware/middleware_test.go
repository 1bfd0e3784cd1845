package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, cfg middleware.EncryptionConfig, next ports.SnapshotStore) ports.SnapshotStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryption_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, memory.NewStore()))
}

func TestEncryption_HidesContent(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	store := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, inner)

	require.NoError(t, store.Save(ctx, "s", map[string]any{"password": "hunter2", "count": int64(3)}))

	raw, err := inner.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Contains(t, raw, middleware.EnvelopeKey)
	assert.NotContains(t, raw[middleware.EnvelopeKey], "hunter2")

	snap, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", snap["password"])
	assert.Equal(t, int64(3), snap["count"])
}

func TestEncryption_KeyRotation(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	require.NoError(t, encrypted(t, middleware.EncryptionConfig{ActiveKey: oldKey}, inner).
		Save(ctx, "s", map[string]any{"v": "old"}))

	_, err := encrypted(t, middleware.EncryptionConfig{ActiveKey: newKey}, inner).Load(ctx, "s")
	assert.ErrorContains(t, err, "decryption failed")

	rotated := encrypted(t, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}}, inner)
	snap, err := rotated.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "old", snap["v"])
}

func TestEncryption_Errors(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.ErrorContains(t, err, "32 bytes")
	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("x")},
	})
	assert.ErrorContains(t, err, "fallback key 0")

	ctx := context.Background()
	inner := memory.NewStore()
	require.NoError(t, inner.Save(ctx, "plain", map[string]any{"v": 1}))
	store := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, inner)

	_, err = store.Load(ctx, "plain")
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)
	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestPII_MasksWithoutTouchingInput(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"(?i)password", "^ssn$"})
	require.NoError(t, err)
	store := mw(inner)

	snap := map[string]any{
		"user":     map[string]any{"name": "ana", "Password": "x"},
		"ssn":      "123",
		"ssn_hint": "last 3",
		"rows":     []any{map[string]any{"password": "y"}},
	}
	require.NoError(t, store.Save(ctx, "s", snap))

	saved, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, saved["ssn"])
	assert.Equal(t, "last 3", saved["ssn_hint"])
	assert.Equal(t, map[string]any{"name": "ana", "Password": middleware.Mask}, saved["user"])
	assert.Equal(t, []any{map[string]any{"password": middleware.Mask}}, saved["rows"])

	assert.Equal(t, "123", snap["ssn"])
	assert.Equal(t, "x", snap["user"].(map[string]any)["Password"])
	assert.Equal(t, "y", snap["rows"].([]any)[0].(map[string]any)["password"])

	_, err = middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_MasksBeforeEncrypting(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"token"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(inner, pii, enc)
	require.NoError(t, store.Save(ctx, "s", map[string]any{"token": "abc", "n": int64(1)}))

	raw, err := inner.Load(ctx, "s")
	require.NoError(t, err)
	assert.Contains(t, raw, middleware.EnvelopeKey)

	snap, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, snap["token"])
	assert.Equal(t, int64(1), snap["n"])

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s"}, ids)
	require.NoError(t, store.Delete(ctx, "s"))
}
