package markup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/markup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReportsWritesToTheFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: a\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := markup.Watch(ctx, path, markup.WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("name: b\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("name: c\n"), 0o644))

	select {
	case got := <-changes:
		assert.Equal(t, path, got)
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "channel closes after cancel")
}

func TestWatch_MissingDirectory(t *testing.T) {
	_, err := markup.Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "app.yaml"))
	assert.Error(t, err)
}
