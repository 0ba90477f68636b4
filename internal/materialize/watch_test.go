package materialize

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/nflpipe/internal/catalog"
)

// startWatch runs Watch in the background and returns the rebuild results
// channel. The watch stops when the test ends.
func startWatch(t *testing.T, m *Materializer) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan error, 16)
	done := make(chan error, 1)

	go func() {
		done <- m.Watch(ctx, WatchOptions{
			Debounce:  200 * time.Millisecond,
			OnRebuild: func(err error) { results <- err },
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watch did not stop")
		}
	})

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	return results
}

func TestWatch_RebuildsOnNewParquet(t *testing.T) {
	watched := t.TempDir()
	staging := t.TempDir()
	writeParquet(t, staging, 4, catalog.Names()...)

	m := newMaterializer(t, watched)
	results := startWatch(t, m)

	// Renames land in one burst and are coalesced by the debounce.
	for _, name := range catalog.Names() {
		require.NoError(t, os.Rename(
			filepath.Join(staging, name+".parquet"),
			filepath.Join(watched, name+".parquet")))
	}

	deadline := time.After(15 * time.Second)
	for {
		select {
		case err := <-results:
			if err != nil {
				continue
			}
			assert.FileExists(t, m.Path())
			db := openReadOnly(t, m.Path())
			n, err := db.QueryInt64(context.Background(), "SELECT COUNT(*) FROM games")
			require.NoError(t, err)
			assert.Equal(t, int64(4), n)
			return
		case <-deadline:
			t.Fatal("no successful rebuild")
		}
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	watched := t.TempDir()
	m := newMaterializer(t, watched)
	results := startWatch(t, m)

	require.NoError(t, os.WriteFile(filepath.Join(watched, "data_qa_report.txt"), []byte("report"), 0o600))

	select {
	case err := <-results:
		t.Fatalf("unexpected rebuild: %v", err)
	case <-time.After(600 * time.Millisecond):
	}
	assert.Equal(t, int64(0), m.Builds())
}

func TestWatch_MissingDirectory(t *testing.T) {
	m := newMaterializer(t, filepath.Join(t.TempDir(), "missing"))
	err := m.Watch(context.Background(), WatchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}
