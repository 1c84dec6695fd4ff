package indexwatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpomverify/bpomverify/internal/vectorindex"
)

func TestWatcher_Run_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	src, err := vectorindex.New(vectorindex.DefaultConfig(4))
	require.NoError(t, err)
	require.NoError(t, src.Persist(path))

	dst, err := vectorindex.New(vectorindex.DefaultConfig(4))
	require.NoError(t, err)

	reloaded := make(chan error, 4)
	w := New(path, dst, func(err error) { reloaded <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Touch the file again to generate a second event once the watcher is up.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, src.Persist(path))

	select {
	case err := <-reloaded:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for index reload")
	}
}
