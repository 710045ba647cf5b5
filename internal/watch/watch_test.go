package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, w *FileWatcher) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	return func() {
		stop()
		<-done
	}
}

func TestFileWatcherFiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risset.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	changes := make(chan string, 8)
	w, err := NewFileWatcher(path, 50*time.Millisecond, func(p string) { changes <- p })
	require.NoError(t, err)
	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"name": "klib"}`), 0o644))

	select {
	case p := <-changes:
		assert.Equal(t, w.Path(), p)
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestFileWatcherCoalescesRapidWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risset.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	var count atomic.Int32
	fired := make(chan struct{}, 8)
	w, err := NewFileWatcher(path, 200*time.Millisecond, func(string) {
		count.Add(1)
		fired <- struct{}{}
	})
	require.NoError(t, err)
	stop := startWatcher(t, w)
	defer stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`{"n": %d}`, i)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}
	// Give a stray second callback the chance to fire before counting.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestFileWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risset.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	changes := make(chan string, 8)
	w, err := NewFileWatcher(path, 20*time.Millisecond, func(p string) { changes <- p })
	require.NoError(t, err)
	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644))

	select {
	case p := <-changes:
		t.Fatalf("unexpected change reported for %s", p)
	case <-time.After(400 * time.Millisecond):
	}
}
