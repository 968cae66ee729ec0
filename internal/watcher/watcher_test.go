package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w, err := New(dir, Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})
	return w
}

func awaitRequest(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Requests():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resync request")
	}
}

func TestWatcher_FileCreateRaisesRequest(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.pdf"), []byte("x"), 0o644))

	awaitRequest(t, w)
}

func TestWatcher_BurstCoalescesIntoOneRequest(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	for i := 0; i < 10; i++ {
		path := filepath.Join(dir, "doc"+string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	awaitRequest(t, w)

	// The burst fits in one debounce window; no second request follows.
	select {
	case <-w.Requests():
		t.Fatal("burst produced more than one resync request")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_DeleteRaisesRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	w := startWatcher(t, dir)
	require.NoError(t, os.Remove(path))

	awaitRequest(t, w)
}

func TestWatcher_SeesFilesInNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	awaitRequest(t, w)

	// The new directory is registered, so files inside it are observed.
	require.NoError(t, os.WriteFile(filepath.Join(sub, "doc.pdf"), []byte("x"), 0o644))
	awaitRequest(t, w)
}

func TestWatcher_MissingDirectoryFails(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), Options{})
	assert.Error(t, err)
}

func TestQualifies_IgnoresChmod(t *testing.T) {
	assert.False(t, qualifies(fsnotify.Event{Name: "x", Op: fsnotify.Chmod}))
	assert.True(t, qualifies(fsnotify.Event{Name: "x", Op: fsnotify.Write}))
	assert.True(t, qualifies(fsnotify.Event{Name: "x", Op: fsnotify.Rename}))
}
