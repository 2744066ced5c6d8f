package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls atomic.Int32
}

func (c *countingRefresher) RefreshWorkingVsStaging() error {
	c.calls.Add(1)
	return nil
}

func startWatcher(t *testing.T, root string, tracked ...string) (*countingRefresher, chan error) {
	t.Helper()

	target := &countingRefresher{}
	refreshed := make(chan error, 16)
	w, err := New(root, ".dvcs_hidden", target, Options{
		Debounce:  20 * time.Millisecond,
		OnRefresh: func(err error) { refreshed <- err },
		Tracked:   trackedSet(tracked),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return target, refreshed
}

func trackedSet(paths []string) func(string) bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(path string) bool { return set[path] }
}

func waitRefresh(t *testing.T, refreshed chan error) {
	t.Helper()
	select {
	case err := <-refreshed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no refresh after filesystem change")
	}
}

func TestWatcherRefreshesOnWrite(t *testing.T) {
	root := t.TempDir()
	target, refreshed := startWatcher(t, root)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte{byte(i)}, 0644))
	}
	waitRefresh(t, refreshed)
	assert.GreaterOrEqual(t, target.calls.Load(), int32(1))
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	_, refreshed := startWatcher(t, root)

	dir := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(dir, 0755))
	waitRefresh(t, refreshed)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644))
	waitRefresh(t, refreshed)
}

func TestWatcherIgnoresMetadata(t *testing.T) {
	root := t.TempDir()
	meta := filepath.Join(root, ".dvcs_hidden")
	require.NoError(t, os.Mkdir(meta, 0755))
	target, _ := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(meta, "index.json"), []byte("{}"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), target.calls.Load())
}

func TestWatcherRefreshesOnChmodOfTrackedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))
	_, refreshed := startWatcher(t, root, path)

	require.NoError(t, os.Chmod(path, 0444))
	waitRefresh(t, refreshed)
}

func TestRelevant(t *testing.T) {
	w := &Watcher{root: "/repo", metaName: ".dvcs_hidden", tracked: trackedSet([]string{"/repo/staged.txt"})}

	assert.True(t, w.relevant(fsnotify.Event{Name: "/repo/a.txt", Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/repo/dir/b", Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/repo/a.txt", Op: fsnotify.Chmod}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/repo/staged.txt", Op: fsnotify.Chmod}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/repo/.dvcs_hidden/index.json", Op: fsnotify.Write}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/repo/.dvcs_hidden", Op: fsnotify.Create}))
}

func TestNewMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), ".dvcs_hidden", &countingRefresher{}, Options{})
	assert.Error(t, err)
}
