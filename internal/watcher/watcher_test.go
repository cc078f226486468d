package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/logging"
)

type captureRecorder struct {
	mu   sync.Mutex
	reqs []events.Request
}

func (c *captureRecorder) Record(ctx context.Context, req events.Request) (*events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return events.NewEvent(req, time.Now()), nil
}

func (c *captureRecorder) files() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	for _, r := range c.reqs {
		out[r.Metadata.File] = r.Metadata.Action
	}
	return out
}

func (c *captureRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reqs)
}

func startWatcher(t *testing.T, root string) (*Watcher, *captureRecorder) {
	t.Helper()
	rec := &captureRecorder{}
	w, err := New(root, rec, WithDebounce(30*time.Millisecond), WithLogger(logging.Discard()))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, rec
}

func TestWatcherRecordsSourceChanges(t *testing.T) {
	root := t.TempDir()
	_, rec := startWatcher(t, root)

	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	require.Eventually(t, func() bool { return rec.files()["main.go"] != "" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "create", rec.files()["main.go"])

	rec.mu.Lock()
	assert.Equal(t, events.EventTypeCodeChange, rec.reqs[0].Type)
	rec.mu.Unlock()
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "app.ts")
	require.NoError(t, os.WriteFile(path, []byte("let a = 1\n"), 0o644))
	_, rec := startWatcher(t, root)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("let a = 2\n"), 0o644))
	}

	require.Eventually(t, func() bool { return rec.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "modify", rec.files()["app.ts"])
}

func TestWatcherIgnoresSkippedPaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "lib"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	_, rec := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "lib", "index.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bundle.min.js"), []byte("x"), 0o644))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	_, rec := startWatcher(t, root)

	sub := filepath.Join(root, "pkg", "api")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	// Give the watcher a moment to add the new directories
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "handler.go"), []byte("package api\n"), 0o644))

	require.Eventually(t, func() bool { return rec.files()["pkg/api/handler.go"] != "" }, 2*time.Second, 10*time.Millisecond)
}

func TestStartTwice(t *testing.T) {
	w, _ := startWatcher(t, t.TempDir())
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
}
