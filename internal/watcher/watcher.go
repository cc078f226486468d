// Package watcher turns source file changes under a directory tree into
// code_change events.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/health"
)

// DefaultDebounce is how long a path must stay quiet before its change is reported
const DefaultDebounce = 500 * time.Millisecond

// ErrAlreadyStarted is returned by a second Start
var ErrAlreadyStarted = errors.New("watcher already started")

// Recorder receives one request per settled change
type Recorder interface {
	Record(ctx context.Context, req events.Request) (*events.Event, error)
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period per path
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithSkipDirs adds directory names to skip
func WithSkipDirs(dirs ...string) Option {
	return func(w *Watcher) { w.skipDirs = append(w.skipDirs, dirs...) }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher watches a source tree with fsnotify. New directories are added as
// they appear; hidden and dependency directories are skipped.
type Watcher struct {
	root       string
	recorder   Recorder
	debounce   time.Duration
	skipDirs   []string
	extensions []string
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	ops     map[string]string
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a watcher for root
func New(root string, recorder Recorder, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:       abs,
		recorder:   recorder,
		debounce:   DefaultDebounce,
		skipDirs:   slices.Clone(health.DefaultSkipDirs),
		extensions: slices.Clone(health.DefaultExtensions),
		pending:    make(map[string]*time.Timer),
		ops:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Start adds every directory under root and begins delivering changes
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.addTree(fsw, w.root); err != nil {
		_ = fsw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true
	go w.loop(ctx, fsw)

	w.logger.Info("watching source tree", "root", w.root, "directories", len(fsw.WatchList()))
	return nil
}

// Stop ends watching. Changes still in their quiet period are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.cancel()
	_ = w.fsw.Close()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	done := w.done
	w.mu.Unlock()
	<-done
}

// Root returns the watched directory
func (w *Watcher) Root() string {
	return w.root
}

func (w *Watcher) skipDir(path string) bool {
	if path == w.root {
		return false
	}
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || slices.Contains(w.skipDirs, name)
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// An unreadable directory is left unwatched
			w.logger.Debug("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipDir(path) {
			return fs.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) wanted(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if health.ShouldExcludePath(rel, health.DefaultExcludePatterns) {
		return false
	}
	for _, part := range strings.Split(filepath.Dir(rel), "/") {
		if (strings.HasPrefix(part, ".") && part != ".") || slices.Contains(w.skipDirs, part) {
			return false
		}
	}
	return slices.Contains(w.extensions, filepath.Ext(path))
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.skipDir(ev.Name) {
				if err := w.addTree(fsw, ev.Name); err != nil {
					w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
				}
			}
			return
		}
	}
	if !w.wanted(ev.Name) {
		return
	}

	var op string
	switch {
	case ev.Has(fsnotify.Create):
		op = "create"
	case ev.Has(fsnotify.Write):
		op = "modify"
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = "delete"
	default:
		return
	}
	w.schedule(ctx, ev.Name, op)
}

// schedule records path once it has been quiet for the debounce period. A
// create followed by writes is still reported as a create.
func (w *Watcher) schedule(ctx context.Context, path, op string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}

	if prev, ok := w.ops[path]; !ok || !(prev == "create" && op == "modify") {
		w.ops[path] = op
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() { w.fire(ctx, path) })
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	op := w.ops[path]
	delete(w.ops, path)
	delete(w.pending, path)
	started := w.started
	w.mu.Unlock()
	if !started || ctx.Err() != nil {
		return
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	if _, err := w.recorder.Record(ctx, events.NewCodeChangeRequest(filepath.ToSlash(rel), op)); err != nil {
		w.logger.Warn("failed to record code change", "file", rel, "error", err)
	}
}
