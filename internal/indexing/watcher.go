package indexing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/omnidex/oci/internal/debug"
	"github.com/omnidex/oci/internal/state"
	"github.com/omnidex/oci/pkg/pathutil"
)

// Watcher feeds filesystem events into targeted single-file updates.
// Events are debounced: rapid save sequences collapse into one
// reparse per file.
type Watcher struct {
	ix       *Indexer
	st       *state.State
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]fsnotify.Op
	timer   *time.Timer
}

// NewWatcher creates a watcher bound to an indexer and state.
func NewWatcher(ix *Indexer, st *state.State) *Watcher {
	debounce := time.Duration(ix.cfg.Index.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{
		ix:       ix,
		st:       st,
		debounce: debounce,
		pending:  make(map[string]fsnotify.Op),
	}
}

// Run watches the repository root until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	root := w.st.Root()
	if err := addRecursive(fsw, root); err != nil {
		return err
	}

	flush := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event, flush)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			debug.Warnf("watch error: %v", err)

		case <-flush:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event, flush chan struct{}) {
	name := event.Name
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return
	}

	// New directories need watches of their own.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			_ = addRecursive(fsw, name)
			return
		}
	}

	rel := pathutil.ToRelative(name, w.st.Root())
	if w.ix.registry.ForFile(rel) == nil {
		return
	}

	w.mu.Lock()
	w.pending[rel] |= event.Op
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, func() {
			select {
			case flush <- struct{}{}:
			default:
			}
		})
	} else {
		w.timer.Reset(w.debounce)
	}
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.timer = nil
	w.mu.Unlock()

	for rel, op := range batch {
		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			if err := w.ix.RemoveFile(w.st, rel); err != nil {
				debug.Warnf("remove %s: %v", rel, err)
			}
			continue
		}
		if err := w.ix.UpdateFile(ctx, w.st, rel); err != nil {
			debug.Warnf("update %s: %v", rel, err)
		}
	}
}

func addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		switch name {
		case "target", "node_modules", "vendor", "dist", "build":
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
