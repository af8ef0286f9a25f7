// Package watch provides drop-directory ingestion: JSON batch files
// written into a watched directory are picked up, debounced until the
// writer is done, and handed to a callback for ingestion.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period a file must hold before it is
// considered fully written.
const DefaultDebounce = 2 * time.Second

// Watcher monitors a directory for dropped JSON batch files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	files map[string]*fileState

	// OnFile is called once per settled file with its absolute path.
	// A nil return deletes the file; an error leaves it in place for
	// the next pass.
	OnFile func(path string) error

	// OnError receives watch-loop errors.
	OnError func(err error)
}

type fileState struct {
	size       int64
	processing bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the settle period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the watch-loop logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a watcher over dir. The directory must exist.
func NewWatcher(dir string, opts ...Option) (*Watcher, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	stat, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absDir)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(absDir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	w := &Watcher{
		watcher:  fsWatcher,
		dir:      absDir,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		files:    make(map[string]*fileState),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes any files already present, then blocks handling events
// until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.sweepExisting()

	debounceTimers := make(map[string]*time.Timer)
	var timerMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := event.Name
			if !isBatchFile(path) {
				continue
			}

			// Debounce until the writer goes quiet
			timerMu.Lock()
			if timer, exists := debounceTimers[path]; exists {
				timer.Stop()
			}
			debounceTimers[path] = time.AfterFunc(w.debounce, func() {
				w.handleFile(path)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}

// sweepExisting queues files that were dropped before the watcher
// started.
func (w *Watcher) sweepExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if isBatchFile(path) {
			w.handleFile(path)
		}
	}
}

func (w *Watcher) handleFile(path string) {
	w.mu.Lock()
	state, ok := w.files[path]
	if !ok {
		state = &fileState{}
		w.files[path] = state
	}
	if state.processing {
		w.mu.Unlock()
		return
	}
	state.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		state.processing = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(path)
	if err != nil {
		// Already gone, nothing to do
		return
	}

	// A file still growing gets another debounce round via its next
	// write event; an empty file is a writer that has not started yet.
	w.mu.Lock()
	state.size = stat.Size()
	w.mu.Unlock()
	if stat.Size() == 0 {
		return
	}

	if w.OnFile == nil {
		return
	}
	if err := w.OnFile(path); err != nil {
		w.logger.Warn("batch file left in place after error", "path", path, "error", err)
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("failed to remove processed batch file", "path", path, "error", err)
	}
	w.mu.Lock()
	delete(w.files, path)
	w.mu.Unlock()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func isBatchFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".json")
}
