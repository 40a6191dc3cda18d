// Package watcher observes filesystem mutations under a project root and
// feeds debounced, coalesced change batches to the index.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codescope/internal/config"
	"codescope/internal/logging"
	"codescope/internal/paths"
)

// EventType classifies one coalesced change.
type EventType int

const (
	// EventChange covers created and modified paths: the file exists and
	// must be (re-)indexed. A rename surfaces as EventRemove on the old
	// path plus EventChange on the new one.
	EventChange EventType = iota
	// EventRemove means the path no longer exists.
	EventRemove
	// EventRescan is the back-pressure ticket: the pending buffer
	// overflowed during a burst, so the whole root must be re-scanned
	// instead of trusting the (incomplete) per-path set.
	EventRescan
)

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventChange:
		return "change"
	case EventRemove:
		return "remove"
	case EventRescan:
		return "rescan"
	default:
		return "unknown"
	}
}

// Event is one coalesced mutation, keyed by project-relative path.
type Event struct {
	Type EventType
	Path string
}

// Handler consumes a batch of coalesced events. Batches are delivered
// sequentially: the next flush waits for the previous handler to return,
// so two batches never race on the same path.
type Handler func(events []Event)

// maxPending bounds the coalescing buffer. Beyond it the batch degrades to
// a single rescan ticket rather than dropping events silently.
const maxPending = 512

// Watcher owns one fsnotify instance rooted at a project directory.
type Watcher struct {
	root      string
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	handler   Handler
	logger    *logging.Logger

	mu       sync.Mutex
	pending  map[string]struct{}
	overflow bool

	flushMu sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

// Start begins watching root recursively. The debounce window coalesces
// raw events per path; handler receives the resulting batches.
func Start(root string, debounce time.Duration, logger *logging.Logger, handler Handler) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:      root,
		fs:        fs,
		debouncer: NewDebouncer(debounce),
		handler:   handler,
		logger:    logger,
		pending:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}

	if err := w.watchTree(root); err != nil {
		fs.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()

	logger.Debug("filesystem watcher started", map[string]interface{}{"root": root})
	return w, nil
}

// Close stops the watcher and drops any pending batch.
func (w *Watcher) Close() error {
	close(w.done)
	w.debouncer.Cancel()
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

// watchTree registers every non-ignored directory under dir.
func (w *Watcher) watchTree(dir string) error {
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		name := entry.Name()
		if config.ShouldIgnoreDir(name) || name[0] == '.' {
			continue
		}
		if err := w.watchTree(filepath.Join(dir, name)); err != nil {
			w.logger.Debug("cannot watch directory", map[string]interface{}{
				"dir": name, "error": err.Error(),
			})
		}
	}
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.observe(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

func (w *Watcher) observe(event fsnotify.Event) {
	rel, ok := paths.Rel(w.root, event.Name)
	if !ok || rel == "." {
		return
	}
	if config.ShouldSkipPath(rel) {
		return
	}

	// New directories need their own watch, and any files already inside
	// them would otherwise be missed.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := w.watchTree(event.Name); err == nil {
				w.enqueueDirContents(event.Name)
			}
			return
		}
	}

	w.enqueue(rel)
}

func (w *Watcher) enqueueDirContents(dir string) {
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, ok := paths.Rel(w.root, path); ok && !config.ShouldSkipPath(rel) {
			w.enqueue(rel)
		}
		return nil
	})
}

func (w *Watcher) enqueue(rel string) {
	w.mu.Lock()
	if len(w.pending) >= maxPending {
		w.overflow = true
	} else {
		w.pending[rel] = struct{}{}
	}
	w.mu.Unlock()

	w.debouncer.Trigger(w.flush)
}

// flush converts the coalesced path set into events and hands them to the
// handler. Each path yields at most one event, decided by its state on
// disk at flush time: a regular file is a change, a missing path a
// removal, and anything else (a directory, a symlink) is skipped.
func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	overflow := w.overflow
	w.pending = make(map[string]struct{})
	w.overflow = false
	w.mu.Unlock()

	if len(pending) == 0 && !overflow {
		return
	}

	var events []Event
	if overflow {
		w.logger.Warn("watcher buffer overflow, scheduling full rescan", map[string]interface{}{
			"root": w.root,
		})
		events = []Event{{Type: EventRescan}}
	} else {
		events = make([]Event, 0, len(pending))
		for rel := range pending {
			info, err := os.Lstat(paths.Join(w.root, rel))
			switch {
			case err == nil && info.Mode().IsRegular():
				events = append(events, Event{Type: EventChange, Path: rel})
			case err != nil:
				events = append(events, Event{Type: EventRemove, Path: rel})
			}
		}
	}
	if len(events) == 0 {
		return
	}

	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	select {
	case <-w.done:
		return
	default:
	}
	w.handler(events)
}
