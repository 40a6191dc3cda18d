package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codescope/internal/logging"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventChange, "change"},
		{EventRemove, "remove"},
		{EventRescan, "rescan"},
		{EventType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.eventType.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(40 * time.Millisecond)

	var mu sync.Mutex
	fired := 0
	for i := 0; i < 5; i++ {
		d.Trigger(func() {
			mu.Lock()
			fired++
			mu.Unlock()
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(120 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("fired %d times, want 1", fired)
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	fired := make(chan struct{}, 1)
	d.Trigger(func() { fired <- struct{}{} })
	d.Cancel()

	select {
	case <-fired:
		t.Error("cancelled function still fired")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestDebouncerFlush(t *testing.T) {
	d := NewDebouncer(time.Hour)
	fired := make(chan struct{}, 1)
	d.Trigger(func() { fired <- struct{}{} })
	d.Flush()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Error("Flush did not run the pending function")
	}
}

type batchCollector struct {
	mu      sync.Mutex
	batches [][]Event
}

func (c *batchCollector) handle(events []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]Event, len(events))
	copy(copied, events)
	c.batches = append(c.batches, copied)
}

func (c *batchCollector) find(eventType EventType, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, batch := range c.batches {
		for _, e := range batch {
			if e.Type == eventType && e.Path == path {
				return true
			}
		}
	}
	return false
}

func waitFor(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()
	stop := time.Now().Add(deadline)
	for time.Now().Before(stop) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherObservesWriteAndRemove(t *testing.T) {
	root := t.TempDir()
	collector := &batchCollector{}

	w, err := Start(root, 50*time.Millisecond, logging.Discard(), collector.handle)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	target := filepath.Join(root, "a.go")
	if err := os.WriteFile(target, []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return collector.find(EventChange, "a.go") })

	if err := os.Remove(target); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return collector.find(EventRemove, "a.go") })
}

func TestWatcherObservesNewDirectory(t *testing.T) {
	root := t.TempDir()
	collector := &batchCollector{}

	w, err := Start(root, 50*time.Millisecond, logging.Discard(), collector.handle)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	sub := filepath.Join(root, "pkg")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.go"), []byte("package pkg\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool { return collector.find(EventChange, "pkg/b.go") })
}

func TestWatcherIgnoresJunkPaths(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	collector := &batchCollector{}

	w, err := Start(root, 50*time.Millisecond, logging.Discard(), collector.handle)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(root, "node_modules", "x.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "keep.go"), []byte("package k\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool { return collector.find(EventChange, "keep.go") })
	if collector.find(EventChange, "node_modules/x.js") {
		t.Error("event emitted for path under node_modules")
	}
}

func TestWatcherRenameSurfacesAsRemovePlusChange(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "old.go")
	if err := os.WriteFile(old, []byte("package p\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	collector := &batchCollector{}

	w, err := Start(root, 50*time.Millisecond, logging.Discard(), collector.handle)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	if err := os.Rename(old, filepath.Join(root, "new.go")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return collector.find(EventRemove, "old.go") && collector.find(EventChange, "new.go")
	})
}
