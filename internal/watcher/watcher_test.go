package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (r *recorder) onIndex(path string) {
	r.mu.Lock()
	r.indexed = append(r.indexed, path)
	r.mu.Unlock()
}

func (r *recorder) onRemove(path string) {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
}

func (r *recorder) indexedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.indexed...)
}

func (r *recorder) removedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func txtOnly(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

func startWatcher(t *testing.T, root string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(root, txtOnly, rec.onIndex, rec.onRemove, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_IndexesOnCreate(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	writeFile(t, filepath.Join(dir, "f.txt"), "hello")
	if !waitFor(t, func() bool { return len(rec.indexedPaths()) >= 1 }) {
		t.Fatalf("expected index callback, got %v", rec.indexedPaths())
	}
}

func TestWatcher_ExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	writeFile(t, filepath.Join(dir, "skip.xyz"), "x")
	writeFile(t, filepath.Join(dir, "keep.txt"), "y")

	if !waitFor(t, func() bool { return len(rec.indexedPaths()) >= 1 }) {
		t.Fatalf("expected index callback, got %v", rec.indexedPaths())
	}
	for _, p := range rec.indexedPaths() {
		if strings.HasSuffix(p, "skip.xyz") {
			t.Error("ineligible file was indexed")
		}
	}
}

func TestWatcher_DebounceCollapsesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	path := filepath.Join(dir, "burst.txt")
	for i := 0; i < 5; i++ {
		writeFile(t, path, strings.Repeat("x", i+1))
		time.Sleep(5 * time.Millisecond)
	}
	if !waitFor(t, func() bool { return len(rec.indexedPaths()) >= 1 }) {
		t.Fatalf("expected index callback, got %v", rec.indexedPaths())
	}
	// Let any stragglers fire, then check the burst collapsed.
	time.Sleep(200 * time.Millisecond)
	if n := len(rec.indexedPaths()); n > 2 {
		t.Errorf("expected debounce to collapse 5 writes, got %d callbacks", n)
	}
}

func TestWatcher_RemovePropagates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	writeFile(t, path, "content")

	rec := &recorder{}
	startWatcher(t, dir, rec)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return len(rec.removedPaths()) >= 1 }) {
		t.Fatalf("expected remove callback, got %v", rec.removedPaths())
	}
	if !strings.HasSuffix(rec.removedPaths()[0], "gone.txt") {
		t.Errorf("removed: %v", rec.removedPaths())
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(nested, "deep.txt"), "deep content")

	ok := waitFor(t, func() bool {
		for _, p := range rec.indexedPaths() {
			if strings.HasSuffix(p, "deep.txt") {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Errorf("expected deep.txt to be indexed, got %v", rec.indexedPaths())
	}
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "absent")
	w := NewWatcher(root, nil, nil, nil)
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Error("expected error for missing root")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := startWatcher(t, dir, rec)
	w.Stop()
	w.Stop()
}

// Stop must be safe while events are still arriving: the event loop holds a
// snapshot of the fsnotify channels, so tearing down the watcher mid-burst
// must neither race nor panic.
func TestWatcher_StopDuringEventBurst(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := startWatcher(t, dir, rec)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = os.WriteFile(filepath.Join(dir, "burst.txt"), []byte(strings.Repeat("x", i+1)), 0600)
		}
	}()
	time.Sleep(10 * time.Millisecond)
	w.Stop()
	<-done
}
