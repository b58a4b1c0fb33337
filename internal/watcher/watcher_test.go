package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestWatcher_ReportsChangesToWatchedFilesOnly(t *testing.T) {
	dir := t.TempDir()
	vectors := filepath.Join(dir, "emb.npy")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(vectors, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	changed := map[string]int{}
	w, err := NewWatcher([]string{vectors}, func(path string, op fsnotify.Op) {
		mu.Lock()
		changed[path]++
		mu.Unlock()
	}, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(vectors, []byte("v2"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := changed[filepath.Clean(vectors)]
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if changed[filepath.Clean(vectors)] != 1 {
		t.Errorf("expected one debounced change for vectors, got %d", changed[filepath.Clean(vectors)])
	}
	if changed[filepath.Clean(other)] != 0 {
		t.Error("unwatched file should not be reported")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher([]string{filepath.Join(dir, "a.json")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcher_StartFailsForMissingDirectory(t *testing.T) {
	w, err := NewWatcher([]string{filepath.Join(t.TempDir(), "missing", "a.json")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Error("expected error watching a missing directory")
	}
}
