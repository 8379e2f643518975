package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artemshloyda/photoingest/internal/scanner"
)

func startWatcher(t *testing.T, root string) <-chan Batch {
	t.Helper()
	w, err := New(root, scanner.New(nil, nil), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w.SetSettle(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	batches, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	return batches
}

func nextBatch(t *testing.T, batches <-chan Batch) Batch {
	t.Helper()
	select {
	case b, ok := <-batches:
		if !ok {
			t.Fatal("batches channel closed")
		}
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("no batch within 5s")
	}
	return Batch{}
}

func TestWatcher_EmitsSettledBatch(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	for _, name := range []string{"a.jpg", "b.PNG", "notes.txt", ".hidden.jpg"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	b := nextBatch(t, batches)
	want := []string{filepath.Join(root, "a.jpg"), filepath.Join(root, "b.PNG")}
	if len(b.Paths) != len(want) {
		t.Fatalf("Paths = %v, want %v", b.Paths, want)
	}
	for i := range want {
		if b.Paths[i] != want[i] {
			t.Errorf("Paths[%d] = %s, want %s", i, b.Paths[i], want[i])
		}
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	sub := filepath.Join(root, "2024", "trip")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(sub, "x.webp")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := nextBatch(t, batches)
	found := false
	for _, p := range b.Paths {
		if p == path {
			found = true
		}
	}
	if !found {
		t.Errorf("Paths = %v, want to contain %s", b.Paths, path)
	}
}

func TestWatcher_MovedInDirectory(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	staging := filepath.Join(t.TempDir(), "2020.processed")
	for _, name := range []string{"a.jpg", filepath.Join("nested", "b.tif"), "._a.jpg", "notes.txt"} {
		path := filepath.Join(staging, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	moved := filepath.Join(root, "2020.processed")
	if err := os.Rename(staging, moved); err != nil {
		t.Fatal(err)
	}

	b := nextBatch(t, batches)
	want := []string{filepath.Join(moved, "a.jpg"), filepath.Join(moved, "nested", "b.tif")}
	if len(b.Paths) != len(want) {
		t.Fatalf("Paths = %v, want %v", b.Paths, want)
	}
	for i := range want {
		if b.Paths[i] != want[i] {
			t.Errorf("Paths[%d] = %s, want %s", i, b.Paths[i], want[i])
		}
	}
}

func TestWatcher_ClosesOnCancel(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, scanner.New(nil, nil), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	batches, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-batches:
		if ok {
			t.Error("unexpected batch after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWatcher_MissingRoot(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), scanner.New(nil, nil), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := w.Watch(context.Background()); err == nil {
		t.Error("Watch() on missing root should fail")
	}
}

func TestTakeSettled(t *testing.T) {
	w := &Watcher{settle: time.Second, pending: make(map[string]struct{})}
	now := time.Now()

	if _, ok := w.takeSettled(now); ok {
		t.Error("empty pending should not produce a batch")
	}

	w.pending["/r/b.jpg"] = struct{}{}
	w.pending["/r/a.jpg"] = struct{}{}
	w.lastEvent = now

	if _, ok := w.takeSettled(now.Add(500 * time.Millisecond)); ok {
		t.Error("batch emitted before settle")
	}
	b, ok := w.takeSettled(now.Add(2 * time.Second))
	if !ok {
		t.Fatal("batch not emitted after settle")
	}
	if len(b.Paths) != 2 || b.Paths[0] != "/r/a.jpg" {
		t.Errorf("Paths = %v", b.Paths)
	}
	if len(w.pending) != 0 {
		t.Errorf("pending not cleared: %v", w.pending)
	}
}

func TestSkipDir(t *testing.T) {
	tests := map[string]bool{
		".git":             true,
		"inbox.processed":  false,
		"2020.processed":   false,
		"2024":             false,
		"processed-photos": false,
	}
	for name, want := range tests {
		if got := skipDir(name); got != want {
			t.Errorf("skipDir(%q) = %v, want %v", name, got, want)
		}
	}
}
