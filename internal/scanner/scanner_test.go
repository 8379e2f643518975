package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanner_List(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a.jpg"), "a")
	writeFile(t, filepath.Join(root, "b.JPEG"), "b")
	writeFile(t, filepath.Join(root, "notes.txt"), "skip")
	writeFile(t, filepath.Join(root, "sub", "c.png"), "c")
	writeFile(t, filepath.Join(root, "sub", "deeper", "d.tif"), "d")
	writeFile(t, filepath.Join(root, "sub", "._e.jpg"), "resource fork")
	writeFile(t, filepath.Join(root, ".hidden", "f.jpg"), "hidden")
	writeFile(t, filepath.Join(root, "2020.processed", "g.jpg"), "user folder")

	s := New(nil, nil)
	files, err := s.List(context.Background(), root)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{
		filepath.Join("2020.processed", "g.jpg"),
		"a.jpg",
		"b.JPEG",
		filepath.Join("sub", "c.png"),
		filepath.Join("sub", "deeper", "d.tif"),
	}
	if len(files) != len(want) {
		t.Fatalf("List() returned %d files, want %d: %+v", len(files), len(want), files)
	}
	for i, f := range files {
		if f.RelPath != want[i] {
			t.Errorf("files[%d].RelPath = %q, want %q", i, f.RelPath, want[i])
		}
		if !filepath.IsAbs(f.Path) {
			t.Errorf("files[%d].Path = %q, want absolute path", i, f.Path)
		}
	}
}

func TestScanner_ListEmptyDir(t *testing.T) {
	files, err := New(nil, nil).List(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("List() = %d files, want 0", len(files))
	}
}

func TestScanner_MissingRoot(t *testing.T) {
	_, err := New(nil, nil).List(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("List() on missing root should fail")
	}
}

func TestScanner_ScanChannel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.webp"), "1")
	writeFile(t, filepath.Join(root, "two.tiff"), "2")

	files, errs := New(nil, nil).Scan(context.Background(), root)

	var count int
	for range files {
		count++
	}
	if err := <-errs; err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Scan() yielded %d files, want 2", count)
	}
}

func TestScanner_HasExtension(t *testing.T) {
	s := New([]string{"jpg", ".PNG"}, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"a.jpg", true},
		{"a.JPG", true},
		{"a.png", true},
		{"a.gif", false},
		{"noext", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := s.HasExtension(tt.path); got != tt.want {
				t.Errorf("HasExtension(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestChecksum(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

	if got := Checksum([]byte("abc")); got != want {
		t.Errorf("Checksum() = %s, want %s", got, want)
	}

	path := filepath.Join(t.TempDir(), "abc.jpg")
	writeFile(t, path, "abc")
	got, err := ComputeSHA256(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ComputeSHA256() = %s, want %s", got, want)
	}

	if Checksum([]byte("abc")) == Checksum([]byte("abd")) {
		t.Error("different content must produce different checksums")
	}
}
