package vipsfinder

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"vips-8.14.2\n", "8.14.2"},
		{"vips 8.12.0", "8.12.0"},
		{"vips-8.15.1-Tue Jan  9 10:00:00 UTC 2024", "8.15.1"},
		{"8.10", "8.10"},
	}

	for _, tt := range tests {
		if got := parseVersion(tt.in); got != tt.want {
			t.Errorf("parseVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVipsInfo_AtLeast(t *testing.T) {
	tests := []struct {
		version string
		min     string
		want    bool
	}{
		{"8.14.2", "8.12", true},
		{"8.12", "8.12", true},
		{"8.12.0", "8.12.1", false},
		{"8.9.2", "8.12", false},
		{"9.0", "8.12", true},
		{"garbage", "8.12", false},
	}

	for _, tt := range tests {
		info := &VipsInfo{Version: tt.version}
		if got := info.AtLeast(tt.min); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.version, tt.min, got, tt.want)
		}
	}
}

func fakeVips(t *testing.T, version string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a unix shell")
	}
	path := filepath.Join(t.TempDir(), "vips")
	script := "#!/bin/sh\necho vips-" + version + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFinder_CustomPath(t *testing.T) {
	path := fakeVips(t, "8.15.1")

	f := NewFinder(path)
	f.EnvVar = "PHOTOINGEST_TEST_VIPS_UNSET"
	f.lookPath = func(string) (string, error) { return "", errors.New("not in PATH") }

	info, err := f.Find()
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if info.Version != "8.15.1" {
		t.Errorf("Version = %q, want 8.15.1", info.Version)
	}
	if !filepath.IsAbs(info.Path) {
		t.Errorf("Path = %q, want absolute", info.Path)
	}
}

func TestFinder_RejectsOldVersion(t *testing.T) {
	path := fakeVips(t, "8.9.0")

	f := NewFinder(path)
	f.EnvVar = "PHOTOINGEST_TEST_VIPS_UNSET"
	f.lookPath = func(string) (string, error) { return "", errors.New("not in PATH") }

	if _, err := f.Find(); err == nil {
		t.Error("Find() should reject vips older than MinVersion")
	}
}

func TestFinder_EnvVar(t *testing.T) {
	path := fakeVips(t, "8.14.0")
	t.Setenv("PHOTOINGEST_TEST_VIPS", path)

	f := NewFinder("")
	f.EnvVar = "PHOTOINGEST_TEST_VIPS"
	f.lookPath = func(string) (string, error) { return "", errors.New("not in PATH") }

	info, err := f.Find()
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if info.Version != "8.14.0" {
		t.Errorf("Version = %q", info.Version)
	}
}
