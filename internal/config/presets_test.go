package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestApplyPreset(t *testing.T) {
	tests := []struct {
		name      string
		preset    string
		wantOK    bool
		wantDim   int
		wantThumb int
	}{
		{name: "web preset", preset: "web", wantOK: true, wantDim: 2048, wantThumb: 300},
		{name: "hq preset", preset: "hq", wantOK: true, wantDim: 4096, wantThumb: 400},
		{name: "compact preset", preset: "compact", wantOK: true, wantDim: 1280, wantThumb: 200},
		{name: "unknown preset", preset: "unknown", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			ok := cfg.ApplyPreset(tt.preset)

			if ok != tt.wantOK {
				t.Errorf("ApplyPreset() = %v, want %v", ok, tt.wantOK)
			}

			if tt.wantOK {
				if cfg.Variants.MaxDimension != tt.wantDim {
					t.Errorf("MaxDimension = %d, want %d", cfg.Variants.MaxDimension, tt.wantDim)
				}
				if cfg.Variants.ThumbSize != tt.wantThumb {
					t.Errorf("ThumbSize = %d, want %d", cfg.Variants.ThumbSize, tt.wantThumb)
				}
			} else if cfg.Variants != Presets[PresetWeb] {
				t.Error("unknown preset must not change variants")
			}
		})
	}
}

func TestValidPresets(t *testing.T) {
	presets := ValidPresets()
	if len(presets) != len(Presets) {
		t.Errorf("ValidPresets() returned %d, want %d", len(presets), len(Presets))
	}

	for _, name := range presets {
		p, ok := Presets[Preset(name)]
		if !ok {
			t.Errorf("preset %q not found in Presets map", name)
			continue
		}
		if err := p.Validate(); err != nil {
			t.Errorf("preset %q invalid: %v", name, err)
		}
	}
}

func TestVariantPreset_Validate(t *testing.T) {
	base := Presets[PresetWeb]
	tests := []struct {
		name   string
		mutate func(p *VariantPreset)
	}{
		{"zero dimension", func(p *VariantPreset) { p.MaxDimension = 0 }},
		{"zero thumb", func(p *VariantPreset) { p.ThumbSize = 0 }},
		{"quality too high", func(p *VariantPreset) { p.Quality = 101 }},
		{"thumb quality zero", func(p *VariantPreset) { p.ThumbQuality = 0 }},
		{"effort too high", func(p *VariantPreset) { p.Effort = 7 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestProfileStore(t *testing.T) {
	store := &ProfileStore{Dir: filepath.Join(t.TempDir(), "profiles")}

	list, err := store.List()
	if err != nil || len(list) != 0 {
		t.Fatalf("List() on missing dir = %v, %v", list, err)
	}

	off := false
	blog := &ImportProfile{
		Source:     "/mnt/card",
		Mode:       "INGEST_COPY",
		Strategy:   "post_based",
		Thumbnails: &off,
		Tags:       []string{"trip"},
		Slug:       "summer",
	}
	path, err := store.Save("blog", blog)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Base(path) != "blog.yaml" {
		t.Errorf("Save() path = %s", path)
	}
	if _, err := store.Save("archive", &ImportProfile{Strategy: "date_based"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load("blog")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Source != "/mnt/card" || got.Slug != "summer" || len(got.Tags) != 1 {
		t.Errorf("Load() = %+v", got)
	}
	if got.Thumbnails == nil || *got.Thumbnails {
		t.Error("Thumbnails should round-trip as explicit false")
	}
	if got.Deduplicate != nil {
		t.Error("unset Deduplicate should stay nil")
	}

	list, err = store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "archive" || list[1].Name != "blog" {
		t.Errorf("List() = %+v", list)
	}

	if err := store.Delete("blog"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load("blog"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Load() after delete = %v, want ErrProfileNotFound", err)
	}
	if err := store.Delete("blog"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("second Delete() = %v, want ErrProfileNotFound", err)
	}
}

func TestProfileStore_BadName(t *testing.T) {
	store := &ProfileStore{Dir: t.TempDir()}
	if _, err := store.Path("../.."); err == nil {
		t.Error("Path() should reject names without safe characters")
	}
	p, err := store.Path("my/../blog")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(p) != store.Dir {
		t.Errorf("Path() escaped store dir: %s", p)
	}
}
