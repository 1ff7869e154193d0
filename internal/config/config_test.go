package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvass.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
[segmentation]
min_segment_voters = 30
max_segment_voters = 90
strategy = "geohash"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Segmentation
	if s.MinSegmentVoters != 30 || s.MaxSegmentVoters != 90 || s.Strategy != StrategyGeohash {
		t.Fatalf("segmentation = %+v", s)
	}
	// untouched keys keep their defaults
	if s.GridFillFactor != 0.7 || s.GeohashPrecision != 6 || s.Concavity != 0.98 {
		t.Fatalf("defaults lost: %+v", s)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[segmentation]
min_segment_votters = 30
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Segmentation)
	}{
		{"zero min", func(s *Segmentation) { s.MinSegmentVoters = 0 }},
		{"max below min", func(s *Segmentation) { s.MaxSegmentVoters = s.MinSegmentVoters - 1 }},
		{"bad strategy", func(s *Segmentation) { s.Strategy = "voronoi" }},
		{"fill factor above one", func(s *Segmentation) { s.GridFillFactor = 1.5 }},
		{"fill factor zero", func(s *Segmentation) { s.GridFillFactor = 0 }},
		{"precision zero", func(s *Segmentation) { s.GeohashPrecision = 0 }},
		{"precision too high", func(s *Segmentation) { s.GeohashPrecision = 13 }},
		{"concavity zero", func(s *Segmentation) { s.Concavity = 0 }},
		{"concavity above one", func(s *Segmentation) { s.Concavity = 1.1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg.Segmentation)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
