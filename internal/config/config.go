// Package config loads engine configuration from a TOML file with
// validated defaults.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Segmentation strategies.
const (
	StrategyGrid    = "grid"
	StrategyGeohash = "geohash"
)

// Segmentation holds the tunables of a segmentation run.
type Segmentation struct {
	MinSegmentVoters int     `toml:"min_segment_voters"`
	MaxSegmentVoters int     `toml:"max_segment_voters"`
	Strategy         string  `toml:"strategy"`
	GridFillFactor   float64 `toml:"grid_fill_factor"`
	GeohashPrecision int     `toml:"geohash_precision"`
	Concavity        float64 `toml:"concavity"`
}

// Config is the root configuration document.
type Config struct {
	Segmentation Segmentation `toml:"segmentation"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Segmentation: Segmentation{
			MinSegmentVoters: 50,
			MaxSegmentVoters: 120,
			Strategy:         StrategyGrid,
			GridFillFactor:   0.7,
			GeohashPrecision: 6,
			Concavity:        0.98,
		},
	}
}

// Load reads path and merges it over Default. A missing file is not an
// error when path is empty; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: file %s not found", path)
		}
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	s := c.Segmentation
	if s.MinSegmentVoters <= 0 {
		return fmt.Errorf("config: min_segment_voters must be positive, got %d", s.MinSegmentVoters)
	}
	if s.MaxSegmentVoters < s.MinSegmentVoters {
		return fmt.Errorf("config: max_segment_voters %d is below min_segment_voters %d", s.MaxSegmentVoters, s.MinSegmentVoters)
	}
	switch s.Strategy {
	case StrategyGrid, StrategyGeohash:
	default:
		return fmt.Errorf("config: unknown strategy %q", s.Strategy)
	}
	if s.GridFillFactor <= 0 || s.GridFillFactor > 1 {
		return fmt.Errorf("config: grid_fill_factor must be in (0, 1], got %g", s.GridFillFactor)
	}
	if s.GeohashPrecision < 1 || s.GeohashPrecision > 12 {
		return fmt.Errorf("config: geohash_precision must be in [1, 12], got %d", s.GeohashPrecision)
	}
	if s.Concavity <= 0 || s.Concavity > 1 {
		return fmt.Errorf("config: concavity must be in (0, 1], got %g", s.Concavity)
	}
	return nil
}
