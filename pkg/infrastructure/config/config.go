// Package config provides configuration loading for srp.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SRP_"

// Config holds every tunable of the shortage pipeline. Calculation code
// receives these values explicitly; there are no literals scattered
// through it.
type Config struct {
	// SlotMinutes is the canonical slot width.
	SlotMinutes int `koanf:"slot_minutes"`
	// CanonicalPeriodDays is the period length totals are normalized to.
	CanonicalPeriodDays int `koanf:"canonical_period_days"`
	// Normalize controls whether results are rescaled to the canonical
	// period length at all. Both sides are always treated identically.
	Normalize bool `koanf:"normalize"`
	// MaxParallelRoles bounds the per-role workers in the aggregator.
	MaxParallelRoles int `koanf:"max_parallel_roles"`

	Thresholds ThresholdConfig `koanf:"thresholds"`
}

// ThresholdConfig groups the plausibility and reconciliation thresholds.
type ThresholdConfig struct {
	// ReconcileTolerance is the relative tolerance for breakdown sums
	// against the overall total.
	ReconcileTolerance float64 `koanf:"reconcile_tolerance"`
	// ImplausibilityFactor scales the facility mean requirement into the
	// single-cell need plausibility bound.
	ImplausibilityFactor float64 `koanf:"implausibility_factor"`
	// PracticalDailyCeilingHours is the per-role daily lack above which a
	// warning is raised for human review.
	PracticalDailyCeilingHours float64 `koanf:"practical_daily_ceiling_hours"`
	// SwingFactor is the day-over-day relative change considered
	// anomalous (3 = 300%).
	SwingFactor float64 `koanf:"swing_factor"`
	// MinReliableDays / MaxReliableDays bound the period lengths for
	// which normalization is considered trustworthy.
	MinReliableDays int `koanf:"min_reliable_days"`
	MaxReliableDays int `koanf:"max_reliable_days"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		SlotMinutes:         30,
		CanonicalPeriodDays: 30,
		Normalize:           true,
		MaxParallelRoles:    4,
		Thresholds: ThresholdConfig{
			ReconcileTolerance:         0.01,
			ImplausibilityFactor:       3,
			PracticalDailyCeilingHours: 8,
			SwingFactor:                3,
			MinReliableDays:            7,
			MaxReliableDays:            120,
		},
	}
}

// Load reads configuration with precedence (highest first):
//
//  1. Environment variables (SRP_SLOT_MINUTES, SRP_THRESHOLDS_SWING_FACTOR, ...)
//  2. YAML config file, when path is non-empty and the file exists
//  3. Defaults
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// transformEnvKey maps environment variable names onto config keys:
//
//	SRP_SLOT_MINUTES             -> slot_minutes
//	SRP_THRESHOLDS_SWING_FACTOR  -> thresholds.swing_factor
func transformEnvKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if rest, ok := strings.CutPrefix(key, "thresholds_"); ok {
		return "thresholds." + rest
	}
	return key
}

// Validate rejects configurations no calculation could run on.
func (c *Config) Validate() error {
	if c.SlotMinutes <= 0 || (24*60)%c.SlotMinutes != 0 {
		return fmt.Errorf("slot_minutes %d must evenly divide a day", c.SlotMinutes)
	}
	if c.CanonicalPeriodDays <= 0 {
		return fmt.Errorf("canonical_period_days must be positive, got %d", c.CanonicalPeriodDays)
	}
	if c.MaxParallelRoles < 0 {
		return fmt.Errorf("max_parallel_roles must not be negative, got %d", c.MaxParallelRoles)
	}
	t := c.Thresholds
	if t.ReconcileTolerance < 0 || t.ReconcileTolerance >= 1 {
		return fmt.Errorf("thresholds.reconcile_tolerance must be in [0, 1), got %g", t.ReconcileTolerance)
	}
	if t.ImplausibilityFactor <= 0 {
		return fmt.Errorf("thresholds.implausibility_factor must be positive, got %g", t.ImplausibilityFactor)
	}
	if t.PracticalDailyCeilingHours <= 0 {
		return fmt.Errorf("thresholds.practical_daily_ceiling_hours must be positive, got %g", t.PracticalDailyCeilingHours)
	}
	if t.SwingFactor <= 0 {
		return fmt.Errorf("thresholds.swing_factor must be positive, got %g", t.SwingFactor)
	}
	if t.MinReliableDays <= 0 || t.MaxReliableDays < t.MinReliableDays {
		return fmt.Errorf("thresholds reliable-days bounds [%d, %d] are invalid", t.MinReliableDays, t.MaxReliableDays)
	}
	return nil
}
