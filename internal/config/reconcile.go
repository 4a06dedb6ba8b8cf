package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EnvReconcileThreshold = "ECLAIM_RECONCILE_THRESHOLD"
	EnvReconcileEpsilon   = "ECLAIM_RECONCILE_EPSILON"
	EnvReconcileInterval  = "ECLAIM_RECONCILE_INTERVAL"
)

// ReconcileConfig holds reconciliation tolerances and the recompute schedule.
// Amounts are strings so they parse exactly as decimals.
type ReconcileConfig struct {
	Threshold string `toml:"threshold"`
	Epsilon   string `toml:"epsilon"`
	Interval  string `toml:"interval"`
}

// ThresholdDecimal returns Threshold as a decimal.
func (c *ReconcileConfig) ThresholdDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.Threshold)
	return d
}

// EpsilonDecimal returns Epsilon as a decimal.
func (c *ReconcileConfig) EpsilonDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.Epsilon)
	return d
}

// IntervalDuration returns Interval as a time.Duration. Zero disables scheduling.
func (c *ReconcileConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ReconcileConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ReconcileConfig) Merge(overlay *ReconcileConfig) {
	if overlay.Threshold != "" {
		c.Threshold = overlay.Threshold
	}
	if overlay.Epsilon != "" {
		c.Epsilon = overlay.Epsilon
	}
	if overlay.Interval != "" {
		c.Interval = overlay.Interval
	}
}

func (c *ReconcileConfig) loadDefaults() {
	if c.Threshold == "" {
		c.Threshold = "1"
	}
	if c.Epsilon == "" {
		c.Epsilon = "1"
	}
	if c.Interval == "" {
		c.Interval = "1h"
	}
}

func (c *ReconcileConfig) loadEnv() {
	if v := os.Getenv(EnvReconcileThreshold); v != "" {
		c.Threshold = v
	}
	if v := os.Getenv(EnvReconcileEpsilon); v != "" {
		c.Epsilon = v
	}
	if v := os.Getenv(EnvReconcileInterval); v != "" {
		c.Interval = v
	}
}

func (c *ReconcileConfig) validate() error {
	if d, err := decimal.NewFromString(c.Threshold); err != nil || d.IsNegative() {
		return fmt.Errorf("invalid threshold: %q", c.Threshold)
	}
	if d, err := decimal.NewFromString(c.Epsilon); err != nil || d.IsNegative() {
		return fmt.Errorf("invalid epsilon: %q", c.Epsilon)
	}
	if d, err := time.ParseDuration(c.Interval); err != nil || d < 0 {
		return fmt.Errorf("invalid interval: %q", c.Interval)
	}
	return nil
}
