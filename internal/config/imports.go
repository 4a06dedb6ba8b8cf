package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
)

const (
	EnvImportsBatchSize    = "ECLAIM_IMPORTS_BATCH_SIZE"
	EnvImportsFacilityCode = "ECLAIM_IMPORTS_FACILITY_CODE"
	EnvImportsHeaderRows   = "ECLAIM_IMPORTS_HEADER_ROWS"
)

var facilityCodePattern = regexp.MustCompile(`^\d{5}$`)

// ImportsConfig holds import runner settings.
type ImportsConfig struct {
	BatchSize    int    `toml:"batch_size"`
	FacilityCode string `toml:"facility_code"`
	HeaderRows   int    `toml:"header_rows"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ImportsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ImportsConfig) Merge(overlay *ImportsConfig) {
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.FacilityCode != "" {
		c.FacilityCode = overlay.FacilityCode
	}
	if overlay.HeaderRows != 0 {
		c.HeaderRows = overlay.HeaderRows
	}
}

func (c *ImportsConfig) loadDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 200
	}
	if c.HeaderRows == 0 {
		c.HeaderRows = 15
	}
}

func (c *ImportsConfig) loadEnv() {
	if v := os.Getenv(EnvImportsBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv(EnvImportsFacilityCode); v != "" {
		c.FacilityCode = v
	}
	if v := os.Getenv(EnvImportsHeaderRows); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HeaderRows = n
		}
	}
}

func (c *ImportsConfig) validate() error {
	if c.BatchSize < 100 || c.BatchSize > 500 {
		return fmt.Errorf("batch_size must be between 100 and 500, got %d", c.BatchSize)
	}
	if c.HeaderRows < 1 {
		return fmt.Errorf("header_rows must be positive")
	}
	if c.FacilityCode != "" && !facilityCodePattern.MatchString(c.FacilityCode) {
		return fmt.Errorf("facility_code must be five digits, got %q", c.FacilityCode)
	}
	return nil
}
