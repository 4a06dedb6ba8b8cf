package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvDownloadMaxWorkers        = "ECLAIM_DOWNLOAD_MAX_WORKERS"
	EnvDownloadWorkerCap         = "ECLAIM_DOWNLOAD_WORKER_CAP"
	EnvDownloadDiscoveryAttempts = "ECLAIM_DOWNLOAD_DISCOVERY_ATTEMPTS"
	EnvDownloadFileAttempts      = "ECLAIM_DOWNLOAD_FILE_ATTEMPTS"
	EnvDownloadAttemptTimeout    = "ECLAIM_DOWNLOAD_ATTEMPT_TIMEOUT"
	EnvDownloadBackoff           = "ECLAIM_DOWNLOAD_BACKOFF"
)

// DownloadConfig holds download session tuning.
type DownloadConfig struct {
	MaxWorkers        int    `toml:"max_workers"`
	WorkerCap         int    `toml:"worker_cap"`
	DiscoveryAttempts int    `toml:"discovery_attempts"`
	FileAttempts      int    `toml:"file_attempts"`
	AttemptTimeout    string `toml:"attempt_timeout"`
	Backoff           string `toml:"backoff"`
	// Workers overrides MaxWorkers per source type.
	Workers map[string]int `toml:"workers"`
}

// AttemptTimeoutDuration returns AttemptTimeout as a time.Duration.
func (c *DownloadConfig) AttemptTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.AttemptTimeout)
	return d
}

// BackoffDuration returns Backoff as a time.Duration.
func (c *DownloadConfig) BackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.Backoff)
	return d
}

// WorkersFor returns the default worker count for a source type.
func (c *DownloadConfig) WorkersFor(sourceType string) int {
	if n, ok := c.Workers[sourceType]; ok && n > 0 {
		return n
	}
	return c.MaxWorkers
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *DownloadConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *DownloadConfig) Merge(overlay *DownloadConfig) {
	if overlay.MaxWorkers != 0 {
		c.MaxWorkers = overlay.MaxWorkers
	}
	if overlay.WorkerCap != 0 {
		c.WorkerCap = overlay.WorkerCap
	}
	if overlay.DiscoveryAttempts != 0 {
		c.DiscoveryAttempts = overlay.DiscoveryAttempts
	}
	if overlay.FileAttempts != 0 {
		c.FileAttempts = overlay.FileAttempts
	}
	if overlay.AttemptTimeout != "" {
		c.AttemptTimeout = overlay.AttemptTimeout
	}
	if overlay.Backoff != "" {
		c.Backoff = overlay.Backoff
	}
	if len(overlay.Workers) > 0 {
		if c.Workers == nil {
			c.Workers = make(map[string]int, len(overlay.Workers))
		}
		for k, v := range overlay.Workers {
			c.Workers[k] = v
		}
	}
}

func (c *DownloadConfig) loadDefaults() {
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 1
	}
	if c.WorkerCap == 0 {
		c.WorkerCap = 8
	}
	if c.DiscoveryAttempts == 0 {
		c.DiscoveryAttempts = 3
	}
	if c.FileAttempts == 0 {
		c.FileAttempts = 3
	}
	if c.AttemptTimeout == "" {
		c.AttemptTimeout = "60s"
	}
	if c.Backoff == "" {
		c.Backoff = "1s"
	}
}

func (c *DownloadConfig) loadEnv() {
	ints := map[string]*int{
		EnvDownloadMaxWorkers:        &c.MaxWorkers,
		EnvDownloadWorkerCap:         &c.WorkerCap,
		EnvDownloadDiscoveryAttempts: &c.DiscoveryAttempts,
		EnvDownloadFileAttempts:      &c.FileAttempts,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	if v := os.Getenv(EnvDownloadAttemptTimeout); v != "" {
		c.AttemptTimeout = v
	}
	if v := os.Getenv(EnvDownloadBackoff); v != "" {
		c.Backoff = v
	}
}

func (c *DownloadConfig) validate() error {
	if c.WorkerCap < 1 {
		return fmt.Errorf("worker_cap must be positive")
	}
	if c.MaxWorkers < 1 || c.MaxWorkers > c.WorkerCap {
		return fmt.Errorf("max_workers must be between 1 and %d", c.WorkerCap)
	}
	for source, n := range c.Workers {
		if n < 1 || n > c.WorkerCap {
			return fmt.Errorf("workers.%s must be between 1 and %d", source, c.WorkerCap)
		}
	}
	if c.DiscoveryAttempts < 1 {
		return fmt.Errorf("discovery_attempts must be positive")
	}
	if c.FileAttempts < 1 {
		return fmt.Errorf("file_attempts must be positive")
	}
	if d, err := time.ParseDuration(c.AttemptTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid attempt_timeout: %q", c.AttemptTimeout)
	}
	if _, err := time.ParseDuration(c.Backoff); err != nil {
		return fmt.Errorf("invalid backoff: %w", err)
	}
	return nil
}
