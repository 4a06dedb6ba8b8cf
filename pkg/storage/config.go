package storage

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend names accepted by Config.Backend.
const (
	BackendNone  = "none"
	BackendLocal = "local"
	BackendAzure = "azure"
	BackendS3    = "s3"
)

// Config selects the blob archive backend and holds its connection parameters.
type Config struct {
	Backend string `toml:"backend"`

	// local
	Path string `toml:"path"`

	// azure
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`

	// s3
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
	Timeout         string `toml:"timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Backend          string
	Path             string
	ContainerName    string
	ConnectionString string
	Bucket           string
	Region           string
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	UsePathStyle     string
	Timeout          string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
	if overlay.ContainerName != "" {
		c.ContainerName = overlay.ContainerName
	}
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
	if overlay.Bucket != "" {
		c.Bucket = overlay.Bucket
	}
	if overlay.Region != "" {
		c.Region = overlay.Region
	}
	if overlay.Endpoint != "" {
		c.Endpoint = overlay.Endpoint
	}
	if overlay.AccessKeyID != "" {
		c.AccessKeyID = overlay.AccessKeyID
	}
	if overlay.SecretAccessKey != "" {
		c.SecretAccessKey = overlay.SecretAccessKey
	}
	if overlay.UsePathStyle {
		c.UsePathStyle = true
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendNone
	}
	if c.Path == "" {
		c.Path = "data/archive"
	}
	if c.ContainerName == "" {
		c.ContainerName = "eclaim"
	}
	if c.Timeout == "" {
		c.Timeout = "2m"
	}
}

func (c *Config) loadEnv(env *Env) {
	str := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	str(env.Backend, &c.Backend)
	str(env.Path, &c.Path)
	str(env.ContainerName, &c.ContainerName)
	str(env.ConnectionString, &c.ConnectionString)
	str(env.Bucket, &c.Bucket)
	str(env.Region, &c.Region)
	str(env.Endpoint, &c.Endpoint)
	str(env.AccessKeyID, &c.AccessKeyID)
	str(env.SecretAccessKey, &c.SecretAccessKey)
	str(env.Timeout, &c.Timeout)

	if env.UsePathStyle != "" {
		if v := os.Getenv(env.UsePathStyle); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.UsePathStyle = b
			}
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	switch c.Backend {
	case BackendNone:
	case BackendLocal:
		if c.Path == "" {
			return fmt.Errorf("path required for local backend")
		}
	case BackendAzure:
		if c.ContainerName == "" {
			return fmt.Errorf("container_name required")
		}
		if c.ConnectionString == "" {
			return fmt.Errorf("connection_string required")
		}
	case BackendS3:
		if c.Bucket == "" {
			return fmt.Errorf("bucket required")
		}
	default:
		return fmt.Errorf("unknown backend: %q", c.Backend)
	}
	return nil
}
