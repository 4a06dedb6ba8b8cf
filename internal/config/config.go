package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/database"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/files"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"
	BaseEnvFile          = ".env"
	OverlayEnvPattern    = ".env.%s"

	EnvEclaimEnv             = "ECLAIM_ENV"
	EnvEclaimShutdownTimeout = "ECLAIM_SHUTDOWN_TIMEOUT"
	EnvEclaimVersion         = "ECLAIM_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "ECLAIM_DB_HOST",
	Port:            "ECLAIM_DB_PORT",
	Name:            "ECLAIM_DB_NAME",
	User:            "ECLAIM_DB_USER",
	Password:        "ECLAIM_DB_PASSWORD",
	SSLMode:         "ECLAIM_DB_SSL_MODE",
	MaxOpenConns:    "ECLAIM_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "ECLAIM_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "ECLAIM_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "ECLAIM_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	Backend:          "ECLAIM_STORAGE_BACKEND",
	Path:             "ECLAIM_STORAGE_PATH",
	ContainerName:    "ECLAIM_STORAGE_CONTAINER_NAME",
	ConnectionString: "ECLAIM_STORAGE_CONNECTION_STRING",
	Bucket:           "ECLAIM_STORAGE_BUCKET",
	Region:           "ECLAIM_STORAGE_REGION",
	Endpoint:         "ECLAIM_STORAGE_ENDPOINT",
	AccessKeyID:      "ECLAIM_STORAGE_ACCESS_KEY_ID",
	SecretAccessKey:  "ECLAIM_STORAGE_SECRET_ACCESS_KEY",
	UsePathStyle:     "ECLAIM_STORAGE_USE_PATH_STYLE",
	Timeout:          "ECLAIM_STORAGE_TIMEOUT",
}

var filesEnv = &files.Env{
	Root: "ECLAIM_FILES_ROOT",
}

// Config is the root configuration for the e-claim service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	Files           files.Config    `toml:"files"`
	Portal          PortalConfig    `toml:"portal"`
	Download        DownloadConfig  `toml:"download"`
	Imports         ImportsConfig   `toml:"imports"`
	Reconcile       ReconcileConfig `toml:"reconcile"`
	API             APIConfig       `toml:"api"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the ECLAIM_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvEclaimEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads .env files into the process environment, then the base config
// (if present), applies any environment overlay, and finalizes all values.
// If no config.toml exists, defaults and environment variables provide all
// configuration.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Files.Merge(&overlay.Files)
	c.Portal.Merge(&overlay.Portal)
	c.Download.Merge(&overlay.Download)
	c.Imports.Merge(&overlay.Imports)
	c.Reconcile.Merge(&overlay.Reconcile)
	c.API.Merge(&overlay.API)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Files.Finalize(filesEnv); err != nil {
		return fmt.Errorf("files: %w", err)
	}
	if err := c.Portal.Finalize(); err != nil {
		return fmt.Errorf("portal: %w", err)
	}
	if err := c.Download.Finalize(); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if err := c.Imports.Finalize(); err != nil {
		return fmt.Errorf("imports: %w", err)
	}
	if err := c.Reconcile.Finalize(); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvEclaimShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvEclaimVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// loadEnvFiles loads .env and then .env.<ECLAIM_ENV>. Variables already set
// in the process environment win over .env; the overlay file wins over both.
func loadEnvFiles() error {
	if _, err := os.Stat(BaseEnvFile); err == nil {
		if err := godotenv.Load(BaseEnvFile); err != nil {
			return fmt.Errorf("load %s: %w", BaseEnvFile, err)
		}
	}

	if env := os.Getenv(EnvEclaimEnv); env != "" {
		path := fmt.Sprintf(OverlayEnvPattern, env)
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	return nil
}

func overlayPath() string {
	if env := os.Getenv(EnvEclaimEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
