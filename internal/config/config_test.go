package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080

[database]
host = "localhost"
port = 5432
name = "eclaim"
user = "eclaim"

[storage]
backend = "local"
path = "archive"

[files]
root = "downloads"

[portal]
base_url = "https://portal.example"
cookie = "JSESSIONID=abc"

[portal.listings]
claims = "/rep/list"

[download]
max_workers = 2

[download.workers]
statement = 4

[imports]
batch_size = 300
facility_code = "10670"

[reconcile]
threshold = "0.50"
interval = "0s"

[api.pagination]
default_page_size = 25
max_page_size = 50
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[reconcile]
threshold = "2"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func load(t *testing.T, files map[string]string) (*config.Config, error) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeConfig(t, dir, name, content)
	}
	t.Chdir(dir)
	return config.Load()
}

func TestLoad(t *testing.T) {
	cfg, err := load(t, map[string]string{"config.toml": baseConfig})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.Path != "archive" {
		t.Errorf("storage: got %+v", cfg.Storage)
	}
	if cfg.Files.Root != "downloads" {
		t.Errorf("files root: got %s", cfg.Files.Root)
	}
	if cfg.Portal.Listings["claims"] != "/rep/list" {
		t.Errorf("claims listing: got %s", cfg.Portal.Listings["claims"])
	}
	if cfg.Download.WorkersFor("statement") != 4 || cfg.Download.WorkersFor("claims") != 2 {
		t.Errorf("workers: statement=%d claims=%d", cfg.Download.WorkersFor("statement"), cfg.Download.WorkersFor("claims"))
	}
	if cfg.Download.AttemptTimeoutDuration() != 60*time.Second {
		t.Errorf("attempt timeout default: got %v", cfg.Download.AttemptTimeoutDuration())
	}
	if cfg.Imports.BatchSize != 300 || cfg.Imports.FacilityCode != "10670" {
		t.Errorf("imports: got %+v", cfg.Imports)
	}
	if cfg.Reconcile.ThresholdDecimal().String() != "0.5" {
		t.Errorf("threshold: got %s", cfg.Reconcile.ThresholdDecimal())
	}
	if cfg.Reconcile.IntervalDuration() != 0 {
		t.Errorf("interval: got %v, want disabled", cfg.Reconcile.IntervalDuration())
	}
	if cfg.API.Pagination.DefaultPageSize != 25 || cfg.API.Pagination.MaxPageSize != 50 {
		t.Errorf("pagination: got %+v", cfg.API.Pagination)
	}
}

func TestLoadWithOverlay(t *testing.T) {
	t.Setenv("ECLAIM_ENV", "staging")

	cfg, err := load(t, map[string]string{
		"config.toml":         baseConfig,
		"config.staging.toml": overlayConfig,
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost (from overlay)", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port: got %d, want 5432 (from base)", cfg.Database.Port)
	}
	if cfg.Reconcile.Threshold != "2" {
		t.Errorf("threshold: got %s, want 2 (from overlay)", cfg.Reconcile.Threshold)
	}
	if cfg.Env() != "staging" {
		t.Errorf("env: got %s", cfg.Env())
	}
}

func TestLoadEnvFiles(t *testing.T) {
	t.Setenv("ECLAIM_ENV", "prod")
	t.Setenv("ECLAIM_VERSION", "")
	t.Setenv("ECLAIM_SERVER_PORT", "")

	cfg, err := load(t, map[string]string{
		"config.toml": baseConfig,
		".env":        "ECLAIM_VERSION=1.2.0\nECLAIM_SERVER_PORT=7000\n",
		".env.prod":   "ECLAIM_SERVER_PORT=7100\n",
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 7100 {
		t.Errorf("server port: got %d, want 7100 from .env.prod", cfg.Server.Port)
	}
	if cfg.Version != "0.1.0" {
		t.Errorf("version: got %s, want base value when env already set", cfg.Version)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	t.Setenv("ECLAIM_VERSION", "2.0.0")
	t.Setenv("ECLAIM_SERVER_PORT", "3000")
	t.Setenv("ECLAIM_DOWNLOAD_ATTEMPT_TIMEOUT", "15s")
	t.Setenv("ECLAIM_RECONCILE_INTERVAL", "30m")
	t.Setenv("ECLAIM_STORAGE_BACKEND", "none")

	cfg, err := load(t, map[string]string{"config.toml": baseConfig})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Download.AttemptTimeoutDuration() != 15*time.Second {
		t.Errorf("attempt timeout: got %v", cfg.Download.AttemptTimeoutDuration())
	}
	if cfg.Reconcile.IntervalDuration() != 30*time.Minute {
		t.Errorf("interval: got %v", cfg.Reconcile.IntervalDuration())
	}
	if cfg.Storage.Backend != "none" {
		t.Errorf("storage backend: got %s", cfg.Storage.Backend)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	cfg, err := load(t, nil)
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Imports.BatchSize != 200 {
		t.Errorf("batch size default: got %d, want 200", cfg.Imports.BatchSize)
	}
	if cfg.Download.MaxWorkers != 1 || cfg.Download.FileAttempts != 3 || cfg.Download.DiscoveryAttempts != 3 {
		t.Errorf("download defaults: got %+v", cfg.Download)
	}
	if cfg.Reconcile.IntervalDuration() != time.Hour {
		t.Errorf("interval default: got %v", cfg.Reconcile.IntervalDuration())
	}
	if cfg.Storage.Backend != "none" {
		t.Errorf("storage backend default: got %s", cfg.Storage.Backend)
	}
	if cfg.ShutdownTimeoutDuration() != 30*time.Second {
		t.Errorf("shutdown timeout: got %v", cfg.ShutdownTimeoutDuration())
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	if _, err := load(t, map[string]string{"config.toml": `shutdown_timeout = `}); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{"invalid port", "[server]\nport = 99999", "invalid port"},
		{"batch size too small", "[imports]\nbatch_size = 50", "batch_size"},
		{"batch size too large", "[imports]\nbatch_size = 1000", "batch_size"},
		{"bad facility code", "[imports]\nfacility_code = \"ABC\"", "facility_code"},
		{"workers above cap", "[download]\nmax_workers = 20\nworker_cap = 8", "max_workers"},
		{"negative threshold", "[reconcile]\nthreshold = \"-1\"", "threshold"},
		{"bad interval", "[reconcile]\ninterval = \"soon\"", "interval"},
		{"relative portal url", "[portal]\nbase_url = \"portal\"", "base_url"},
		{"unknown storage backend", "[storage]\nbackend = \"ftp\"", "backend"},
		{"azure without connection", "[storage]\nbackend = \"azure\"", "connection_string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, map[string]string{"config.toml": tt.config})
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestMaxUploadSizeBytes(t *testing.T) {
	tests := []struct {
		size string
		want int64
	}{
		{"50MB", 50 * 1024 * 1024},
		{"1GB", 1024 * 1024 * 1024},
		{"bad", 50 * 1024 * 1024},
		{"", 50 * 1024 * 1024},
	}

	for _, tt := range tests {
		cfg := &config.APIConfig{MaxUploadSize: tt.size}
		if got := cfg.MaxUploadSizeBytes(); got != tt.want {
			t.Errorf("MaxUploadSizeBytes(%q) = %d, want %d", tt.size, got, tt.want)
		}
	}
}
