package infrastructure_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/infrastructure"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/database"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/files"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/storage"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "eclaim",
			User:            "eclaim",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: "15m",
			ConnTimeout:     "5s",
		},
		Storage: storage.Config{
			Backend: storage.BackendLocal,
			Path:    filepath.Join(t.TempDir(), "archive"),
		},
		Files:   files.Config{Root: filepath.Join(t.TempDir(), "downloads")},
		Version: "0.1.0",
	}
}

func TestNew(t *testing.T) {
	infra, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer infra.Database.Connection().Close()

	if infra.Lifecycle == nil || infra.Logger == nil || infra.Database == nil {
		t.Fatal("core systems not initialized")
	}
	if !infra.Storage.Enabled() {
		t.Error("local archive should be enabled")
	}
	if infra.Files == nil || infra.Metrics == nil {
		t.Error("files or metrics not initialized")
	}
}

func TestNewUnknownStorageBackend(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.Backend = "ftp"

	if _, err := infrastructure.New(cfg); err == nil {
		t.Fatal("expected error for unknown storage backend")
	}
}

func TestStartCreatesSourceDirs(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.Backend = storage.BackendNone

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer infra.Database.Connection().Close()

	if err := infra.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, dir := range infrastructure.SourceDirs {
		info, err := os.Stat(filepath.Join(cfg.Files.Root, dir))
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
}
