package api_test

import (
	"path/filepath"
	"testing"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/api"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/infrastructure"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/database"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/files"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/storage"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "eclaim",
			User:            "eclaim",
			Password:        "eclaim",
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
		Files: files.Config{Root: filepath.Join(t.TempDir(), "downloads")},
		Portal: config.PortalConfig{
			BaseURL: "https://eclaim.example.go.th",
		},
		API: config.APIConfig{
			BasePath: "/api",
			Pagination: pagination.Config{
				DefaultPageSize: 20,
				MaxPageSize:     100,
			},
		},
		Version: "0.1.0",
	}

	finalizers := map[string]func() error{
		"api":       cfg.API.Finalize,
		"portal":    cfg.Portal.Finalize,
		"download":  cfg.Download.Finalize,
		"imports":   cfg.Imports.Finalize,
		"reconcile": cfg.Reconcile.Finalize,
	}
	for name, finalize := range finalizers {
		if err := finalize(); err != nil {
			t.Fatalf("%s Finalize() error = %v", name, err)
		}
	}
	return cfg
}

func setupInfra(t *testing.T, cfg *config.Config) *infrastructure.Infrastructure {
	t.Helper()
	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("infrastructure.New() error = %v", err)
	}
	t.Cleanup(func() { infra.Database.Connection().Close() })
	return infra
}

func TestNew(t *testing.T) {
	cfg := validConfig(t)
	infra := setupInfra(t, cfg)

	a, err := api.New(cfg, infra)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if a.Module.Prefix() != "/api" {
		t.Errorf("prefix: got %s, want /api", a.Module.Prefix())
	}
	if a.Domain.Downloads == nil || a.Domain.Imports == nil || a.Domain.Reconcile == nil {
		t.Error("domain systems not initialized")
	}
}

func TestNewRuntime(t *testing.T) {
	cfg := validConfig(t)
	infra := setupInfra(t, cfg)

	runtime := api.NewRuntime(cfg, infra)

	if runtime.Pagination.DefaultPageSize != 20 {
		t.Errorf("pagination default page size: got %d, want 20", runtime.Pagination.DefaultPageSize)
	}
	if runtime.Pagination.MaxPageSize != 100 {
		t.Errorf("pagination max page size: got %d, want 100", runtime.Pagination.MaxPageSize)
	}
	if runtime.Logger == nil || runtime.Database == nil || runtime.Lifecycle == nil {
		t.Error("core systems not carried into runtime")
	}
	if runtime.Files != infra.Files || runtime.Metrics != infra.Metrics {
		t.Error("files or metrics not shared with infrastructure")
	}
}

func TestNewDomainInvalidPortal(t *testing.T) {
	cfg := validConfig(t)
	infra := setupInfra(t, cfg)
	cfg.Portal.BaseURL = "://bad"

	if _, err := api.NewDomain(api.NewRuntime(cfg, infra), cfg); err == nil {
		t.Fatal("expected error for unparseable portal base url")
	}
}
