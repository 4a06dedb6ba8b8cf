// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, archive storage, the
// local file store, metrics) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/database"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/files"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/lifecycle"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/metrics"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/storage"
)

// MetricsNamespace prefixes every exported Prometheus metric.
const MetricsNamespace = "eclaim"

// SourceDirs are the per-source subdirectories of the local file store.
var SourceDirs = []string{"claims", "statement", "transfer", "uploads"}

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, database access, archive storage, file resolution, and metrics.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Files     *files.Resolver
	Metrics   *metrics.Metrics
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	resolver, err := files.New(cfg.Files.Root, SourceDirs...)
	if err != nil {
		return nil, fmt.Errorf("files init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Files:     resolver,
		Metrics:   metrics.New(MetricsNamespace),
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator
// and creates the file store directories.
func (i *Infrastructure) Start() error {
	for _, dir := range SourceDirs {
		if _, err := i.Files.Dir(dir); err != nil {
			return fmt.Errorf("files start failed: %w", err)
		}
	}
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}
