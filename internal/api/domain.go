package api

import (
	"context"
	"fmt"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/downloads"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/imports"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/portal"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/reconcile"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Downloads downloads.System
	Imports   imports.System
	Reconcile reconcile.System

	runtime *Runtime
}

// NewDomain creates all domain systems from the API runtime. Imports notify
// the reconciliation engine of every file that added rows.
func NewDomain(runtime *Runtime, cfg *config.Config) (*Domain, error) {
	db := runtime.Database.Connection()

	client, err := portal.New(&cfg.Portal, runtime.Logger)
	if err != nil {
		return nil, fmt.Errorf("portal init failed: %w", err)
	}

	reconcileSystem := reconcile.New(
		reconcile.NewStore(db, runtime.Pagination),
		runtime.Metrics,
		&cfg.Reconcile,
		runtime.Logger,
		runtime.Pagination,
	)

	downloadsSystem := downloads.New(
		downloads.NewStore(db, runtime.Pagination),
		client,
		runtime.Files,
		runtime.Storage,
		runtime.Metrics,
		runtime.Lifecycle,
		&cfg.Download,
		runtime.Logger,
		runtime.Pagination,
	)

	importsSystem := imports.New(
		imports.NewStore(db, runtime.Pagination),
		runtime.Files,
		runtime.Storage,
		runtime.Metrics,
		reconcileSystem,
		runtime.Lifecycle,
		&cfg.Imports,
		runtime.Logger,
		runtime.Pagination,
	)

	return &Domain{
		Downloads: downloadsSystem,
		Imports:   importsSystem,
		Reconcile: reconcileSystem,
		runtime:   runtime,
	}, nil
}

// Start registers the reconciliation workers and, once every startup hook
// has finished, recovers sessions and imports a previous process left
// running.
func (d *Domain) Start() error {
	lc := d.runtime.Lifecycle

	if err := d.Reconcile.Start(lc); err != nil {
		return fmt.Errorf("reconcile start failed: %w", err)
	}

	lc.Go(func(ctx context.Context) {
		lc.WaitForStartup()
		d.recover(ctx)
	})
	return nil
}

func (d *Domain) recover(ctx context.Context) {
	logger := d.runtime.Logger

	if !d.runtime.Database.Ready() {
		logger.Warn("database not ready, skipping recovery")
		return
	}

	if n, err := d.Downloads.Recover(ctx); err != nil {
		logger.Error("download recovery failed", "error", err)
	} else if n > 0 {
		logger.Info("recovered interrupted download sessions", "count", n)
	}

	if n, err := d.Imports.Recover(ctx); err != nil {
		logger.Error("import recovery failed", "error", err)
	} else if n > 0 {
		logger.Info("reset interrupted imports", "count", n)
	}
}
