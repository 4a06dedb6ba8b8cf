package api

import (
	"net/http"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	archive := newArchiveHandler(runtime.Storage, runtime.Logger)

	routes.Register(
		mux,
		domain.Downloads.Handler().Routes(),
		domain.Imports.Handler(cfg.API.MaxUploadSizeBytes()).Routes(),
		domain.Reconcile.Handler().Routes(),
		archive.routes(),
	)
}
