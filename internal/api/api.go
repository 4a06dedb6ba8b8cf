// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"net/http"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/infrastructure"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/middleware"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/module"
)

// API is the mounted HTTP module and the domain systems behind it.
type API struct {
	Module *module.Module
	Domain *Domain
}

// New creates the API module with all domain handlers and middleware.
func New(cfg *config.Config, infra *infrastructure.Infrastructure) (*API, error) {
	runtime := NewRuntime(cfg, infra)
	domain, err := NewDomain(runtime, cfg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Infrastructure.Logger))

	return &API{Module: m, Domain: domain}, nil
}

// Start starts the domain background work. Call after the infrastructure
// has started.
func (a *API) Start() error {
	return a.Domain.Start()
}
