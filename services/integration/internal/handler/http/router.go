package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raqmix/kippis-possync/pkg/health"
	"github.com/raqmix/kippis-possync/pkg/middleware"
)

const serviceName = "integration"

// RouterConfig holds the access settings of the HTTP surface.
type RouterConfig struct {
	// APIToken guards /api/v1 when set.
	APIToken string
	// PprofAllowedCIDRs enables /debug/pprof for these networks.
	PprofAllowedCIDRs []string
}

// NewRouter creates a chi router with all integration service routes registered.
func NewRouter(
	syncService SyncService,
	branchService BranchService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
	opts ...SyncHandlerOption,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	syncHandler := NewSyncHandler(syncService, logger, opts...)
	branchHandler := NewBranchHandler(branchService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ServiceToken(cfg.APIToken))
		r.Use(middleware.NoStore)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/", syncHandler.ListEntityTypes)
			r.Get("/runs", syncHandler.ListRuns)
			r.Get("/runs/{id}", syncHandler.GetRun)
			r.Post("/{entityType}", syncHandler.Sync)
		})
		r.Get("/branches", branchHandler.List)
	})

	return r
}
