package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vaultview/vaultview/internal/actors"
	"github.com/vaultview/vaultview/internal/auth"
	"github.com/vaultview/vaultview/internal/observability"
	"github.com/vaultview/vaultview/internal/platform/httpx"
	"github.com/vaultview/vaultview/internal/rbac"
	"github.com/vaultview/vaultview/internal/shared"
	"github.com/vaultview/vaultview/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	RBACHandler    *rbac.Handler
	ActorsHandler  *actors.Handler
	JobHandler     *jobs.Handler
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
}

// NewRouter assembles the chi router with the full middleware chain.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         p.Logger,
		Config:         p.Config,
		SessionManager: p.SessionManager,
		CSRFManager:    p.CSRFManager,
		Metrics:        p.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		p.AuthHandler.MountRoutes(r)
	})
	r.Route("/api", func(r chi.Router) {
		p.RBACHandler.MountRoutes(r, p.RBACMiddleware)
		p.ActorsHandler.MountRoutes(r, p.RBACMiddleware)
	})
	if p.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(p.RBACMiddleware.RequireScope(rbac.ScopeSystem, rbac.LevelView))
			p.JobHandler.MountRoutes(r)
		})
	}

	return r
}
