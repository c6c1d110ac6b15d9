package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/vantage-pos/vantage-pos/internal/audit/http"
	"github.com/vantage-pos/vantage-pos/internal/auth"
	"github.com/vantage-pos/vantage-pos/internal/identity"
	"github.com/vantage-pos/vantage-pos/internal/observability"
	"github.com/vantage-pos/vantage-pos/internal/policy"
	"github.com/vantage-pos/vantage-pos/internal/rbac"
	"github.com/vantage-pos/vantage-pos/internal/shared"
	"github.com/vantage-pos/vantage-pos/internal/twofactor"
	"github.com/vantage-pos/vantage-pos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthMiddleware   auth.Middleware
	RBACMiddleware   rbac.Middleware
	AuthHandler      *auth.Handler
	TwoFactorHandler *twofactor.Handler
	RBACHandler      *rbac.Handler
	PolicyHandler    *policy.Handler
	UsersHandler     *identity.Handler
	AuditHandler     *audithttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.AuthMiddleware.WithUser)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/csrf", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + token + `"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/twofactor", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireAuthenticated())
		params.TwoFactorHandler.MountRoutes(r)
	})

	r.Route("/access", params.RBACHandler.MountRoutes)

	if params.PolicyHandler != nil {
		r.Route("/me", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAuthenticated())
			params.PolicyHandler.MountRoutes(r)
		})
	}

	r.Route("/users", params.UsersHandler.MountRoutes)

	if params.AuditHandler != nil {
		r.Route("/audit", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAny(shared.PermAuditView))
			params.AuditHandler.MountRoutes(r)
		})
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
