package policy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vantage-pos/vantage-pos/internal/platform/httpx"
	"github.com/vantage-pos/vantage-pos/internal/rbac"
)

// Handler exposes the scope a caller holds on each registered resource.
// Frontends use it to decide which screens and buttons to draw.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
	engine   *Engine
	current  func(ctx context.Context) rbac.Principal
}

func NewHandler(logger *slog.Logger, registry *Registry, engine *Engine, current func(ctx context.Context) rbac.Principal) *Handler {
	return &Handler{logger: logger, registry: registry, engine: engine, current: current}
}

// MountRoutes registers the scope introspection route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/scopes", h.scopes)
}

type scopeResponse struct {
	Resource   string `json:"resource"`
	Visibility string `json:"visibility"`
	ReadOnly   bool   `json:"read_only"`
}

func visibilityLabel(v Visibility) string {
	switch v {
	case VisibilityAll:
		return "all"
	case VisibilityOwned:
		return "owned"
	default:
		return "none"
	}
}

func (h *Handler) scopes(w http.ResponseWriter, r *http.Request) {
	p := h.current(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	out := make([]scopeResponse, 0)
	for _, tag := range h.registry.Tags() {
		decision, err := h.engine.ScopeFor(r.Context(), p, tag)
		if err != nil {
			h.logger.Error("scope lookup failed", slog.String("resource", tag), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		out = append(out, scopeResponse{
			Resource:   tag,
			Visibility: visibilityLabel(decision.Visibility),
			ReadOnly:   decision.ReadOnly,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scopes": out})
}
