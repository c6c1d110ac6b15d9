package twofactor

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/vantage-pos/vantage-pos/internal/identity"
	"github.com/vantage-pos/vantage-pos/internal/platform/httpx"
)

// Handler exposes two-factor enrollment endpoints for the signed-in user.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers two-factor routes. Confirmation is rate limited so
// a stolen session cannot brute-force the six-digit space.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/enroll", h.enroll)
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/confirm", h.confirm)
	})
	r.Post("/disable", h.disable)
	r.Post("/backup-codes", h.regenerateCodes)
	r.Get("/backup-codes", h.remainingCodes)
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	enrollment, err := h.service.Enroll(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, r, "enroll", err)
		return
	}
	httpx.JSON(w, http.StatusOK, enrollment)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req codeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	codes, err := h.service.Confirm(r.Context(), user.ID, req.Code)
	if err != nil {
		h.respondError(w, r, "confirm", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (h *Handler) disable(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.service.Disable(r.Context(), user.ID); err != nil {
		h.respondError(w, r, "disable", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

func (h *Handler) regenerateCodes(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	codes, err := h.service.RegenerateCodes(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, r, "regenerate codes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (h *Handler) remainingCodes(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	count, err := h.service.RemainingCodes(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, r, "count codes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"remaining": count})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidCode):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Code", "the provided code is not valid")
	case errors.Is(err, ErrNotEnabled):
		httpx.Problem(w, http.StatusConflict, "Not Enabled", "two-factor authentication is not active")
	case errors.Is(err, ErrAlreadyEnabled):
		httpx.Problem(w, http.StatusConflict, "Already Enabled", "two-factor authentication is already active")
	default:
		h.logger.Error("twofactor "+op+" failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}
