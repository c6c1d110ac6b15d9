package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-pos/vantage-pos/internal/platform/httpx"
	"github.com/vantage-pos/vantage-pos/internal/shared"
)

// UserLookup resolves role assignment targets.
type UserLookup interface {
	GetPrincipal(ctx context.Context, id int64) (Principal, error)
}

// Handler serves role, permission and assignment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	users    UserLookup
	mw       Middleware
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, users UserLookup, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, users: users, mw: mw, validate: validator.New()}
}

// MountRoutes registers role management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}", h.getRole)
		r.Get("/roles/{roleID}/permissions", h.rolePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermRolesEdit))
		r.Post("/roles", h.createRole)
		r.Put("/roles/{roleID}", h.updateRole)
		r.Delete("/roles/{roleID}", h.deactivateRole)
		r.Put("/roles/{roleID}/permissions", h.setRolePermissions)
		r.Post("/permissions/{permissionID}/activate", h.activatePermission)
		r.Post("/permissions/{permissionID}/deactivate", h.deactivatePermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermPermissionsView, shared.PermRolesEdit))
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermUsersEdit))
		r.Put("/users/{userID}/roles", h.setUserRoles)
		r.Post("/users/{userID}/resync", h.resyncUser)
		r.Get("/users/{userID}/drift", h.userDrift)
	})
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,max=150"`
	Description string `json:"description" validate:"max=500"`
}

type permissionIDsRequest struct {
	PermissionIDs []int64 `json:"permission_ids"`
}

type roleIDsRequest struct {
	RoleIDs []int64 `json:"role_ids"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deactivateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor := h.mw.Current(r.Context())
	if err := h.service.DeactivateRole(r.Context(), actor, id); err != nil {
		h.fail(w, "deactivate role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	ids, err := h.service.RolePermissionIDs(r.Context(), id)
	if err != nil {
		h.fail(w, "role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionIDsRequest{PermissionIDs: ids})
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req permissionIDsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor := h.mw.Current(r.Context())
	if err := h.service.SetRolePermissions(r.Context(), actor, id, req.PermissionIDs); err != nil {
		h.fail(w, "set role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) activatePermission(w http.ResponseWriter, r *http.Request) {
	h.togglePermission(w, r, true)
}

func (h *Handler) deactivatePermission(w http.ResponseWriter, r *http.Request) {
	h.togglePermission(w, r, false)
}

func (h *Handler) togglePermission(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := pathID(r, "permissionID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor := h.mw.Current(r.Context())
	if err := h.service.SetPermissionActive(r.Context(), actor, id, active); err != nil {
		h.fail(w, "toggle permission", err)
		return
	}
	status := "deactivated"
	if active {
		status = "activated"
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) setUserRoles(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req roleIDsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	target, err := h.users.GetPrincipal(r.Context(), id)
	if err != nil {
		h.fail(w, "load target user", err)
		return
	}
	actor := h.mw.Current(r.Context())
	change, err := h.service.SetRoles(r.Context(), actor, target, req.RoleIDs)
	if err != nil {
		h.fail(w, "set user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":      change.UserID,
		"roles_before": change.Before,
		"roles_after":  change.After,
	})
}

func (h *Handler) resyncUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	target, err := h.users.GetPrincipal(r.Context(), id)
	if err != nil {
		h.fail(w, "load target user", err)
		return
	}
	if err := h.service.ResyncUser(r.Context(), target); err != nil {
		h.fail(w, "resync user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (h *Handler) userDrift(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	target, err := h.users.GetPrincipal(r.Context(), id)
	if err != nil {
		h.fail(w, "load target user", err)
		return
	}
	drift, err := h.service.DetectNativeDrift(r.Context(), target)
	if err != nil {
		h.fail(w, "detect drift", err)
		return
	}
	httpx.JSON(w, http.StatusOK, drift)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidRoleAssignment):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role Assignment", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
