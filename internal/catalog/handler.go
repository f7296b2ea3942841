package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tavolo-app/tavolo/internal/platform/httpx"
)

// CacheBumper invalidates downstream resolved-set caches after catalog
// mutations, which can change any profile's effective set.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Handler manages catalog administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cache     CacheBumper
	validator *validator.Validate
}

// NewHandler builds Handler instance. cache may be nil.
func NewHandler(logger *slog.Logger, service *Service, cache CacheBumper) *Handler {
	return &Handler{logger: logger, service: service, cache: cache, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions", h.listPermissions)
	r.Post("/permissions", h.createPermission)
	r.Post("/permissions/{id}/deactivate", h.setPermissionActive(false))
	r.Post("/permissions/{id}/activate", h.setPermissionActive(true))

	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRole)
	r.Post("/roles/{id}/deactivate", h.setRoleActive(false))
	r.Post("/roles/{id}/activate", h.setRoleActive(true))
	r.Put("/roles/{id}/permissions", h.setRolePermissions)
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    int    `json:"priority"`
	Active      bool   `json:"active"`
}

type roleResponse struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Priority    int                  `json:"priority"`
	Active      bool                 `json:"active"`
	Permissions []permissionResponse `json:"permissions"`
}

type createPermissionRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Priority    int    `json:"priority"`
}

type createRoleRequest struct {
	Name          string  `json:"name" validate:"required"`
	Description   string  `json:"description" validate:"required"`
	Priority      int     `json:"priority"`
	PermissionIDs []int64 `json:"permission_ids" validate:"dive,gt=0"`
}

type setRolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required,dive,gt=0"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	var (
		perms []Permission
		err   error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		perms, err = h.service.ListPermissionsByCategory(r.Context(), category)
	} else {
		perms, err = h.service.ListPermissions(r.Context())
	}
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toPermissionResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), CreatePermissionInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.bump(r.Context())
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(perm))
}

func (h *Handler) setPermissionActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid permission id")
			return
		}
		if active {
			err = h.service.ActivatePermission(r.Context(), id)
		} else {
			err = h.service.DeactivatePermission(r.Context(), id)
		}
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		h.bump(r.Context())
		httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "active": active})
	}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), CreateRoleInput{
		Name:          req.Name,
		Description:   req.Description,
		Priority:      req.Priority,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.bump(r.Context())
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) setRoleActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
			return
		}
		if active {
			err = h.service.ActivateRole(r.Context(), id)
		} else {
			err = h.service.DeactivateRole(r.Context(), id)
		}
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		h.bump(r.Context())
		httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "active": active})
	}
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req setRolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.bump(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) bump(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Bump(ctx); err != nil {
		h.logger.Warn("bump resolve cache", slog.Any("error", err))
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func toPermissionResponse(p Permission) permissionResponse {
	return permissionResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Priority:    p.Priority,
		Active:      p.Active,
	}
}

func toRoleResponse(role Role) roleResponse {
	perms := make([]permissionResponse, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Priority:    role.Priority,
		Active:      role.Active,
		Permissions: perms,
	}
}
