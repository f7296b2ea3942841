// Package matrixhttp serves the permission matrix front end: the grid reads,
// the bulk grant/revoke endpoint, and the per-user provenance detail view.
package matrixhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/tavolo-app/tavolo/internal/bulk"
	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/matrix"
	"github.com/tavolo-app/tavolo/internal/platform/httpx"
	"github.com/tavolo-app/tavolo/internal/profiles"
	"github.com/tavolo-app/tavolo/internal/resolve"
)

// MatrixService builds the grids behind the read endpoints.
type MatrixService interface {
	BuildPermissionMatrix(ctx context.Context, filter matrix.Filter) (matrix.Grid, error)
	BuildRoleMembershipMatrix(ctx context.Context, kind profiles.Kind) (matrix.RoleGrid, error)
}

// RoleLister supplies the available_roles section of the matrix payload.
type RoleLister interface {
	ListRoles(ctx context.Context) ([]catalog.Role, error)
}

// BulkProcessor applies grant/revoke batches.
type BulkProcessor interface {
	Apply(ctx context.Context, ops []bulk.Operation) (bulk.Report, error)
}

// ResolveService serves the per-user audit view.
type ResolveService interface {
	EffectiveGrants(ctx context.Context, profileID int64) (resolve.ProfileGrants, error)
}

// Handler coordinates HTTP requests for the authorization matrix.
type Handler struct {
	logger    *slog.Logger
	matrices  MatrixService
	roles     RoleLister
	processor BulkProcessor
	resolver  ResolveService
	validator *validator.Validate
	builds    singleflight.Group
}

// NewHandler constructs the matrix HTTP handler.
func NewHandler(logger *slog.Logger, matrices MatrixService, roles RoleLister, processor BulkProcessor, resolver ResolveService) *Handler {
	return &Handler{
		logger:    logger,
		matrices:  matrices,
		roles:     roles,
		processor: processor,
		resolver:  resolver,
		validator: validator.New(),
	}
}

func (h *Handler) handleMatrix(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	// Identical concurrent grid builds are collapsed; the matrix is a pure
	// read, so sharing one result across waiters is safe.
	key := "perm:" + string(filter.Kind) + ":" + filter.Category
	value, err, _ := h.builds.Do(key, func() (interface{}, error) {
		grid, err := h.matrices.BuildPermissionMatrix(r.Context(), filter)
		if err != nil {
			return nil, err
		}
		roles, err := h.roles.ListRoles(r.Context())
		if err != nil {
			return nil, err
		}
		return toMatrixResponse(grid, roles), nil
	})
	if err != nil {
		h.logger.Error("build permission matrix", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, value)
}

func (h *Handler) handleRoleMatrix(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	key := "role:" + string(filter.Kind)
	value, err, _ := h.builds.Do(key, func() (interface{}, error) {
		grid, err := h.matrices.BuildRoleMembershipMatrix(r.Context(), filter.Kind)
		if err != nil {
			return nil, err
		}
		return toRoleMatrixResponse(grid), nil
	})
	if err != nil {
		h.logger.Error("build role matrix", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, value)
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ops := make([]bulk.Operation, 0, len(req.Operations))
	for _, op := range req.Operations {
		ops = append(ops, bulk.Operation{
			ProfileID: op.UserID,
			Action:    bulk.Action(op.Action),
			TargetID:  op.TargetID,
		})
	}

	report, err := h.processor.Apply(r.Context(), ops)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		h.logger.Error("apply bulk batch", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	// Even on cancellation the partial report goes back; it is the source
	// of truth for what committed.
	h.logger.Info("bulk batch applied",
		slog.String("batch_id", report.BatchID),
		slog.Int("processed", report.Processed),
		slog.Int("successful", report.Successful),
		slog.Int("failures", len(report.Failures)))
	httpx.JSON(w, http.StatusOK, toBulkResponse(report))
}

func (h *Handler) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	profileID, err := strconv.ParseInt(chi.URLParam(r, "profileID"), 10, 64)
	if err != nil || profileID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid profile id")
		return
	}
	grants, err := h.resolver.EffectiveGrants(r.Context(), profileID)
	if err != nil {
		if !errors.Is(err, httpx.ErrNotFound) {
			h.logger.Error("resolve profile grants", slog.Any("error", err), slog.Int64("profile_id", profileID))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func parseFilter(r *http.Request) (matrix.Filter, error) {
	filter := matrix.Filter{Category: r.URL.Query().Get("category")}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind := profiles.Kind(raw)
		if !kind.Valid() {
			return matrix.Filter{}, fmt.Errorf("matrix: unknown profile kind %q: %w", raw, httpx.ErrValidation)
		}
		filter.Kind = kind
	}
	return filter, nil
}
