package matrixhttp

import (
	"github.com/tavolo-app/tavolo/internal/bulk"
	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/matrix"
	"github.com/tavolo-app/tavolo/internal/profiles"
	"github.com/tavolo-app/tavolo/internal/resolve"
)

type userVM struct {
	ProfileID int64  `json:"profile_id"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
}

type permissionVM struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

type roleVM struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	PermissionCount int    `json:"permission_count"`
}

type matrixRowVM struct {
	User        userVM               `json:"user"`
	Permissions []string             `json:"permissions"`
	Sources     resolve.SourceCounts `json:"permission_sources"`
}

type matrixResponse struct {
	Users                []userVM       `json:"users"`
	AvailablePermissions []permissionVM `json:"available_permissions"`
	AvailableRoles       []roleVM       `json:"available_roles"`
	Matrix               []matrixRowVM  `json:"matrix"`
}

type roleMatrixRowVM struct {
	User  userVM   `json:"user"`
	Roles []string `json:"roles"`
}

type roleMatrixResponse struct {
	Users          []userVM          `json:"users"`
	AvailableRoles []roleVM          `json:"available_roles"`
	Matrix         []roleMatrixRowVM `json:"matrix"`
}

type bulkRequest struct {
	Operations []bulkOperationVM `json:"operations" validate:"required,min=1,max=500,dive"`
}

type bulkOperationVM struct {
	UserID   int64  `json:"user_id" validate:"required,gt=0"`
	Action   string `json:"action" validate:"required"`
	TargetID int64  `json:"target_id" validate:"required,gt=0"`
}

type bulkFailureVM struct {
	UserID   int64  `json:"user_id"`
	Action   string `json:"action"`
	TargetID int64  `json:"target_id"`
	Code     string `json:"code"`
	Reason   string `json:"reason"`
}

type bulkResponse struct {
	Success    bool            `json:"success"`
	BatchID    string          `json:"batch_id"`
	Processed  int             `json:"processed"`
	Successful int             `json:"successful"`
	Failures   []bulkFailureVM `json:"failures"`
}

func toUserVM(p profiles.Profile) userVM {
	return userVM{ProfileID: p.ID, UserID: p.UserID, Name: p.UserName, Kind: string(p.Kind)}
}

func toPermissionVM(p catalog.Permission) permissionVM {
	return permissionVM{ID: p.ID, Name: p.Name, Category: p.Category, Priority: p.Priority}
}

func toRoleVM(r catalog.Role) roleVM {
	active := 0
	for _, p := range r.Permissions {
		if p.Active {
			active++
		}
	}
	return roleVM{ID: r.ID, Name: r.Name, PermissionCount: active}
}

func toMatrixResponse(grid matrix.Grid, roles []catalog.Role) matrixResponse {
	resp := matrixResponse{
		Users:                make([]userVM, 0, len(grid.Rows)),
		AvailablePermissions: make([]permissionVM, 0, len(grid.Columns)),
		AvailableRoles:       make([]roleVM, 0, len(roles)),
		Matrix:               make([]matrixRowVM, 0, len(grid.Rows)),
	}
	for _, col := range grid.Columns {
		resp.AvailablePermissions = append(resp.AvailablePermissions, toPermissionVM(col))
	}
	for _, role := range roles {
		if role.Active {
			resp.AvailableRoles = append(resp.AvailableRoles, toRoleVM(role))
		}
	}
	for _, row := range grid.Rows {
		user := toUserVM(row.Profile)
		resp.Users = append(resp.Users, user)
		granted := make([]string, 0, len(row.Cells))
		for i, cell := range row.Cells {
			if cell.Has {
				granted = append(granted, grid.Columns[i].Name)
			}
		}
		resp.Matrix = append(resp.Matrix, matrixRowVM{
			User:        user,
			Permissions: granted,
			Sources:     row.Effective.Counts(),
		})
	}
	return resp
}

func toRoleMatrixResponse(grid matrix.RoleGrid) roleMatrixResponse {
	resp := roleMatrixResponse{
		Users:          make([]userVM, 0, len(grid.Rows)),
		AvailableRoles: make([]roleVM, 0, len(grid.Columns)),
		Matrix:         make([]roleMatrixRowVM, 0, len(grid.Rows)),
	}
	for _, role := range grid.Columns {
		resp.AvailableRoles = append(resp.AvailableRoles, toRoleVM(role))
	}
	for _, row := range grid.Rows {
		user := toUserVM(row.Profile)
		resp.Users = append(resp.Users, user)
		held := make([]string, 0, len(row.Member))
		for i, ok := range row.Member {
			if ok {
				held = append(held, grid.Columns[i].Name)
			}
		}
		resp.Matrix = append(resp.Matrix, roleMatrixRowVM{User: user, Roles: held})
	}
	return resp
}

func toBulkResponse(report bulk.Report) bulkResponse {
	resp := bulkResponse{
		Success:    len(report.Failures) == 0,
		BatchID:    report.BatchID,
		Processed:  report.Processed,
		Successful: report.Successful,
		Failures:   make([]bulkFailureVM, 0, len(report.Failures)),
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, bulkFailureVM{
			UserID:   f.Operation.ProfileID,
			Action:   string(f.Operation.Action),
			TargetID: f.Operation.TargetID,
			Code:     f.Code,
			Reason:   f.Reason,
		})
	}
	return resp
}
