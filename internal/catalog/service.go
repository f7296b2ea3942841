package catalog

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tavolo-app/tavolo/internal/platform/httpx"
)

const (
	nameMinLen = 3
	nameMaxLen = 100
)

// CreatePermissionInput carries the fields required to register a permission.
type CreatePermissionInput struct {
	Name        string
	Description string
	Category    string
	Priority    int
}

// CreateRoleInput carries the fields required to register a role.
type CreateRoleInput struct {
	Name          string
	Description   string
	Priority      int
	PermissionIDs []int64
}

// Service handles catalog business logic. Catalog mutations are all-or-nothing
// per call; entries are soft-disabled, never hard-deleted while referenced.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListPermissions returns the catalog in matrix column order.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// ListPermissionsByCategory returns one category ordered by priority
// descending then name.
func (s *Service) ListPermissionsByCategory(ctx context.Context, category string) ([]Permission, error) {
	if strings.TrimSpace(category) == "" {
		return nil, fmt.Errorf("catalog: category required: %w", httpx.ErrValidation)
	}
	return s.repo.ListPermissionsByCategory(ctx, category)
}

// CreatePermission registers a new permission flag.
func (s *Service) CreatePermission(ctx context.Context, in CreatePermissionInput) (Permission, error) {
	if err := validateName(in.Name); err != nil {
		return Permission{}, err
	}
	if strings.TrimSpace(in.Description) == "" {
		return Permission{}, fmt.Errorf("catalog: description required: %w", httpx.ErrValidation)
	}
	return s.repo.CreatePermission(ctx, Permission{
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Priority:    in.Priority,
	})
}

// DeactivatePermission soft-disables a permission. Deactivating an already
// inactive permission is a no-op success.
func (s *Service) DeactivatePermission(ctx context.Context, id int64) error {
	return s.repo.SetPermissionActive(ctx, id, false)
}

// ActivatePermission re-enables a soft-disabled permission. Existing grant
// rows were never deleted, so reactivation restores prior effective sets
// without re-granting.
func (s *Service) ActivatePermission(ctx context.Context, id int64) error {
	return s.repo.SetPermissionActive(ctx, id, true)
}

// GetPermission fetches one permission.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// ListRoles returns all roles with permissions attached.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole registers a new role and attaches its initial permission set.
// The insert and the attach commit together; a failed attach leaves no role
// behind.
func (s *Service) CreateRole(ctx context.Context, in CreateRoleInput) (Role, error) {
	if err := validateName(in.Name); err != nil {
		return Role{}, err
	}
	if strings.TrimSpace(in.Description) == "" {
		return Role{}, fmt.Errorf("catalog: description required: %w", httpx.ErrValidation)
	}
	return s.repo.CreateRole(ctx, Role{
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Priority:    in.Priority,
	}, in.PermissionIDs)
}

// DeactivateRole soft-disables a role; membership rows are retained.
func (s *Service) DeactivateRole(ctx context.Context, id int64) error {
	return s.repo.SetRoleActive(ctx, id, false)
}

// ActivateRole re-enables a soft-disabled role.
func (s *Service) ActivateRole(ctx context.Context, id int64) error {
	return s.repo.SetRoleActive(ctx, id, true)
}

// SetRolePermissions replaces a role's permission set.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	return s.repo.SetRolePermissions(ctx, roleID, permissionIDs)
}

// validateName bounds the name in characters, not bytes; multibyte names
// count one per rune.
func validateName(name string) error {
	if l := utf8.RuneCountInString(name); l < nameMinLen || l > nameMaxLen {
		return fmt.Errorf("catalog: name length must be between %d and %d: %w", nameMinLen, nameMaxLen, httpx.ErrValidation)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("catalog: name must not have surrounding whitespace: %w", httpx.ErrValidation)
	}
	return nil
}
