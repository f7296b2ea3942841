package matrix

import (
	"context"

	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/profiles"
	"github.com/tavolo-app/tavolo/internal/resolve"
)

// ProfileStore lists profiles for matrix rows.
type ProfileStore interface {
	List(ctx context.Context, kind profiles.Kind) ([]profiles.Profile, error)
}

// CatalogStore exposes catalog listings for matrix columns and resolution.
type CatalogStore interface {
	ListPermissions(ctx context.Context) ([]catalog.Permission, error)
	ListRoles(ctx context.Context) ([]catalog.Role, error)
}

// Filter narrows the matrix to a profile kind and/or permission category.
type Filter struct {
	Kind     profiles.Kind
	Category string
}

// Service loads the inputs for a matrix build.
type Service struct {
	profiles ProfileStore
	catalogs CatalogStore
	resolver *resolve.Resolver
}

// NewService builds Service instance.
func NewService(profileStore ProfileStore, catalogStore CatalogStore, resolver *resolve.Resolver) *Service {
	return &Service{profiles: profileStore, catalogs: catalogStore, resolver: resolver}
}

// BuildPermissionMatrix assembles the permission grid for the filter. The
// catalog index always covers the full catalogs so resolution stays correct
// even when the visible columns are narrowed to one category.
func (s *Service) BuildPermissionMatrix(ctx context.Context, filter Filter) (Grid, error) {
	list, err := s.profiles.List(ctx, filter.Kind)
	if err != nil {
		return Grid{}, err
	}
	perms, err := s.catalogs.ListPermissions(ctx)
	if err != nil {
		return Grid{}, err
	}
	roles, err := s.catalogs.ListRoles(ctx)
	if err != nil {
		return Grid{}, err
	}
	idx := resolve.NewCatalogIndex(perms, roles)

	columns := perms
	if filter.Category != "" {
		columns = columns[:0:0]
		for _, p := range perms {
			if p.Category == filter.Category {
				columns = append(columns, p)
			}
		}
	}
	return Build(list, columns, idx, s.resolver), nil
}

// BuildRoleMembershipMatrix assembles the role grid for the filter.
func (s *Service) BuildRoleMembershipMatrix(ctx context.Context, kind profiles.Kind) (RoleGrid, error) {
	list, err := s.profiles.List(ctx, kind)
	if err != nil {
		return RoleGrid{}, err
	}
	roles, err := s.catalogs.ListRoles(ctx)
	if err != nil {
		return RoleGrid{}, err
	}
	return BuildRoleMatrix(list, roles), nil
}
