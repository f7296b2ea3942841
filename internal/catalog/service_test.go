package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tavolo-app/tavolo/internal/platform/httpx"
)

type memoryRepo struct {
	perms  map[int64]Permission
	roles  map[int64]Role
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{perms: make(map[int64]Permission), roles: make(map[int64]Role)}
}

func (r *memoryRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	SortPermissions(out)
	return out, nil
}

func (r *memoryRepo) ListPermissionsByCategory(ctx context.Context, category string) ([]Permission, error) {
	all, _ := r.ListPermissions(ctx)
	var out []Permission
	for _, p := range all {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, ok := r.perms[id]
	if !ok {
		return Permission{}, fmt.Errorf("catalog: permission %d: %w", id, httpx.ErrNotFound)
	}
	return p, nil
}

func (r *memoryRepo) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	for _, existing := range r.perms {
		if existing.Name == perm.Name {
			return Permission{}, fmt.Errorf("catalog: permission %q: %w", perm.Name, httpx.ErrDuplicateName)
		}
	}
	r.nextID++
	perm.ID = r.nextID
	perm.Active = true
	r.perms[perm.ID] = perm
	return perm, nil
}

func (r *memoryRepo) SetPermissionActive(ctx context.Context, id int64, active bool) error {
	p, ok := r.perms[id]
	if !ok {
		return fmt.Errorf("catalog: permission %d: %w", id, httpx.ErrNotFound)
	}
	p.Active = active
	r.perms[id] = p
	return nil
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	SortRoles(out)
	return out, nil
}

func (r *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("catalog: role %d: %w", id, httpx.ErrNotFound)
	}
	return role, nil
}

func (r *memoryRepo) CreateRole(ctx context.Context, role Role, permissionIDs []int64) (Role, error) {
	for _, existing := range r.roles {
		if existing.Name == role.Name {
			return Role{}, fmt.Errorf("catalog: role %q: %w", role.Name, httpx.ErrDuplicateName)
		}
	}
	// All-or-nothing: an unknown permission ID fails the whole create and
	// stores nothing, matching the transactional repository.
	var attached []Permission
	for _, id := range permissionIDs {
		p, ok := r.perms[id]
		if !ok {
			return Role{}, fmt.Errorf("catalog: role %q references a missing permission: %w", role.Name, httpx.ErrNotFound)
		}
		attached = append(attached, p)
	}
	r.nextID++
	role.ID = r.nextID
	role.Active = true
	role.Permissions = attached
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRepo) SetRoleActive(ctx context.Context, id int64, active bool) error {
	role, ok := r.roles[id]
	if !ok {
		return fmt.Errorf("catalog: role %d: %w", id, httpx.ErrNotFound)
	}
	role.Active = active
	r.roles[id] = role
	return nil
}

func (r *memoryRepo) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	role, ok := r.roles[roleID]
	if !ok {
		return fmt.Errorf("catalog: role %d: %w", roleID, httpx.ErrNotFound)
	}
	role.Permissions = nil
	for _, id := range permissionIDs {
		if p, ok := r.perms[id]; ok {
			role.Permissions = append(role.Permissions, p)
		}
	}
	r.roles[roleID] = role
	return nil
}

func TestCreatePermissionValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreatePermission(ctx, CreatePermissionInput{Name: "ab", Description: "too short"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.CreatePermission(ctx, CreatePermissionInput{Name: strings.Repeat("x", 101), Description: "too long"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.CreatePermission(ctx, CreatePermissionInput{Name: "view_dashboard", Description: "   "})
	require.ErrorIs(t, err, httpx.ErrValidation)

	perm, err := svc.CreatePermission(ctx, CreatePermissionInput{Name: "view_dashboard", Description: "See the dashboard", Category: "general"})
	require.NoError(t, err)
	require.True(t, perm.Active)
	require.NotZero(t, perm.ID)
}

func TestCreatePermissionNameLengthCountsCharacters(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	// Two characters even though four bytes.
	_, err := svc.CreatePermission(ctx, CreatePermissionInput{Name: "ñé", Description: "d", Category: "general"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	// A hundred characters even though two hundred bytes.
	_, err = svc.CreatePermission(ctx, CreatePermissionInput{Name: strings.Repeat("é", 100), Description: "d", Category: "general"})
	require.NoError(t, err)

	_, err = svc.CreatePermission(ctx, CreatePermissionInput{Name: strings.Repeat("é", 101), Description: "d", Category: "general"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreatePermissionDuplicateName(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreatePermission(ctx, CreatePermissionInput{Name: "manage_kitchen", Description: "Kitchen ops", Category: "kitchen"})
	require.NoError(t, err)

	_, err = svc.CreatePermission(ctx, CreatePermissionInput{Name: "manage_kitchen", Description: "Again", Category: "kitchen"})
	require.ErrorIs(t, err, httpx.ErrDuplicateName)

	// Names are case-sensitive; a differently cased name is a new entry.
	_, err = svc.CreatePermission(ctx, CreatePermissionInput{Name: "Manage_Kitchen", Description: "Cased", Category: "kitchen"})
	require.NoError(t, err)
}

func TestDeactivatePermissionIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	perm, err := svc.CreatePermission(ctx, CreatePermissionInput{Name: "view_reports", Description: "Reports", Category: "reports"})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivatePermission(ctx, perm.ID))
	require.NoError(t, svc.DeactivatePermission(ctx, perm.ID))

	stored, err := svc.GetPermission(ctx, perm.ID)
	require.NoError(t, err)
	require.False(t, stored.Active)

	require.NoError(t, svc.ActivatePermission(ctx, perm.ID))
	stored, err = svc.GetPermission(ctx, perm.ID)
	require.NoError(t, err)
	require.True(t, stored.Active)

	require.ErrorIs(t, svc.DeactivatePermission(ctx, 9999), httpx.ErrNotFound)
}

func TestListPermissionsOrdering(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	inputs := []CreatePermissionInput{
		{Name: "manage_orders", Description: "d", Category: "orders", Priority: 10},
		{Name: "view_orders", Description: "d", Category: "orders", Priority: 10},
		{Name: "cancel_orders", Description: "d", Category: "orders", Priority: 5},
		{Name: "manage_kitchen", Description: "d", Category: "kitchen", Priority: 1},
	}
	for _, in := range inputs {
		_, err := svc.CreatePermission(ctx, in)
		require.NoError(t, err)
	}

	perms, err := svc.ListPermissions(ctx)
	require.NoError(t, err)
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	// Category ascending, then priority descending, then name ascending.
	require.Equal(t, []string{"manage_kitchen", "manage_orders", "view_orders", "cancel_orders"}, names)

	byCategory, err := svc.ListPermissionsByCategory(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, byCategory, 3)
	require.Equal(t, "manage_orders", byCategory[0].Name)
}

func TestCreateRoleWithPermissions(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	perm, err := svc.CreatePermission(ctx, CreatePermissionInput{Name: "view_dashboard", Description: "d", Category: "general"})
	require.NoError(t, err)

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "kitchen_manager_role", Description: "Kitchen managers", PermissionIDs: []int64{perm.ID}})
	require.NoError(t, err)
	require.True(t, role.Active)
	require.Len(t, role.Permissions, 1)

	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "kitchen_manager_role", Description: "dup"})
	require.ErrorIs(t, err, httpx.ErrDuplicateName)

	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "xy", Description: "short"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateRoleFailedAttachLeavesNoRole(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, CreateRoleInput{Name: "waiter_role", Description: "Waiters", PermissionIDs: []int64{999}})
	require.ErrorIs(t, err, httpx.ErrNotFound)

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Empty(t, roles, "a failed permission attach must roll back the role")
}
