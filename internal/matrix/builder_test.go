package matrix

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/legacy"
	"github.com/tavolo-app/tavolo/internal/profiles"
	"github.com/tavolo-app/tavolo/internal/resolve"
)

func fixtures() ([]catalog.Permission, []catalog.Role, []profiles.Profile) {
	perms := []catalog.Permission{
		{ID: 1, Name: "view_dashboard", Category: "general", Priority: 10, Active: true},
		{ID: 2, Name: "manage_kitchen", Category: "kitchen", Priority: 5, Active: true},
		{ID: 3, Name: "view_logs", Category: "ops", Priority: 1, Active: true},
		{ID: 4, Name: "retired_flag", Category: "ops", Priority: 9, Active: false},
	}
	roles := []catalog.Role{
		{ID: 7, Name: "kitchen_manager_role", Priority: 2, Active: true, Permissions: []catalog.Permission{perms[0], perms[1]}},
		{ID: 9, Name: "auditor_role", Priority: 1, Active: true, Permissions: []catalog.Permission{perms[2]}},
	}
	list := []profiles.Profile{
		{ID: 1, UserID: 11, UserName: "Ana", Kind: profiles.KindAdmin, DirectPermissionIDs: []int64{3}},
		{ID: 2, UserID: 12, UserName: "Ben", Kind: profiles.KindKitchen, RoleIDs: []int64{7}},
		{ID: 3, UserID: 13, UserName: "Cleo", Kind: profiles.KindAdmin, LegacyTags: []string{"super_administrator"}},
	}
	return perms, roles, list
}

func TestBuildMatrixMatchesResolution(t *testing.T) {
	perms, roles, list := fixtures()
	idx := resolve.NewCatalogIndex(perms, roles)
	resolver := resolve.NewResolver(legacy.BuiltIn())

	grid := Build(list, perms, idx, resolver)
	require.Len(t, grid.Rows, len(list))

	// Every cell agrees with an independent resolution of the same profile.
	for _, row := range grid.Rows {
		set := resolver.Resolve(row.Profile, idx)
		for i, col := range grid.Columns {
			require.Equal(t, set.Has(col.Name), row.Cells[i].Has,
				"profile %d column %s", row.Profile.ID, col.Name)
			if row.Cells[i].Has {
				require.Equal(t, set.Sources(col.Name), row.Cells[i].Sources)
			} else {
				require.Nil(t, row.Cells[i].Sources)
			}
		}
	}
}

func TestBuildMatrixColumnOrdering(t *testing.T) {
	perms, roles, list := fixtures()
	idx := resolve.NewCatalogIndex(perms, roles)
	resolver := resolve.NewResolver(legacy.BuiltIn())

	grid := Build(list, perms, idx, resolver)
	names := make([]string, len(grid.Columns))
	for i, col := range grid.Columns {
		names[i] = col.Name
	}
	// Inactive retired_flag is excluded; categories group columns.
	require.Equal(t, []string{"view_dashboard", "manage_kitchen", "view_logs"}, names)
}

func TestBuildMatrixExcludesDeactivatedPermission(t *testing.T) {
	perms, roles, list := fixtures()
	perms[2].Active = false // view_logs held directly by Ana
	idx := resolve.NewCatalogIndex(perms, roles)
	resolver := resolve.NewResolver(legacy.BuiltIn())

	grid := Build(list, perms, idx, resolver)
	for _, col := range grid.Columns {
		require.NotEqual(t, "view_logs", col.Name)
	}
	require.False(t, grid.Rows[0].Effective.Has("view_logs"))
}

func TestBuildRoleMatrix(t *testing.T) {
	_, roles, list := fixtures()
	grid := BuildRoleMatrix(list, roles)

	require.Len(t, grid.Columns, 2)
	require.Equal(t, "kitchen_manager_role", grid.Columns[0].Name)
	require.Equal(t, "auditor_role", grid.Columns[1].Name)

	// Only Ben holds role 7; role membership ignores resolution entirely,
	// so Cleo's wildcard legacy tag grants no role membership.
	require.Equal(t, []bool{false, false}, grid.Rows[0].Member)
	require.Equal(t, []bool{true, false}, grid.Rows[1].Member)
	require.Equal(t, []bool{false, false}, grid.Rows[2].Member)
}

func TestBuildRoleMatrixSkipsInactiveRole(t *testing.T) {
	_, roles, list := fixtures()
	roles[0].Active = false
	grid := BuildRoleMatrix(list, roles)
	require.Len(t, grid.Columns, 1)
	require.Equal(t, "auditor_role", grid.Columns[0].Name)
}
