// Package matrix composes per-profile resolution results into the
// all-profiles × all-permissions grid used for bulk review and editing.
package matrix

import (
	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/profiles"
	"github.com/tavolo-app/tavolo/internal/resolve"
)

// Cell is one profile × permission intersection.
type Cell struct {
	Has     bool
	Sources []resolve.Source
}

// Row is one profile's line in the grid, carrying the precomputed effective
// set alongside the cells.
type Row struct {
	Profile   profiles.Profile
	Effective resolve.EffectiveSet
	Cells     []Cell
}

// Grid is the permission-oriented matrix. Column order follows catalog
// ordering (category, priority descending, name) so category grouping is
// stable across rebuilds.
type Grid struct {
	Columns []catalog.Permission
	Rows    []Row
}

// Build constructs the permission matrix. Each profile is resolved exactly
// once; every cell is then an O(1) membership check against that profile's
// effective set. Inactive permissions are excluded from the columns.
func Build(list []profiles.Profile, perms []catalog.Permission, idx resolve.CatalogIndex, resolver *resolve.Resolver) Grid {
	columns := make([]catalog.Permission, 0, len(perms))
	for _, p := range perms {
		if p.Active {
			columns = append(columns, p)
		}
	}
	catalog.SortPermissions(columns)

	rows := make([]Row, 0, len(list))
	for _, profile := range list {
		set := resolver.Resolve(profile, idx)
		cells := make([]Cell, len(columns))
		for i, perm := range columns {
			if set.Has(perm.Name) {
				cells[i] = Cell{Has: true, Sources: set.Sources(perm.Name)}
			}
		}
		rows = append(rows, Row{Profile: profile, Effective: set, Cells: cells})
	}
	return Grid{Columns: columns, Rows: rows}
}

// RoleRow is one profile's line in the role-oriented grid.
type RoleRow struct {
	Profile profiles.Profile
	Member  []bool
}

// RoleGrid is the role-oriented matrix variant. Cells are direct set
// membership checks on the profile's role IDs; no resolution is needed.
type RoleGrid struct {
	Columns []catalog.Role
	Rows    []RoleRow
}

// BuildRoleMatrix constructs the role membership grid over active roles.
func BuildRoleMatrix(list []profiles.Profile, roles []catalog.Role) RoleGrid {
	columns := make([]catalog.Role, 0, len(roles))
	for _, r := range roles {
		if r.Active {
			columns = append(columns, r)
		}
	}
	catalog.SortRoles(columns)

	rows := make([]RoleRow, 0, len(list))
	for _, profile := range list {
		member := make([]bool, len(columns))
		for i, role := range columns {
			member[i] = profile.HasRole(role.ID)
		}
		rows = append(rows, RoleRow{Profile: profile, Member: member})
	}
	return RoleGrid{Columns: columns, Rows: rows}
}
