package catalog

import (
	"sort"
	"time"
)

// Permission represents an atomic capability flag. Identity is the
// case-sensitive Name; ID is a storage surrogate.
type Permission struct {
	ID          int64
	Name        string
	Description string
	Category    string
	Priority    int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role bundles permissions under a name. Roles are flat: a role never
// contains another role.
type Role struct {
	ID          int64
	Name        string
	Description string
	Priority    int
	Active      bool
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SortPermissions orders permissions by category, then priority descending,
// then name. The matrix builder relies on this ordering for stable column
// grouping across rebuilds.
func SortPermissions(perms []Permission) {
	sort.SliceStable(perms, func(i, j int) bool {
		if perms[i].Category != perms[j].Category {
			return perms[i].Category < perms[j].Category
		}
		if perms[i].Priority != perms[j].Priority {
			return perms[i].Priority > perms[j].Priority
		}
		return perms[i].Name < perms[j].Name
	})
}

// SortRoles orders roles by priority descending, then name.
func SortRoles(roles []Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].Priority != roles[j].Priority {
			return roles[i].Priority > roles[j].Priority
		}
		return roles[i].Name < roles[j].Name
	})
}
