// Package resolve computes a profile's effective permission set from its
// three grant sources: direct grants, role membership, and legacy account
// tags. Provenance is informational only; multiple sources can co-grant the
// same permission.
package resolve

import (
	"sort"
	"strings"

	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/legacy"
	"github.com/tavolo-app/tavolo/internal/profiles"
)

// Source tags where an effective permission came from.
type Source string

const (
	// SourceDirect marks a permission granted straight to the profile.
	SourceDirect Source = "direct"
	// SourceLegacy marks a permission implied by an account-level legacy tag.
	SourceLegacy Source = "legacy"

	roleSourcePrefix = "role:"
)

// RoleSource builds the provenance tag for a grant that arrived through the
// named role.
func RoleSource(roleName string) Source {
	return Source(roleSourcePrefix + roleName)
}

// IsRole reports whether the source is a role provenance tag.
func (s Source) IsRole() bool {
	return strings.HasPrefix(string(s), roleSourcePrefix)
}

func sourceRank(s Source) int {
	switch {
	case s == SourceDirect:
		return 0
	case s.IsRole():
		return 1
	default:
		return 2
	}
}

// EffectiveSet maps each effective permission name to its non-empty
// provenance tag set. Membership checks are O(1) after a single resolve;
// callers checking many permissions for one profile (the matrix builder)
// must reuse the set instead of re-resolving per check.
type EffectiveSet struct {
	grants map[string]map[Source]struct{}
}

func newEffectiveSet() EffectiveSet {
	return EffectiveSet{grants: make(map[string]map[Source]struct{})}
}

func (s EffectiveSet) add(name string, src Source) {
	set, ok := s.grants[name]
	if !ok {
		set = make(map[Source]struct{})
		s.grants[name] = set
	}
	set[src] = struct{}{}
}

// Has reports whether the permission is effective.
func (s EffectiveSet) Has(name string) bool {
	_, ok := s.grants[name]
	return ok
}

// Len returns the number of effective permissions.
func (s EffectiveSet) Len() int {
	return len(s.grants)
}

// Names returns effective permission names in lexical order.
func (s EffectiveSet) Names() []string {
	names := make([]string, 0, len(s.grants))
	for name := range s.grants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sources returns the provenance tags for one permission, direct first,
// then role tags alphabetically, then legacy. Nil when not effective.
func (s EffectiveSet) Sources(name string) []Source {
	set, ok := s.grants[name]
	if !ok {
		return nil
	}
	sources := make([]Source, 0, len(set))
	for src := range set {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool {
		ri, rj := sourceRank(sources[i]), sourceRank(sources[j])
		if ri != rj {
			return ri < rj
		}
		return sources[i] < sources[j]
	})
	return sources
}

// SourceCounts summarizes provenance for the matrix payload: how many
// effective permissions carry a direct tag, a role tag, a legacy tag.
type SourceCounts struct {
	Direct    int `json:"direct"`
	FromRoles int `json:"from_roles"`
	Legacy    int `json:"legacy"`
}

// Counts tallies provenance across the set.
func (s EffectiveSet) Counts() SourceCounts {
	var counts SourceCounts
	for _, set := range s.grants {
		direct, role, legacyTag := false, false, false
		for src := range set {
			switch {
			case src == SourceDirect:
				direct = true
			case src.IsRole():
				role = true
			case src == SourceLegacy:
				legacyTag = true
			}
		}
		if direct {
			counts.Direct++
		}
		if role {
			counts.FromRoles++
		}
		if legacyTag {
			counts.Legacy++
		}
	}
	return counts
}

// CatalogIndex is an in-memory snapshot of the catalogs keyed for O(1)
// lookups during resolution. Build it once per request and share it across
// profiles; the matrix builder resolves every profile against one index.
type CatalogIndex struct {
	permsByID   map[int64]catalog.Permission
	permsByName map[string]catalog.Permission
	rolesByID   map[int64]catalog.Role
	ordered     []catalog.Permission
}

// NewCatalogIndex builds a lookup snapshot from catalog listings.
func NewCatalogIndex(perms []catalog.Permission, roles []catalog.Role) CatalogIndex {
	idx := CatalogIndex{
		permsByID:   make(map[int64]catalog.Permission, len(perms)),
		permsByName: make(map[string]catalog.Permission, len(perms)),
		rolesByID:   make(map[int64]catalog.Role, len(roles)),
		ordered:     append([]catalog.Permission(nil), perms...),
	}
	catalog.SortPermissions(idx.ordered)
	for _, p := range perms {
		idx.permsByID[p.ID] = p
		idx.permsByName[p.Name] = p
	}
	for _, r := range roles {
		idx.rolesByID[r.ID] = r
	}
	return idx
}

// Permission looks up a permission by ID.
func (idx CatalogIndex) Permission(id int64) (catalog.Permission, bool) {
	p, ok := idx.permsByID[id]
	return p, ok
}

// Role looks up a role by ID.
func (idx CatalogIndex) Role(id int64) (catalog.Role, bool) {
	r, ok := idx.rolesByID[id]
	return r, ok
}

// ActivePermissions returns active permissions in matrix column order.
func (idx CatalogIndex) ActivePermissions() []catalog.Permission {
	var out []catalog.Permission
	for _, p := range idx.ordered {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// Resolver computes effective sets. It is stateless; the legacy mapping is
// the only configuration it carries.
type Resolver struct {
	legacy *legacy.Mapping
}

// NewResolver constructs a Resolver with the given legacy table.
func NewResolver(mapping *legacy.Mapping) *Resolver {
	return &Resolver{legacy: mapping}
}

// Resolve computes the effective permission set for one profile against a
// catalog snapshot. Inactive permissions and roles are excluded; grant rows
// referencing IDs absent from the catalogs are skipped rather than treated
// as errors, so stale rows never poison resolution.
func (r *Resolver) Resolve(p profiles.Profile, idx CatalogIndex) EffectiveSet {
	set := newEffectiveSet()

	for _, permID := range p.DirectPermissionIDs {
		perm, ok := idx.Permission(permID)
		if !ok || !perm.Active {
			continue
		}
		set.add(perm.Name, SourceDirect)
	}

	for _, roleID := range p.RoleIDs {
		role, ok := idx.Role(roleID)
		if !ok || !role.Active {
			continue
		}
		src := RoleSource(role.Name)
		for _, perm := range role.Permissions {
			// Role rows carry their own copy of the permission; cross-check
			// the catalog so a deactivation is honored immediately.
			current, ok := idx.Permission(perm.ID)
			if !ok || !current.Active {
				continue
			}
			set.add(current.Name, src)
		}
	}

	for _, name := range r.legacy.Implied(p.LegacyTags) {
		if name == legacy.Wildcard {
			for _, perm := range idx.ActivePermissions() {
				set.add(perm.Name, SourceLegacy)
			}
			continue
		}
		perm, ok := idx.permsByName[name]
		if !ok || !perm.Active {
			continue
		}
		set.add(perm.Name, SourceLegacy)
	}

	return set
}
