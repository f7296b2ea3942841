package profiles

import "time"

// Kind distinguishes the two profile owner types. Both kinds share the same
// grant shape; a user holds at most one profile per kind.
type Kind string

const (
	// KindAdmin is the administrative back-office profile.
	KindAdmin Kind = "admin"
	// KindKitchen is the kitchen-staff profile.
	KindKitchen Kind = "kitchen"
)

// Valid reports whether the kind is one of the known profile kinds.
func (k Kind) Valid() bool {
	return k == KindAdmin || k == KindKitchen
}

// Profile is the authorization-bearing record attached to a user. Direct
// permission grants and role memberships are independent sets: revoking a
// role never removes an identically-named direct grant, and vice versa.
// Grant rows reference catalog IDs; resolution joins them against the
// catalogs and tolerates orphaned rows.
type Profile struct {
	ID       int64
	UserID   int64
	UserName string
	Kind     Kind

	// LegacyTags are coarse account-level role strings carried on the user
	// record for backward compatibility, mapped to implied permissions via
	// the static legacy table.
	LegacyTags []string

	DirectPermissionIDs []int64
	RoleIDs             []int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRole reports direct role membership, the check backing the
// role-oriented matrix.
func (p Profile) HasRole(roleID int64) bool {
	for _, id := range p.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}
