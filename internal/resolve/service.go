package resolve

import (
	"context"

	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/profiles"
)

// ProfileStore is the slice of the grant store the resolver needs.
type ProfileStore interface {
	Get(ctx context.Context, id int64) (profiles.Profile, error)
}

// CatalogStore exposes catalog listings for snapshotting.
type CatalogStore interface {
	ListPermissions(ctx context.Context) ([]catalog.Permission, error)
	ListRoles(ctx context.Context) ([]catalog.Role, error)
}

// GrantDetail is one effective permission with its provenance, the payload
// behind the "why does this user have X" audit view.
type GrantDetail struct {
	Name    string   `json:"name"`
	Sources []Source `json:"sources"`
}

// ProfileGrants is the resolved view of one profile.
type ProfileGrants struct {
	ProfileID   int64         `json:"profile_id"`
	UserID      int64         `json:"user_id"`
	UserName    string        `json:"user_name"`
	Kind        profiles.Kind `json:"kind"`
	Permissions []GrantDetail `json:"permissions"`
	Counts      SourceCounts  `json:"permission_sources"`
}

// Service loads profiles and catalogs, resolves effective sets, and serves
// them through the read cache. The read path takes no locks; it is a pure
// read over catalogs and grant rows.
type Service struct {
	profiles ProfileStore
	catalogs CatalogStore
	resolver *Resolver
	cache    *Cache
}

// NewService builds Service instance. cache may be nil.
func NewService(profileStore ProfileStore, catalogStore CatalogStore, resolver *Resolver, cache *Cache) *Service {
	return &Service{profiles: profileStore, catalogs: catalogStore, resolver: resolver, cache: cache}
}

// Snapshot loads the catalogs into a lookup index.
func (s *Service) Snapshot(ctx context.Context) (CatalogIndex, error) {
	perms, err := s.catalogs.ListPermissions(ctx)
	if err != nil {
		return CatalogIndex{}, err
	}
	roles, err := s.catalogs.ListRoles(ctx)
	if err != nil {
		return CatalogIndex{}, err
	}
	return NewCatalogIndex(perms, roles), nil
}

// EffectiveGrants returns the resolved grants for one profile, served from
// the read-through cache when available.
func (s *Service) EffectiveGrants(ctx context.Context, profileID int64) (ProfileGrants, error) {
	key, err := s.cache.ProfileKey(ctx, profileID)
	if err != nil {
		return ProfileGrants{}, err
	}
	var grants ProfileGrants
	err = s.cache.FetchJSON(ctx, key, &grants, func(ctx context.Context) (interface{}, error) {
		return s.loadGrants(ctx, profileID)
	})
	if err != nil {
		return ProfileGrants{}, err
	}
	return grants, nil
}

// HasPermission checks a single permission for a profile. Callers checking
// many permissions should use EffectiveGrants or Resolve once instead.
func (s *Service) HasPermission(ctx context.Context, profileID int64, name string) (bool, error) {
	grants, err := s.EffectiveGrants(ctx, profileID)
	if err != nil {
		return false, err
	}
	for _, g := range grants.Permissions {
		if g.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) loadGrants(ctx context.Context, profileID int64) (ProfileGrants, error) {
	profile, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		return ProfileGrants{}, err
	}
	idx, err := s.Snapshot(ctx)
	if err != nil {
		return ProfileGrants{}, err
	}
	set := s.resolver.Resolve(profile, idx)

	details := make([]GrantDetail, 0, set.Len())
	for _, name := range set.Names() {
		details = append(details, GrantDetail{Name: name, Sources: set.Sources(name)})
	}
	return ProfileGrants{
		ProfileID:   profile.ID,
		UserID:      profile.UserID,
		UserName:    profile.UserName,
		Kind:        profile.Kind,
		Permissions: details,
		Counts:      set.Counts(),
	}, nil
}
