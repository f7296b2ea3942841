package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tavolo-app/tavolo/internal/platform/httpx"
)

// Repository defines data access for the profile grant store. Each grant
// mutation is a single-row set upsert or delete executed in its own implicit
// transaction, so concurrent edits to different permissions on the same
// profile do not clobber each other.
type Repository interface {
	List(ctx context.Context, kind Kind) ([]Profile, error)
	Get(ctx context.Context, id int64) (Profile, error)
	AddPermission(ctx context.Context, profileID, permissionID int64) error
	RemovePermission(ctx context.Context, profileID, permissionID int64) error
	AddRole(ctx context.Context, profileID, roleID int64) error
	RemoveRole(ctx context.Context, profileID, roleID int64) error
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// List returns profiles with grant rows and legacy tags attached. Kind ""
// selects all profile kinds.
func (r *PGRepository) List(ctx context.Context, kind Kind) ([]Profile, error) {
	query := `SELECT pr.id, pr.user_id, u.name, pr.kind, u.legacy_role_tags, pr.created_at, pr.updated_at
		 FROM profiles pr
		 JOIN users u ON u.id = pr.user_id`
	args := []any{}
	if kind != "" {
		query += ` WHERE pr.kind = $1`
		args = append(args, string(kind))
	}
	query += ` ORDER BY u.name ASC, pr.id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Profile
	byID := make(map[int64]int)
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.UserID, &p.UserName, &p.Kind, &p.LegacyTags, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		byID[p.ID] = len(result)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachGrants(ctx, result, byID); err != nil {
		return nil, err
	}
	return result, nil
}

// Get fetches a single profile with its grant rows.
func (r *PGRepository) Get(ctx context.Context, id int64) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`SELECT pr.id, pr.user_id, u.name, pr.kind, u.legacy_role_tags, pr.created_at, pr.updated_at
		 FROM profiles pr
		 JOIN users u ON u.id = pr.user_id
		 WHERE pr.id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.UserName, &p.Kind, &p.LegacyTags, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("profiles: profile %d: %w", id, httpx.ErrNotFound)
		}
		return Profile{}, err
	}
	profileSlice := []Profile{p}
	if err := r.attachGrants(ctx, profileSlice, map[int64]int{p.ID: 0}); err != nil {
		return Profile{}, err
	}
	return profileSlice[0], nil
}

// AddPermission grants a permission directly. Granting an already held
// permission is a no-op success, which keeps bulk batches retry-safe.
func (r *PGRepository) AddPermission(ctx context.Context, profileID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profile_permissions (profile_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		profileID, permissionID)
	return err
}

// RemovePermission revokes a direct grant. Removing an absent grant is a
// no-op success.
func (r *PGRepository) RemovePermission(ctx context.Context, profileID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM profile_permissions WHERE profile_id = $1 AND permission_id = $2`,
		profileID, permissionID)
	return err
}

// AddRole attaches a role membership.
func (r *PGRepository) AddRole(ctx context.Context, profileID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profile_roles (profile_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		profileID, roleID)
	return err
}

// RemoveRole detaches a role membership.
func (r *PGRepository) RemoveRole(ctx context.Context, profileID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM profile_roles WHERE profile_id = $1 AND role_id = $2`,
		profileID, roleID)
	return err
}

func (r *PGRepository) attachGrants(ctx context.Context, profiles []Profile, byID map[int64]int) error {
	if len(profiles) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	permRows, err := r.pool.Query(ctx,
		`SELECT profile_id, permission_id FROM profile_permissions WHERE profile_id = ANY($1) ORDER BY permission_id`, ids)
	if err != nil {
		return err
	}
	defer permRows.Close()
	for permRows.Next() {
		var profileID, permissionID int64
		if err := permRows.Scan(&profileID, &permissionID); err != nil {
			return err
		}
		if idx, ok := byID[profileID]; ok {
			profiles[idx].DirectPermissionIDs = append(profiles[idx].DirectPermissionIDs, permissionID)
		}
	}
	if err := permRows.Err(); err != nil {
		return err
	}

	roleRows, err := r.pool.Query(ctx,
		`SELECT profile_id, role_id FROM profile_roles WHERE profile_id = ANY($1) ORDER BY role_id`, ids)
	if err != nil {
		return err
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var profileID, roleID int64
		if err := roleRows.Scan(&profileID, &roleID); err != nil {
			return err
		}
		if idx, ok := byID[profileID]; ok {
			profiles[idx].RoleIDs = append(profiles[idx].RoleIDs, roleID)
		}
	}
	return roleRows.Err()
}
