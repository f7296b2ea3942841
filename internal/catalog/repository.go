package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tavolo-app/tavolo/internal/platform/db"
	"github.com/tavolo-app/tavolo/internal/platform/httpx"
)

// Repository defines data access for the permission and role catalogs.
type Repository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListPermissionsByCategory(ctx context.Context, category string) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	SetPermissionActive(ctx context.Context, id int64, active bool) error

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, role Role, permissionIDs []int64) (Role, error)
	SetRoleActive(ctx context.Context, id int64, active bool) error
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const permissionColumns = `id, name, description, category, priority, active, created_at, updated_at`

// permissionOrder matches the matrix column ordering contract.
const permissionOrder = `ORDER BY category ASC, priority DESC, name ASC`

// ListPermissions returns the full permission catalog in display order.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions `+permissionOrder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ListPermissionsByCategory returns permissions for one category, priority
// descending then name ascending.
func (r *PGRepository) ListPermissionsByCategory(ctx context.Context, category string) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE category = $1 ORDER BY priority DESC, name ASC`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// GetPermission fetches a permission by ID.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Priority, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("catalog: permission %d: %w", id, httpx.ErrNotFound)
		}
		return Permission{}, err
	}
	return p, nil
}

// CreatePermission inserts a new permission. Name collisions surface as
// ErrDuplicateName regardless of the existing row's active flag.
func (r *PGRepository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description, category, priority, active)
		 VALUES ($1, $2, $3, $4, TRUE)
		 RETURNING `+permissionColumns,
		perm.Name, perm.Description, perm.Category, perm.Priority).
		Scan(&perm.ID, &perm.Name, &perm.Description, &perm.Category, &perm.Priority, &perm.Active, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Permission{}, fmt.Errorf("catalog: permission %q: %w", perm.Name, httpx.ErrDuplicateName)
		}
		return Permission{}, err
	}
	return perm, nil
}

// SetPermissionActive toggles the soft-disable flag. Setting an already
// matching flag is not an error.
func (r *PGRepository) SetPermissionActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE permissions SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: permission %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

// ListRoles returns all roles with their permission sets attached.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, priority, active, created_at, updated_at
		 FROM roles ORDER BY priority DESC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	byID := make(map[int64]int)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Priority, &role.Active, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		byID[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	permRows, err := r.pool.Query(ctx,
		`SELECT rp.role_id, p.id, p.name, p.description, p.category, p.priority, p.active, p.created_at, p.updated_at
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 ORDER BY p.category ASC, p.priority DESC, p.name ASC`)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID int64
		var p Permission
		if err := permRows.Scan(&roleID, &p.ID, &p.Name, &p.Description, &p.Category, &p.Priority, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if idx, ok := byID[roleID]; ok {
			roles[idx].Permissions = append(roles[idx].Permissions, p)
		}
	}
	if err := permRows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches a role with its permission set.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, priority, active, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.Priority, &role.Active, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("catalog: role %d: %w", id, httpx.ErrNotFound)
		}
		return Role{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT p.`+permissionColumns+`
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = $1
		 ORDER BY p.category ASC, p.priority DESC, p.name ASC`, id)
	if err != nil {
		return Role{}, err
	}
	defer rows.Close()
	role.Permissions, err = scanPermissions(rows)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role and attaches its initial permission set in
// one transaction; a failed attach rolls back the role row.
func (r *PGRepository) CreateRole(ctx context.Context, role Role, permissionIDs []int64) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO roles (name, description, priority, active)
			 VALUES ($1, $2, $3, TRUE)
			 RETURNING id, name, description, priority, active, created_at, updated_at`,
			role.Name, role.Description, role.Priority).
			Scan(&role.ID, &role.Name, &role.Description, &role.Priority, &role.Active, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return err
		}
		for _, id := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				role.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("catalog: role %q: %w", role.Name, httpx.ErrDuplicateName)
		}
		if isForeignKeyViolation(err) {
			return Role{}, fmt.Errorf("catalog: role %q references a missing permission: %w", role.Name, httpx.ErrNotFound)
		}
		return Role{}, err
	}
	if len(permissionIDs) > 0 {
		return r.GetRole(ctx, role.ID)
	}
	return role, nil
}

// SetRoleActive toggles the soft-disable flag on a role.
func (r *PGRepository) SetRoleActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: role %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

// SetRolePermissions replaces the permission set of a role by diffing the
// current assignments against the requested set. The diff runs in one
// transaction so the role never exposes a partially replaced set.
func (r *PGRepository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
		if err != nil {
			return err
		}
		defer rows.Close()
		existing := make(map[int64]struct{})
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			existing[id] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		keep := make(map[int64]struct{}, len(permissionIDs))
		for _, id := range permissionIDs {
			keep[id] = struct{}{}
			if _, ok := existing[id]; !ok {
				if _, err := tx.Exec(ctx,
					`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
					roleID, id); err != nil {
					return err
				}
			}
		}
		for id := range existing {
			if _, ok := keep[id]; !ok {
				if _, err := tx.Exec(ctx,
					`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if isForeignKeyViolation(err) {
		return fmt.Errorf("catalog: role %d references a missing permission: %w", roleID, httpx.ErrNotFound)
	}
	return err
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Priority, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
