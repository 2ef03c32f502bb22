package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/principal"
)

const principalColumns = "id, school_id, email, password_hash, is_active, login_attempts, locked_until, last_login_at, created_at, updated_at"

const pqUniqueViolation = "23505"

type principalRepository struct {
	db *sqlx.DB
}

var _ principal.Repository = (*principalRepository)(nil) // interface compliance check

func NewPrincipalRepository(db *sqlx.DB) principal.Repository {
	return &principalRepository{db: db}
}

func (repo *principalRepository) CheckEmailUniqueness(ctx context.Context, email string, excluded ...principal.Principal) error {
	query := "SELECT count(*) FROM principals WHERE email = $1"
	args := []interface{}{email}
	if len(excluded) > 0 {
		ids := make([]string, len(excluded))
		for i, p := range excluded {
			ids[i] = p.ID
		}
		query += " AND id != ALL($2)"
		args = append(args, pq.StringArray(ids))
	}

	var count int
	if err := repo.db.QueryRowxContext(ctx, query, args...).Scan(&count); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return principal.ErrEmailExists
	}
	return nil
}

func (repo *principalRepository) CreatePrincipal(ctx context.Context, p principal.Principal) (principal.Principal, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	err := repo.db.QueryRowxContext(ctx,
		"INSERT INTO principals ("+principalColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING "+principalColumns,
		p.ID, p.SchoolID, p.Email, p.PasswordHash, p.IsActive,
		p.LoginAttempts, p.LockedUntil, p.LastLoginAt, p.CreatedAt, p.UpdatedAt,
	).Scan(principalFields(&p)...)
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return principal.Principal{}, principal.ErrEmailExists
	}
	if err != nil {
		return principal.Principal{}, errors.Wrap(err, "inserting principal")
	}
	return p, nil
}

func (repo *principalRepository) GetPrincipalByID(ctx context.Context, id string) (principal.Principal, error) {
	return getPrincipal(ctx, repo.db, "id", id)
}

func (repo *principalRepository) GetPrincipalByEmail(ctx context.Context, email string) (principal.Principal, error) {
	return getPrincipal(ctx, repo.db, "email", email)
}

func (repo *principalRepository) UpdatePrincipal(ctx context.Context, p principal.Principal, isActive *bool) (principal.Principal, error) {
	// only save set fields; school_id is immutable
	err := repo.db.QueryRowxContext(ctx,
		`UPDATE principals SET
			email = COALESCE(NULLIF($2, ''), email),
			password_hash = COALESCE($3, password_hash),
			is_active = COALESCE($4, is_active),
			updated_at = $5
		WHERE id = $1 RETURNING `+principalColumns,
		p.ID, p.Email, p.PasswordHash, boolPtr(isActive), p.UpdatedAt,
	).Scan(principalFields(&p)...)
	if err == sql.ErrNoRows {
		return principal.Principal{}, principal.ErrNotFound
	}
	if err != nil {
		return principal.Principal{}, errors.Wrap(err, "updating principal")
	}
	return p, nil
}

// RegisterFailedLogin increments in a single guarded UPDATE so two concurrent
// failures cannot both observe the same attempt count. While a lockout window
// is active the row is left untouched.
func (repo *principalRepository) RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockout time.Duration) (principal.Principal, error) {
	now := time.Now().UTC()
	var p principal.Principal
	err := repo.db.QueryRowxContext(ctx,
		`UPDATE principals SET
			login_attempts = login_attempts + 1,
			locked_until = CASE WHEN login_attempts + 1 >= $2 THEN $3 ELSE locked_until END
		WHERE id = $1 AND (locked_until IS NULL OR locked_until < $4)
		RETURNING `+principalColumns,
		id, maxAttempts, now.Add(lockout), now,
	).Scan(principalFields(&p)...)
	if err == sql.ErrNoRows {
		// already locked, or gone; re-fetch to tell the two apart
		return getPrincipal(ctx, repo.db, "id", id)
	}
	if err != nil {
		return principal.Principal{}, errors.Wrap(err, "registering failed login")
	}
	return p, nil
}

func (repo *principalRepository) ResetLoginState(ctx context.Context, id string, loginAt time.Time) (principal.Principal, error) {
	var lastLogin null.Time
	if !loginAt.IsZero() {
		lastLogin = null.TimeFrom(loginAt.UTC())
	}

	var p principal.Principal
	err := repo.db.QueryRowxContext(ctx,
		`UPDATE principals SET
			login_attempts = 0,
			locked_until = NULL,
			last_login_at = COALESCE($2, last_login_at)
		WHERE id = $1 RETURNING `+principalColumns,
		id, lastLogin,
	).Scan(principalFields(&p)...)
	if err == sql.ErrNoRows {
		return principal.Principal{}, principal.ErrNotFound
	}
	if err != nil {
		return principal.Principal{}, errors.Wrap(err, "resetting login state")
	}
	return p, nil
}

func (repo *principalRepository) GetProfiles(ctx context.Context, principalID string) ([]principal.Profile, error) {
	rows, err := repo.db.QueryxContext(ctx,
		"SELECT id, principal_id, school_id, type, display_name FROM profiles WHERE principal_id = $1",
		principalID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}
	defer func() { _ = rows.Close() }()

	var profiles []principal.Profile
	for rows.Next() {
		var prof principal.Profile
		if err = rows.Scan(&prof.ID, &prof.PrincipalID, &prof.SchoolID, &prof.Type, &prof.DisplayName); err != nil {
			return nil, errors.Wrap(err, "scanning profile")
		}
		profiles = append(profiles, prof)
	}
	return profiles, rows.Err()
}

func (repo *principalRepository) CreateProfile(ctx context.Context, prof principal.Profile) (principal.Profile, error) {
	if prof.ID == "" {
		prof.ID = uuid.New().String()
	}
	_, err := repo.db.ExecContext(ctx,
		"INSERT INTO profiles (id, principal_id, school_id, type, display_name) VALUES ($1, $2, $3, $4, $5)",
		prof.ID, prof.PrincipalID, prof.SchoolID, prof.Type, prof.DisplayName,
	)
	if err != nil {
		return principal.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return prof, nil
}

func (repo *principalRepository) GetGrants(ctx context.Context, principalID string) ([]authz.Grant, error) {
	rows, err := repo.db.QueryxContext(ctx,
		`SELECT ur.id, ur.school_id, ur.class_ids, ur.year_groups, ur.subjects, ur.student_ids, ur.expires_at,
			r.id, COALESCE(r.school_id, ''), r.name, r.scope, r.priority
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.principal_id = $1`,
		principalID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying grants")
	}
	defer func() { _ = rows.Close() }()

	var grants []authz.Grant
	for rows.Next() {
		var g authz.Grant
		var classIDs, yearGroups, subjects, studentIDs pq.StringArray
		err = rows.Scan(
			&g.ID, &g.SchoolID, &classIDs, &yearGroups, &subjects, &studentIDs, &g.ExpiresAt,
			&g.Role.ID, &g.Role.SchoolID, &g.Role.Name, &g.Role.Scope, &g.Role.Priority,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scanning grant")
		}
		g.ClassIDs, g.YearGroups, g.Subjects, g.StudentIDs = classIDs, yearGroups, subjects, studentIDs
		if g.Permissions, err = repo.getRolePermissions(ctx, g.Role.ID); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (repo *principalRepository) getRolePermissions(ctx context.Context, roleID string) ([]authz.Permission, error) {
	rows, err := repo.db.QueryxContext(ctx,
		`SELECT p.id, p.resource, p.action, p.scope, p.risk_level
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1`,
		roleID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying role permissions")
	}
	defer func() { _ = rows.Close() }()

	var perms []authz.Permission
	for rows.Next() {
		var perm authz.Permission
		if err = rows.Scan(&perm.ID, &perm.Resource, &perm.Action, &perm.Scope, &perm.RiskLevel); err != nil {
			return nil, errors.Wrap(err, "scanning permission")
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func (repo *principalRepository) AddGrant(ctx context.Context, principalID string, grant authz.Grant) (authz.Grant, error) {
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO user_roles (id, principal_id, school_id, role_id, class_ids, year_groups, subjects, student_ids, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		grant.ID, principalID, grant.SchoolID, grant.Role.ID,
		pq.StringArray(grant.ClassIDs), pq.StringArray(grant.YearGroups),
		pq.StringArray(grant.Subjects), pq.StringArray(grant.StudentIDs),
		grant.ExpiresAt,
	)
	if err != nil {
		return authz.Grant{}, errors.Wrap(err, "inserting grant")
	}
	return grant, nil
}

func (repo *principalRepository) RemoveGrant(ctx context.Context, principalID, grantID string) error {
	res, err := repo.db.ExecContext(ctx,
		"DELETE FROM user_roles WHERE id = $1 AND principal_id = $2", grantID, principalID,
	)
	if err != nil {
		return errors.Wrap(err, "deleting grant")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return principal.ErrNotFound
	}
	return nil
}

func getPrincipal(ctx context.Context, q sqlx.QueryerContext, column, val string) (principal.Principal, error) {
	var p principal.Principal
	err := q.QueryRowxContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE "+column+" = $1", val,
	).Scan(principalFields(&p)...)
	if err == sql.ErrNoRows {
		return principal.Principal{}, principal.ErrNotFound
	}
	if err != nil {
		return principal.Principal{}, errors.Wrap(err, "getting principal")
	}
	return p, nil
}

func scanPrincipal(rows *sqlx.Rows) (principal.Principal, error) {
	var p principal.Principal
	if err := rows.Scan(principalFields(&p)...); err != nil {
		return principal.Principal{}, errors.Wrap(err, "scanning principal")
	}
	return p, nil
}

func principalFields(p *principal.Principal) []interface{} {
	return []interface{}{
		&p.ID, &p.SchoolID, &p.Email, &p.PasswordHash, &p.IsActive,
		&p.LoginAttempts, &p.LockedUntil, &p.LastLoginAt, &p.CreatedAt, &p.UpdatedAt,
	}
}

func boolPtr(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
