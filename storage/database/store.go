package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core/academics"
	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/principal"
	"github.com/tatumdale/studystreaks/core/tenant"
)

// entityStore persists generic scoped entities in a single jsonb-backed
// table, keyed by (kind, id). Principals live in their own table and are
// routed there transparently.
type entityStore struct {
	db  *sqlx.DB
	ext sqlx.ExtContext // db, or the bound transaction
}

var _ tenant.Store = (*entityStore)(nil) // interface compliance check

func NewEntityStore(db *sqlx.DB) tenant.Store {
	return &entityStore{db: db, ext: db}
}

// filterKeyRx keeps jsonb filter keys to plain identifiers so they can be
// spliced into `data->>'key'` safely.
var filterKeyRx = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func (st *entityStore) Find(ctx context.Context, kind tenant.Kind, filter tenant.Filter) ([]tenant.Entity, error) {
	if kind == tenant.KindPrincipal {
		return st.findPrincipals(ctx, filter)
	}

	query := "SELECT data FROM entities WHERE kind = $1"
	args := []interface{}{string(kind)}
	for key, val := range filter {
		if key == tenant.FilterSchoolID {
			args = append(args, val)
			query += fmt.Sprintf(" AND school_id = $%d", len(args))
			continue
		}
		if !filterKeyRx.MatchString(key) {
			return nil, errors.Errorf("database: invalid filter key %q", key)
		}
		args = append(args, fmt.Sprint(val))
		query += fmt.Sprintf(" AND data->>'%s' = $%d", key, len(args))
	}

	rows, err := st.ext.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying entities")
	}
	defer func() { _ = rows.Close() }()

	var found []tenant.Entity
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scanning entity")
		}
		e, err := unmarshalEntity(kind, raw)
		if err != nil {
			return nil, err
		}
		found = append(found, e)
	}
	return found, rows.Err()
}

func (st *entityStore) Get(ctx context.Context, kind tenant.Kind, id string) (tenant.Entity, error) {
	if kind == tenant.KindPrincipal {
		p, err := getPrincipal(ctx, st.ext, "id", id)
		if err != nil {
			if errors.Cause(err) == principal.ErrNotFound {
				return nil, tenant.ErrNotFound
			}
			return nil, err
		}
		return &p, nil
	}

	var raw []byte
	err := st.ext.QueryRowxContext(ctx,
		"SELECT data FROM entities WHERE kind = $1 AND id = $2", string(kind), id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "getting entity")
	}
	return unmarshalEntity(kind, raw)
}

func (st *entityStore) Create(ctx context.Context, kind tenant.Kind, entity tenant.Entity) (tenant.Entity, error) {
	if kind == tenant.KindPrincipal {
		return nil, errors.New("database: principals are created through their repository")
	}

	if entity.GetID() == "" {
		entity.SetID(uuid.New().String())
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, errors.Wrap(err, "encoding entity")
	}
	_, err = st.ext.ExecContext(ctx,
		"INSERT INTO entities (id, kind, school_id, data) VALUES ($1, $2, $3, $4)",
		entity.GetID(), string(kind), entity.GetSchoolID(), raw,
	)
	if err != nil {
		return nil, errors.Wrap(err, "inserting entity")
	}
	return unmarshalEntity(kind, raw)
}

func (st *entityStore) Update(ctx context.Context, kind tenant.Kind, entity tenant.Entity) (tenant.Entity, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, errors.Wrap(err, "encoding entity")
	}
	res, err := st.ext.ExecContext(ctx,
		"UPDATE entities SET school_id = $3, data = $4 WHERE kind = $1 AND id = $2",
		string(kind), entity.GetID(), entity.GetSchoolID(), raw,
	)
	if err != nil {
		return nil, errors.Wrap(err, "updating entity")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, tenant.ErrNotFound
	}
	return unmarshalEntity(kind, raw)
}

func (st *entityStore) Delete(ctx context.Context, kind tenant.Kind, id string) error {
	res, err := st.ext.ExecContext(ctx,
		"DELETE FROM entities WHERE kind = $1 AND id = $2", string(kind), id,
	)
	if err != nil {
		return errors.Wrap(err, "deleting entity")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (st *entityStore) ResolveSchoolID(ctx context.Context, kind tenant.Kind, id string) (string, error) {
	query := "SELECT school_id FROM entities WHERE kind = $1 AND id = $2"
	args := []interface{}{string(kind), id}
	if kind == tenant.KindPrincipal {
		query = "SELECT school_id FROM principals WHERE id = $1"
		args = []interface{}{id}
	}

	var schoolID string
	err := st.ext.QueryRowxContext(ctx, query, args...).Scan(&schoolID)
	if err == sql.ErrNoRows {
		return "", tenant.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "resolving entity tenant")
	}
	return schoolID, nil
}

func (st *entityStore) WithTransaction(ctx context.Context, fn func(tx tenant.Store) error) error {
	if _, ok := st.ext.(*sqlx.Tx); ok {
		return fn(st) // already inside a transaction
	}

	tx, err := st.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(&entityStore{db: st.db, ext: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (st *entityStore) findPrincipals(ctx context.Context, filter tenant.Filter) ([]tenant.Entity, error) {
	query := "SELECT " + principalColumns + " FROM principals WHERE true"
	args := make([]interface{}, 0, len(filter))
	for key, val := range filter {
		switch key {
		case "id", tenant.FilterSchoolID, "email", "is_active":
			args = append(args, val)
			query += fmt.Sprintf(" AND %s = $%d", key, len(args))
		default:
			return nil, errors.Errorf("database: invalid principal filter key %q", key)
		}
	}

	rows, err := st.ext.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying principals")
	}
	defer func() { _ = rows.Close() }()

	var found []tenant.Entity
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, &p)
	}
	return found, rows.Err()
}

func unmarshalEntity(kind tenant.Kind, raw []byte) (tenant.Entity, error) {
	e, ok := newEntity(kind)
	if !ok {
		return nil, errors.Errorf("database: no factory for kind %q", kind)
	}
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, errors.Wrap(err, "decoding entity")
	}
	return e, nil
}

func newEntity(kind tenant.Kind) (tenant.Entity, bool) {
	switch kind {
	case tenant.KindRole:
		return &authz.Role{}, true
	case tenant.KindUserRole:
		return &authz.Grant{}, true
	}
	return academics.New(kind)
}
