package inmemdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core/academics"
	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/principal"
	"github.com/tatumdale/studystreaks/core/tenant"
)

type entityStore struct {
	db *DB
}

var _ tenant.Store = (*entityStore)(nil) // interface compliance check

func NewEntityStore(db *DB) tenant.Store {
	return &entityStore{db: db}
}

func (st *entityStore) Find(ctx context.Context, kind tenant.Kind, filter tenant.Filter) ([]tenant.Entity, error) {
	st.db.RLock()
	defer st.db.RUnlock()

	if kind == tenant.KindPrincipal {
		return st.findPrincipals(filter)
	}

	var found []tenant.Entity
	for _, e := range st.db.entities[kind] {
		ok, err := matches(e, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			clone, err := cloneEntity(kind, e)
			if err != nil {
				return nil, err
			}
			found = append(found, clone)
		}
	}
	return found, nil
}

func (st *entityStore) Get(ctx context.Context, kind tenant.Kind, id string) (tenant.Entity, error) {
	st.db.RLock()
	defer st.db.RUnlock()
	return st.get(kind, id)
}

func (st *entityStore) get(kind tenant.Kind, id string) (tenant.Entity, error) {
	if kind == tenant.KindPrincipal {
		if p, ok := st.db.principals[id]; ok {
			cp := *p
			return &cp, nil
		}
		return nil, tenant.ErrNotFound
	}
	if e, ok := st.db.entities[kind][id]; ok {
		return cloneEntity(kind, e)
	}
	return nil, tenant.ErrNotFound
}

func (st *entityStore) Create(ctx context.Context, kind tenant.Kind, entity tenant.Entity) (tenant.Entity, error) {
	st.db.Lock()
	defer st.db.Unlock()

	if kind == tenant.KindPrincipal {
		p, ok := entity.(*principal.Principal)
		if !ok {
			return nil, errors.New("inmemdb: principal entity expected")
		}
		cp := *p
		if cp.ID == "" {
			cp.ID = uuid.New().String()
		}
		st.db.principals[cp.ID] = &cp
		out := cp
		return &out, nil
	}

	clone, err := cloneEntity(kind, entity)
	if err != nil {
		return nil, err
	}
	if clone.GetID() == "" {
		clone.SetID(uuid.New().String())
	}
	st.db.entities[kind][clone.GetID()] = clone
	return cloneEntity(kind, clone)
}

func (st *entityStore) Update(ctx context.Context, kind tenant.Kind, entity tenant.Entity) (tenant.Entity, error) {
	st.db.Lock()
	defer st.db.Unlock()

	if _, ok := st.db.entities[kind][entity.GetID()]; !ok {
		return nil, tenant.ErrNotFound
	}
	clone, err := cloneEntity(kind, entity)
	if err != nil {
		return nil, err
	}
	st.db.entities[kind][clone.GetID()] = clone
	return cloneEntity(kind, clone)
}

func (st *entityStore) Delete(ctx context.Context, kind tenant.Kind, id string) error {
	st.db.Lock()
	defer st.db.Unlock()

	if _, ok := st.db.entities[kind][id]; !ok {
		return tenant.ErrNotFound
	}
	delete(st.db.entities[kind], id)
	return nil
}

func (st *entityStore) ResolveSchoolID(ctx context.Context, kind tenant.Kind, id string) (string, error) {
	st.db.RLock()
	defer st.db.RUnlock()

	e, err := st.get(kind, id)
	if err != nil {
		return "", err
	}
	return e.GetSchoolID(), nil
}

// WithTransaction runs fn against the same store; the in-memory double does
// not roll back, which is acceptable for the unit tests it serves.
func (st *entityStore) WithTransaction(ctx context.Context, fn func(tx tenant.Store) error) error {
	return fn(st)
}

func (st *entityStore) findPrincipals(filter tenant.Filter) ([]tenant.Entity, error) {
	var found []tenant.Entity
	for _, p := range st.db.principals {
		ok, err := matches(p, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			cp := *p
			found = append(found, &cp)
		}
	}
	return found, nil
}

// matches compares the filter against the entity's JSON representation, so
// filter keys line up with the wire/storage column names.
func matches(e tenant.Entity, filter tenant.Filter) (bool, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, err
	}
	for key, want := range filter {
		got, ok := fields[key]
		if !ok {
			return false, nil
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false, nil
		}
	}
	return true, nil
}

func cloneEntity(kind tenant.Kind, e tenant.Entity) (tenant.Entity, error) {
	target, ok := newEntity(kind)
	if !ok {
		return nil, errors.Errorf("inmemdb: no factory for kind %q", kind)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
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
