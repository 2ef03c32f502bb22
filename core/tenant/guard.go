package tenant

import (
	"context"
	"errors"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/audit"
)

var (
	// ErrNotFound is returned both for genuinely missing entities and for
	// entities owned by a foreign tenant, so a caller cannot distinguish
	// "exists elsewhere" from "does not exist".
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidTenant rejects malformed tenant identifiers before they
	// reach the store.
	ErrInvalidTenant = errors.New("invalid tenant identifier")

	// ErrCrossTenant aborts any operation that would relate data across
	// two different tenants. It is deterministic on the same input and
	// never silently corrected.
	ErrCrossTenant = errors.New("cross-tenant violation")

	// ErrUnknownKind rejects entity kinds outside the closed set.
	ErrUnknownKind = errors.New("unknown entity kind")
)

// Guard wraps a Store and enforces that every read and write is scoped to
// one school. It holds no tenant-scoped cache: a Guard lives for at most
// one request.
type Guard struct {
	store    Store
	schoolID string
	actorID  string
	aud      *audit.Emitter
	log      core.Logger
}

// NewGuard builds a request-scoped guard for the session's tenant.
// The schoolID is validated as an opaque identifier up front; everything
// else about it is treated as meaningless.
func NewGuard(store Store, schoolID, actorID string, aud *audit.Emitter, log core.Logger) (*Guard, error) {
	if !core.ValidTenantID(schoolID) {
		return nil, ErrInvalidTenant
	}
	return &Guard{
		store:    store,
		schoolID: schoolID,
		actorID:  actorID,
		aud:      aud,
		log:      log,
	}, nil
}

// SchoolID returns the tenant this guard is scoped to.
func (g *Guard) SchoolID() string { return g.schoolID }

// ScopedFind merges the session tenant into the filter. A caller-supplied
// school_id predicate is overridden silently: client-controlled tenant
// filters are never trusted.
func (g *Guard) ScopedFind(ctx context.Context, kind Kind, filter Filter) ([]Entity, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	scoped := make(Filter, len(filter)+1)
	for k, v := range filter {
		scoped[k] = v
	}
	scoped[FilterSchoolID] = g.schoolID
	return g.store.Find(ctx, kind, scoped)
}

// ScopedGet loads an entity and verifies it belongs to the session tenant.
func (g *Guard) ScopedGet(ctx context.Context, kind Kind, id string) (Entity, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	return g.checkedGet(ctx, g.store, kind, id, "get")
}

// ScopedCreate stamps the session tenant onto the entity and verifies that
// every foreign-key reference it holds resolves to the same tenant. The
// reference checks and the insert run in one transaction: a cross-tenant
// reference aborts the whole operation.
func (g *Guard) ScopedCreate(ctx context.Context, kind Kind, entity Entity) (Entity, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	entity.SetSchoolID(g.schoolID)

	var created Entity
	err := g.store.WithTransaction(ctx, func(tx Store) error {
		if err := g.checkRefs(ctx, tx, kind, entity); err != nil {
			return err
		}
		var err error
		created, err = tx.Create(ctx, kind, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ScopedUpdate verifies tenant ownership before applying the update.
// An entity owned by another tenant is reported as not found.
func (g *Guard) ScopedUpdate(ctx context.Context, kind Kind, entity Entity) (Entity, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	var updated Entity
	err := g.store.WithTransaction(ctx, func(tx Store) error {
		if _, err := g.checkedGet(ctx, tx, kind, entity.GetID(), "update"); err != nil {
			return err
		}
		entity.SetSchoolID(g.schoolID)
		if err := g.checkRefs(ctx, tx, kind, entity); err != nil {
			return err
		}
		var err error
		updated, err = tx.Update(ctx, kind, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ScopedDelete verifies tenant ownership before deleting. The deletion is
// audited under the session tenant.
func (g *Guard) ScopedDelete(ctx context.Context, kind Kind, id string) error {
	if !kind.Valid() {
		return ErrUnknownKind
	}
	err := g.store.WithTransaction(ctx, func(tx Store) error {
		if _, err := g.checkedGet(ctx, tx, kind, id, "delete"); err != nil {
			return err
		}
		return tx.Delete(ctx, kind, id)
	})
	if err != nil {
		return err
	}
	_ = g.aud.Record(ctx, audit.EventEntityDeleted, g.schoolID, g.actorID, map[string]interface{}{
		"kind": string(kind),
		"id":   id,
	})
	return nil
}

// checkedGet loads an entity via the given store handle and reports a
// foreign-tenant entity as ErrNotFound, auditing the attempt.
func (g *Guard) checkedGet(ctx context.Context, store Store, kind Kind, id, op string) (Entity, error) {
	entity, err := store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if entity.GetSchoolID() != g.schoolID {
		g.violation(ctx, op, kind, id, entity.GetSchoolID())
		return nil, ErrNotFound
	}
	return entity, nil
}

// checkRefs resolves every tenant reference the entity holds and fails the
// operation when any of them belongs to another school.
func (g *Guard) checkRefs(ctx context.Context, store Store, kind Kind, entity Entity) error {
	holder, ok := entity.(RefHolder)
	if !ok {
		return nil
	}
	for _, ref := range holder.TenantRefs() {
		if ref.ID == "" {
			continue
		}
		owner, err := store.ResolveSchoolID(ctx, ref.Kind, ref.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if owner != g.schoolID {
			g.violation(ctx, "ref", kind, ref.ID, owner)
			return ErrCrossTenant
		}
	}
	return nil
}

func (g *Guard) violation(ctx context.Context, op string, kind Kind, id, foreignSchoolID string) {
	g.log.Error("tenant violation", map[string]interface{}{
		"op":        op,
		"kind":      string(kind),
		"entity_id": id,
		"tenant":    g.schoolID,
		"actor":     g.actorID,
	})
	_ = g.aud.Record(ctx, audit.EventTenantViolation, g.schoolID, g.actorID, map[string]interface{}{
		"op":        op,
		"kind":      string(kind),
		"entity_id": id,
	})
}
