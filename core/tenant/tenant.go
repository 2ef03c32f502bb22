package tenant

import "context"

// Kind tags every entity type the scope guard knows about. The set is
// closed on purpose: a newly added entity must be registered here (and in
// the store) before it can be queried at all, so it can never be left
// unscoped by accident.
type Kind string

const (
	KindPrincipal          Kind = "principal"
	KindStudent            Kind = "student"
	KindTeacher            Kind = "teacher"
	KindParent             Kind = "parent"
	KindSchoolAdmin        Kind = "school_admin"
	KindClass              Kind = "class"
	KindClub               Kind = "club"
	KindHomeworkCompletion Kind = "homework_completion"
	KindRole               Kind = "role"
	KindUserRole           Kind = "user_role"
)

var AllKinds = []Kind{
	KindPrincipal,
	KindStudent,
	KindTeacher,
	KindParent,
	KindSchoolAdmin,
	KindClass,
	KindClub,
	KindHomeworkCompletion,
	KindRole,
	KindUserRole,
}

func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Entity is any record owned by a school. SchoolID is immutable once the
// entity is created; SetSchoolID exists so the guard can stamp the session
// tenant before insert.
type Entity interface {
	GetID() string
	SetID(id string)
	GetSchoolID() string
	SetSchoolID(id string)
}

// Ref is a foreign-key reference held by an entity.
type Ref struct {
	Kind Kind
	ID   string
}

// RefHolder is implemented by entities that reference other entities, so
// the guard can verify every reference stays inside the session tenant.
type RefHolder interface {
	TenantRefs() []Ref
}

// Filter is a conjunction of column predicates applied by the store.
// The "school_id" key is reserved: the guard always overrides it.
type Filter map[string]interface{}

// FilterSchoolID is the reserved Filter key carrying the tenant predicate.
const FilterSchoolID = "school_id"

// Store is the generic entity store the guard decorates. Implementations
// define storage semantics (including NotFound/constraint errors); the
// guard only adds tenant scoping on top.
type Store interface {
	Find(ctx context.Context, kind Kind, filter Filter) ([]Entity, error)
	Get(ctx context.Context, kind Kind, id string) (Entity, error)
	Create(ctx context.Context, kind Kind, entity Entity) (Entity, error)
	Update(ctx context.Context, kind Kind, entity Entity) (Entity, error)
	Delete(ctx context.Context, kind Kind, id string) error

	// ResolveSchoolID returns the owning tenant of an entity without
	// loading it. Returns ErrNotFound for unknown ids.
	ResolveSchoolID(ctx context.Context, kind Kind, id string) (string, error)

	// WithTransaction runs fn against a store bound to a single
	// transaction; any error aborts the whole transaction.
	WithTransaction(ctx context.Context, fn func(tx Store) error) error
}
