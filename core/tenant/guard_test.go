package tenant_test

import (
	"context"
	"testing"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/academics"
	"github.com/tatumdale/studystreaks/core/audit"
	"github.com/tatumdale/studystreaks/core/tenant"
	inmemdb "github.com/tatumdale/studystreaks/storage/database/inmem"
	testutil "github.com/tatumdale/studystreaks/tests"
)

type fixture struct {
	store tenant.Store
	sink  *inmemdb.AuditSink
	log   *testutil.Logger
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	return &fixture{
		store: inmemdb.NewEntityStore(db),
		sink:  inmemdb.NewAuditSink(db),
		log:   &testutil.Logger{},
	}
}

func (f *fixture) guard(t *testing.T, schoolID string) *tenant.Guard {
	t.Helper()
	aud := audit.NewEmitter(f.sink, f.log, core.NewTestConfig())
	g, err := tenant.NewGuard(f.store, schoolID, "actor-"+schoolID, aud, f.log)
	if err != nil {
		t.Fatalf("NewGuard() failed: %v", err)
	}
	return g
}

func (f *fixture) hasAuditEvent(event string) bool {
	for _, e := range f.sink.Entries() {
		if e.Event == event {
			return true
		}
	}
	return false
}

func Test_NewGuard_rejectsInvalidTenant(t *testing.T) {
	f := setup(t)
	aud := audit.NewEmitter(f.sink, f.log, core.NewTestConfig())

	for _, id := range []string{"", "  ", "sch one", "sch;drop", "-leading", "🏫"} {
		if _, err := tenant.NewGuard(f.store, id, "a1", aud, f.log); err != tenant.ErrInvalidTenant {
			t.Errorf("NewGuard(%q) = %v; want ErrInvalidTenant", id, err)
		}
	}
}

func Test_Guard_ScopedFind_overridesTenantFilter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreateEntity(t, f.store, tenant.KindStudent, &academics.Student{SchoolID: "sch1", FirstName: "Amara"})
	testutil.CreateEntity(t, f.store, tenant.KindStudent, &academics.Student{SchoolID: "sch1", FirstName: "Ben"})
	testutil.CreateEntity(t, f.store, tenant.KindStudent, &academics.Student{SchoolID: "sch2", FirstName: "Chidi"})

	g1 := f.guard(t, "sch1")

	students, err := g1.ScopedFind(ctx, tenant.KindStudent, nil)
	if err != nil {
		t.Fatalf("ScopedFind() failed: %v", err)
	}
	if len(students) != 2 {
		t.Errorf("ScopedFind() returned %d entities; want 2", len(students))
	}

	// a caller-supplied tenant predicate is silently overridden
	students, err = g1.ScopedFind(ctx, tenant.KindStudent, tenant.Filter{tenant.FilterSchoolID: "sch2"})
	if err != nil {
		t.Fatalf("ScopedFind() failed: %v", err)
	}
	for _, s := range students {
		if s.GetSchoolID() != "sch1" {
			t.Errorf("ScopedFind() leaked entity of tenant %q", s.GetSchoolID())
		}
	}
	if len(students) != 2 {
		t.Errorf("ScopedFind() returned %d entities; want 2", len(students))
	}

	// other predicates still apply
	students, err = g1.ScopedFind(ctx, tenant.KindStudent, tenant.Filter{"first_name": "Ben"})
	if err != nil {
		t.Fatalf("ScopedFind() failed: %v", err)
	}
	if len(students) != 1 {
		t.Errorf("ScopedFind() returned %d entities; want 1", len(students))
	}
}

func Test_Guard_ScopedGet_hidesForeignTenant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	mine := testutil.CreateEntity(t, f.store, tenant.KindStudent, &academics.Student{SchoolID: "sch1", FirstName: "Amara"})
	theirs := testutil.CreateEntity(t, f.store, tenant.KindStudent, &academics.Student{SchoolID: "sch2", FirstName: "Chidi"})

	g1 := f.guard(t, "sch1")

	if _, err := g1.ScopedGet(ctx, tenant.KindStudent, mine.GetID()); err != nil {
		t.Errorf("ScopedGet(own) = %v; want nil", err)
	}

	// foreign and missing entities are indistinguishable
	_, errForeign := g1.ScopedGet(ctx, tenant.KindStudent, theirs.GetID())
	_, errMissing := g1.ScopedGet(ctx, tenant.KindStudent, "no-such-id")
	if errForeign != tenant.ErrNotFound {
		t.Errorf("ScopedGet(foreign) = %v; want ErrNotFound", errForeign)
	}
	if errMissing != tenant.ErrNotFound {
		t.Errorf("ScopedGet(missing) = %v; want ErrNotFound", errMissing)
	}

	if !f.hasAuditEvent(audit.EventTenantViolation) {
		t.Error("foreign-tenant access was not audited")
	}
}

func Test_Guard_ScopedCreate_stampsSessionTenant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	g1 := f.guard(t, "sch1")

	// the payload's tenant claim is ignored
	created, err := g1.ScopedCreate(ctx, tenant.KindClass, &academics.Class{SchoolID: "sch2", Name: "5B"})
	if err != nil {
		t.Fatalf("ScopedCreate() failed: %v", err)
	}
	if created.GetSchoolID() != "sch1" {
		t.Errorf("ScopedCreate() stored tenant %q; want sch1", created.GetSchoolID())
	}
}

func Test_Guard_ScopedCreate_rejectsCrossTenantRefs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	foreignClass := testutil.CreateEntity(t, f.store, tenant.KindClass, &academics.Class{SchoolID: "sch2", Name: "5B"})
	ownClass := testutil.CreateEntity(t, f.store, tenant.KindClass, &academics.Class{SchoolID: "sch1", Name: "4A"})

	g1 := f.guard(t, "sch1")

	// referencing another tenant's class fails hard, nothing is written
	_, err := g1.ScopedCreate(ctx, tenant.KindStudent, &academics.Student{FirstName: "Amara", ClassID: foreignClass.GetID()})
	if err != tenant.ErrCrossTenant {
		t.Fatalf("ScopedCreate(cross-tenant ref) = %v; want ErrCrossTenant", err)
	}
	students, _ := g1.ScopedFind(ctx, tenant.KindStudent, nil)
	if len(students) != 0 {
		t.Errorf("cross-tenant create persisted %d entities; want 0", len(students))
	}
	if !f.hasAuditEvent(audit.EventTenantViolation) {
		t.Error("cross-tenant reference was not audited")
	}

	// a dangling reference is a plain not-found
	if _, err = g1.ScopedCreate(ctx, tenant.KindStudent, &academics.Student{FirstName: "Ben", ClassID: "no-such-id"}); err != tenant.ErrNotFound {
		t.Errorf("ScopedCreate(dangling ref) = %v; want ErrNotFound", err)
	}

	// same-tenant references pass
	if _, err = g1.ScopedCreate(ctx, tenant.KindStudent, &academics.Student{FirstName: "Eve", ClassID: ownClass.GetID()}); err != nil {
		t.Errorf("ScopedCreate(own ref) = %v; want nil", err)
	}
}

func Test_Guard_ScopedUpdate_hidesForeignTenant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	theirs := testutil.CreateEntity(t, f.store, tenant.KindClub, &academics.Club{SchoolID: "sch2", Name: "Chess"})

	g1 := f.guard(t, "sch1")

	_, err := g1.ScopedUpdate(ctx, tenant.KindClub, &academics.Club{ID: theirs.GetID(), Name: "Hijacked"})
	if err != tenant.ErrNotFound {
		t.Fatalf("ScopedUpdate(foreign) = %v; want ErrNotFound", err)
	}

	// the foreign entity is untouched
	g2 := f.guard(t, "sch2")
	club, err := g2.ScopedGet(ctx, tenant.KindClub, theirs.GetID())
	if err != nil {
		t.Fatalf("ScopedGet() failed: %v", err)
	}
	if club.(*academics.Club).Name != "Chess" {
		t.Errorf("foreign entity was modified: %+v", club)
	}
}

func Test_Guard_ScopedDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	mine := testutil.CreateEntity(t, f.store, tenant.KindClub, &academics.Club{SchoolID: "sch1", Name: "Chess"})
	theirs := testutil.CreateEntity(t, f.store, tenant.KindClub, &academics.Club{SchoolID: "sch2", Name: "Chess"})

	g1 := f.guard(t, "sch1")

	if err := g1.ScopedDelete(ctx, tenant.KindClub, theirs.GetID()); err != tenant.ErrNotFound {
		t.Errorf("ScopedDelete(foreign) = %v; want ErrNotFound", err)
	}
	if err := g1.ScopedDelete(ctx, tenant.KindClub, mine.GetID()); err != nil {
		t.Errorf("ScopedDelete(own) = %v; want nil", err)
	}
	if !f.hasAuditEvent(audit.EventEntityDeleted) {
		t.Error("deletion was not audited")
	}

	// the foreign entity survived
	g2 := f.guard(t, "sch2")
	if _, err := g2.ScopedGet(ctx, tenant.KindClub, theirs.GetID()); err != nil {
		t.Errorf("foreign entity disappeared: %v", err)
	}
}

func Test_Guard_rejectsUnknownKind(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	g1 := f.guard(t, "sch1")

	if _, err := g1.ScopedFind(ctx, tenant.Kind("wat"), nil); err != tenant.ErrUnknownKind {
		t.Errorf("ScopedFind(unknown kind) = %v; want ErrUnknownKind", err)
	}
	if _, err := g1.ScopedGet(ctx, tenant.Kind("wat"), "id"); err != tenant.ErrUnknownKind {
		t.Errorf("ScopedGet(unknown kind) = %v; want ErrUnknownKind", err)
	}
	if err := g1.ScopedDelete(ctx, tenant.Kind("wat"), "id"); err != tenant.ErrUnknownKind {
		t.Errorf("ScopedDelete(unknown kind) = %v; want ErrUnknownKind", err)
	}
}
