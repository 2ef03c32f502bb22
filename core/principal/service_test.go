package principal_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/audit"
	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/principal"
	inmemdb "github.com/tatumdale/studystreaks/storage/database/inmem"
	testutil "github.com/tatumdale/studystreaks/tests"
)

type fixture struct {
	repo principal.Repository
	svc  *principal.Service
	sink *inmemdb.AuditSink
	conf *core.Config
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	conf := core.NewTestConfig()
	log := &testutil.Logger{}
	sink := inmemdb.NewAuditSink(db)
	repo := inmemdb.NewPrincipalRepository(db)
	return &fixture{
		repo: repo,
		svc:  principal.NewService(repo, conf, audit.NewEmitter(sink, log, conf), log),
		sink: sink,
		conf: conf,
	}
}

func (f *fixture) countAuditEvents(event string) int {
	var n int
	for _, e := range f.sink.Entries() {
		if e.Event == event {
			n++
		}
	}
	return n
}

func teacherGrant() authz.Grant {
	return testutil.Grant("sch1",
		authz.Role{ID: "r1", Name: "teacher", Scope: authz.RoleScopeSchool, Priority: 40},
		testutil.Perm("student", authz.ActionRead, authz.ScopeSchool),
	)
}

func Test_Service_Authenticate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := testutil.CreatePrincipal(t, f.repo, "sch1", "jo@school.test", "s3cr3tpwd", principal.TypeTeacher, true,
		teacherGrant(),
		testutil.ExpiredGrant("sch1", authz.Role{ID: "r2", Name: "old", Scope: authz.RoleScopeSchool}),
	)

	sess, err := f.svc.Authenticate(ctx, "  JO@School.Test ", "s3cr3tpwd")
	if err != nil {
		t.Fatalf("Authenticate() failed: %v", err)
	}
	if sess.UserID != p.ID || sess.SchoolID != "sch1" || sess.UserType != principal.TypeTeacher {
		t.Errorf("Authenticate() session = %+v", sess)
	}
	// expired grants are dropped at resolution time
	if len(sess.Grants) != 1 {
		t.Errorf("Authenticate() resolved %d grants; want 1", len(sess.Grants))
	}

	p, err = f.repo.GetPrincipalByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPrincipalByID() failed: %v", err)
	}
	if !p.LastLoginAt.Valid {
		t.Error("Authenticate() did not stamp last login")
	}
	if f.countAuditEvents(audit.EventLogin) != 1 {
		t.Error("Authenticate() did not audit the login")
	}
}

func Test_Service_Authenticate_invalidCredentials(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreatePrincipal(t, f.repo, "sch1", "jo@school.test", "s3cr3tpwd", principal.TypeTeacher, true, teacherGrant())

	// unknown account and wrong password are indistinguishable
	if _, err := f.svc.Authenticate(ctx, "ghost@school.test", "whatever"); err != principal.ErrInvalidCredentials {
		t.Errorf("Authenticate(unknown) = %v; want ErrInvalidCredentials", err)
	}

	_, err := f.svc.Authenticate(ctx, "jo@school.test", "wrong")
	credErr, ok := err.(*principal.CredentialsError)
	if !ok {
		t.Fatalf("Authenticate(wrong pwd) = %v; want *CredentialsError", err)
	}
	if errors.Cause(credErr) != principal.ErrInvalidCredentials {
		t.Errorf("Cause() = %v; want ErrInvalidCredentials", errors.Cause(credErr))
	}
	if want := f.conf.Auth.MaxLoginAttempts - 1; credErr.Remaining != want {
		t.Errorf("Remaining = %d; want %d", credErr.Remaining, want)
	}
}

func Test_Service_Authenticate_lockout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := testutil.CreatePrincipal(t, f.repo, "sch1", "jo@school.test", "s3cr3tpwd", principal.TypeTeacher, true, teacherGrant())

	// failures below the threshold return the remaining count
	for i := 1; i < f.conf.Auth.MaxLoginAttempts; i++ {
		if _, err := f.svc.Authenticate(ctx, "jo@school.test", "wrong"); errors.Cause(err) != principal.ErrInvalidCredentials {
			t.Fatalf("attempt %d: Authenticate() = %v; want ErrInvalidCredentials", i, err)
		}
	}

	// the final failure locks the account
	_, err := f.svc.Authenticate(ctx, "jo@school.test", "wrong")
	lockErr, ok := err.(*principal.LockedError)
	if !ok {
		t.Fatalf("locking attempt: Authenticate() = %v; want *LockedError", err)
	}
	wantUntil := time.Now().Add(f.conf.Auth.LockoutDuration)
	if lockErr.Until.Before(wantUntil.Add(-time.Minute)) || lockErr.Until.After(wantUntil.Add(time.Minute)) {
		t.Errorf("lockout until %v; want ~%v", lockErr.Until, wantUntil)
	}
	if f.countAuditEvents(audit.EventAccountLocked) != 1 {
		t.Error("lockout was not audited")
	}

	// even the correct password is rejected while locked, and attempts
	// during the window neither increment nor extend it
	if _, err = f.svc.Authenticate(ctx, "jo@school.test", "s3cr3tpwd"); errors.Cause(err) != principal.ErrAccountLocked {
		t.Fatalf("Authenticate(locked) = %v; want ErrAccountLocked", err)
	}
	got, _ := f.repo.GetPrincipalByID(ctx, p.ID)
	if got.LoginAttempts != f.conf.Auth.MaxLoginAttempts {
		t.Errorf("attempts = %d; want %d (no increment while locked)", got.LoginAttempts, f.conf.Auth.MaxLoginAttempts)
	}
	if f.countAuditEvents(audit.EventAccountLocked) != 1 {
		t.Error("lockout during active window must not be re-audited")
	}

	// admin unlock restores access
	if _, err = f.svc.Unlock(ctx, p.ID, "admin1"); err != nil {
		t.Fatalf("Unlock() failed: %v", err)
	}
	if _, err = f.svc.Authenticate(ctx, "jo@school.test", "s3cr3tpwd"); err != nil {
		t.Errorf("Authenticate(after unlock) = %v; want nil", err)
	}
}

func Test_Service_Authenticate_expiredLockout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreatePrincipal(t, f.repo, "sch1", "jo@school.test", "s3cr3tpwd", principal.TypeTeacher, true, teacherGrant())

	for i := 0; i < f.conf.Auth.MaxLoginAttempts; i++ {
		_, _ = f.svc.Authenticate(ctx, "jo@school.test", "wrong")
	}

	// pretend the lockout window has elapsed
	principal.NowFunc = func() time.Time { return time.Now().Add(f.conf.Auth.LockoutDuration + time.Minute) }
	defer func() { principal.NowFunc = time.Now }()

	sess, err := f.svc.Authenticate(ctx, "jo@school.test", "s3cr3tpwd")
	if err != nil {
		t.Fatalf("Authenticate(after window) = %v; want nil", err)
	}
	if sess.UserID == "" {
		t.Error("Authenticate() returned an empty session")
	}
}

func Test_Service_Authenticate_concurrentFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := testutil.CreatePrincipal(t, f.repo, "sch1", "jo@school.test", "s3cr3tpwd", principal.TypeTeacher, true, teacherGrant())

	var wg sync.WaitGroup
	for i := 0; i < 3*f.conf.Auth.MaxLoginAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Authenticate(ctx, "jo@school.test", "wrong")
		}()
	}
	wg.Wait()

	// exactly one lockout, with the counter stopped at the threshold
	got, err := f.repo.GetPrincipalByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPrincipalByID() failed: %v", err)
	}
	if !got.Locked(time.Now()) {
		t.Error("account is not locked")
	}
	if got.LoginAttempts != f.conf.Auth.MaxLoginAttempts {
		t.Errorf("attempts = %d; want exactly %d", got.LoginAttempts, f.conf.Auth.MaxLoginAttempts)
	}
}

func Test_Service_Authenticate_disabledAccount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreatePrincipal(t, f.repo, "sch1", "jo@school.test", "s3cr3tpwd", principal.TypeTeacher, false, teacherGrant())

	if _, err := f.svc.Authenticate(ctx, "jo@school.test", "s3cr3tpwd"); err != principal.ErrAccountDisabled {
		t.Errorf("Authenticate(disabled) = %v; want ErrAccountDisabled", err)
	}
}

func Test_Service_Resolve(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// no profile
	orphan := testutil.CreatePrincipal(t, f.repo, "sch1", "orphan@school.test", "s3cr3tpwd", "", true)
	if _, err := f.svc.Resolve(ctx, orphan); err != principal.ErrProfileMissing {
		t.Errorf("Resolve(no profile) = %v; want ErrProfileMissing", err)
	}

	// two profiles is as broken as none
	double := testutil.CreatePrincipal(t, f.repo, "sch1", "double@school.test", "s3cr3tpwd", principal.TypeTeacher, true)
	if _, err := f.repo.CreateProfile(ctx, principal.Profile{PrincipalID: double.ID, SchoolID: "sch1", Type: principal.TypeParent}); err != nil {
		t.Fatalf("CreateProfile() failed: %v", err)
	}
	if _, err := f.svc.Resolve(ctx, double); err != principal.ErrProfileMissing {
		t.Errorf("Resolve(two profiles) = %v; want ErrProfileMissing", err)
	}

	// grants pointing at another tenant are dropped
	mixed := testutil.CreatePrincipal(t, f.repo, "sch1", "mixed@school.test", "s3cr3tpwd", principal.TypeTeacher, true, teacherGrant())
	foreign := teacherGrant()
	foreign.SchoolID = "sch2"
	if _, err := f.repo.AddGrant(ctx, mixed.ID, foreign); err != nil {
		t.Fatalf("AddGrant() failed: %v", err)
	}
	sess, err := f.svc.Resolve(ctx, mixed)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if len(sess.Grants) != 1 {
		t.Errorf("Resolve() kept %d grants; want 1", len(sess.Grants))
	}
}

func Test_Service_GrantRole_forcesTenant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := testutil.CreatePrincipal(t, f.repo, "sch1", "jo@school.test", "s3cr3tpwd", principal.TypeTeacher, true)

	g := teacherGrant()
	g.SchoolID = "sch2" // the caller's claim is ignored
	g, err := f.svc.GrantRole(ctx, p.ID, "admin1", g)
	if err != nil {
		t.Fatalf("GrantRole() failed: %v", err)
	}
	if g.SchoolID != "sch1" {
		t.Errorf("GrantRole() stored tenant %q; want sch1", g.SchoolID)
	}
	if f.countAuditEvents(audit.EventPermissionGranted) != 1 {
		t.Error("GrantRole() was not audited")
	}

	if err = f.svc.RevokeRole(ctx, p.ID, g.ID, "admin1"); err != nil {
		t.Fatalf("RevokeRole() failed: %v", err)
	}
	if f.countAuditEvents(audit.EventPermissionRevoked) != 1 {
		t.Error("RevokeRole() was not audited")
	}
}

func Test_Service_Deactivate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := testutil.CreatePrincipal(t, f.repo, "sch1", "jo@school.test", "s3cr3tpwd", principal.TypeTeacher, true, teacherGrant())

	p, err := f.svc.Deactivate(ctx, p.ID, "admin1")
	if err != nil {
		t.Fatalf("Deactivate() failed: %v", err)
	}
	if p.IsActive {
		t.Error("Deactivate() left the account active")
	}
	if f.countAuditEvents(audit.EventPrincipalDeactivated) != 1 {
		t.Error("Deactivate() was not audited")
	}
}
