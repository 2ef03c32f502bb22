package authz

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func perm(resource, action, scope string) Permission {
	return Permission{Resource: resource, Action: action, Scope: scope}
}

func grant(roleScope string, perms ...Permission) Grant {
	return Grant{
		SchoolID:    "sch1",
		Role:        Role{Name: "role", Scope: roleScope},
		Permissions: perms,
	}
}

func session(grants ...Grant) SessionContext {
	return SessionContext{UserID: "u1", SchoolID: "sch1", UserType: "teacher", Grants: grants}
}

func Test_Authorize(t *testing.T) {
	readStudents := perm("student", ActionRead, ScopeClass)
	manageAll := perm(ResourceAll, ActionManage, ScopeAll)

	expired := grant(RoleScopeSchool, readStudents)
	expired.ExpiresAt = null.TimeFrom(time.Now().Add(-time.Minute))

	narrowedClass := grant(RoleScopeClass, readStudents)
	narrowedClass.ClassIDs = []string{"c1"}

	narrowedYear := grant(RoleScopeYearGroup, perm("student", ActionRead, ScopeYearGroup))
	narrowedYear.YearGroups = []string{"y5"}

	narrowedSubject := grant(RoleScopeSubject, perm("homework_completion", ActionRead, ""))
	narrowedSubject.Subjects = []string{"maths"}

	narrowedStudent := grant(RoleScopeIndividual, perm("student", ActionRead, ScopeOwn))
	narrowedStudent.StudentIDs = []string{"s1"}

	tests := []struct {
		name     string
		sess     SessionContext
		resource string
		action   string
		scope    string
		target   *Target
		want     bool
	}{
		{name: "no grants denies", sess: session(), resource: "student", action: ActionRead, want: false},
		{name: "no matching permission denies", sess: session(grant(RoleScopeSchool, readStudents)), resource: "class", action: ActionRead, want: false},
		{name: "matching permission allows", sess: session(grant(RoleScopeSchool, readStudents)), resource: "student", action: ActionRead, want: true},
		{name: "action mismatch denies", sess: session(grant(RoleScopeSchool, readStudents)), resource: "student", action: ActionDelete, want: false},
		{name: "manage implies other actions", sess: session(grant(RoleScopeSchool, perm("student", ActionManage, ScopeSchool))), resource: "student", action: ActionDelete, want: true},
		{name: "wildcard resource matches", sess: session(grant(RoleScopeSchool, manageAll)), resource: "club", action: ActionWrite, want: true},
		{name: "scope mismatch denies", sess: session(grant(RoleScopeSchool, readStudents)), resource: "student", action: ActionRead, scope: ScopeSchool, want: false},
		{name: "wildcard scope matches", sess: session(grant(RoleScopeSchool, manageAll)), resource: "student", action: ActionRead, scope: ScopeSchool, want: true},
		{name: "expired grant denies", sess: session(expired), resource: "student", action: ActionRead, want: false},

		// role scope narrowing
		{name: "platform role matches any target", sess: session(grant(RoleScopePlatform, manageAll)), resource: "student", action: ActionRead, target: &Target{ClassID: "c9"}, want: true},
		{name: "school role matches any target", sess: session(grant(RoleScopeSchool, readStudents)), resource: "student", action: ActionRead, target: &Target{ClassID: "c9"}, want: true},
		{name: "unrestricted class role matches nil target", sess: session(grant(RoleScopeClass, readStudents)), resource: "student", action: ActionRead, want: true},
		{name: "narrowed class role matches covered class", sess: session(narrowedClass), resource: "student", action: ActionRead, target: &Target{ClassID: "c1"}, want: true},
		{name: "narrowed class role denies other class", sess: session(narrowedClass), resource: "student", action: ActionRead, target: &Target{ClassID: "c2"}, want: false},
		{name: "narrowed class role denies nil target", sess: session(narrowedClass), resource: "student", action: ActionRead, want: false},
		{name: "narrowed year group matches", sess: session(narrowedYear), resource: "student", action: ActionRead, target: &Target{YearGroup: "y5"}, want: true},
		{name: "narrowed year group denies", sess: session(narrowedYear), resource: "student", action: ActionRead, target: &Target{YearGroup: "y6"}, want: false},
		{name: "narrowed subject matches", sess: session(narrowedSubject), resource: "homework_completion", action: ActionRead, target: &Target{Subject: "maths"}, want: true},
		{name: "narrowed student matches", sess: session(narrowedStudent), resource: "student", action: ActionRead, target: &Target{StudentID: "s1"}, want: true},
		{name: "narrowed student denies", sess: session(narrowedStudent), resource: "student", action: ActionRead, target: &Target{StudentID: "s2"}, want: false},

		// one allowing grant is enough
		{name: "any allowing grant wins", sess: session(expired, narrowedClass, grant(RoleScopeSchool, readStudents)), resource: "student", action: ActionRead, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.sess, tt.resource, tt.action, tt.scope, tt.target); got != tt.want {
				t.Errorf("Authorize() = %v; want %v", got, tt.want)
			}
		})
	}
}

func Test_Require(t *testing.T) {
	sess := session(grant(RoleScopeSchool, perm("student", ActionRead, ScopeSchool)))

	if err := Require(sess, "student", ActionRead, "", nil); err != nil {
		t.Errorf("Require() = %v; want nil", err)
	}
	if err := Require(sess, "student", ActionDelete, "", nil); err != ErrPermissionDenied {
		t.Errorf("Require() = %v; want ErrPermissionDenied", err)
	}
}

func Test_SessionContext_helpers(t *testing.T) {
	sess := session(
		Grant{Role: Role{Scope: RoleScopeClass, Priority: 30}, Permissions: []Permission{perm("student", ActionRead, "")}},
		Grant{Role: Role{Scope: RoleScopeSchool, Priority: 70}, Permissions: []Permission{perm("class", ActionManage, "")}},
	)

	if got := len(sess.Permissions()); got != 2 {
		t.Errorf("Permissions() returned %d; want 2", got)
	}
	if got := sess.MaxRolePriority(); got != 70 {
		t.Errorf("MaxRolePriority() = %d; want 70", got)
	}
	if sess.IsPlatform() {
		t.Error("IsPlatform() = true; want false")
	}
	sess.Grants = append(sess.Grants, Grant{Role: Role{Scope: RoleScopePlatform}})
	if !sess.IsPlatform() {
		t.Error("IsPlatform() = false; want true")
	}
}
