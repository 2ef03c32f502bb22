package authz

import (
	"errors"
	"time"
)

var (
	NowFunc = time.Now // mockable

	// ErrPermissionDenied indicates the caller is in the right tenant but
	// lacks the capability for the requested operation.
	ErrPermissionDenied = errors.New("permission denied")
)

// Authorize decides whether the session may perform `action` on `resource`.
// scope may be empty when the caller does not care about a specific
// permission scope; target may be nil for untargeted checks.
//
// The evaluator is pure: it only reads the fully-populated SessionContext.
// Absence of a matching permission always means deny.
func Authorize(sess SessionContext, resource, action, scope string, target *Target) bool {
	now := NowFunc()

	for _, grant := range sess.Grants {
		if grant.Expired(now) {
			continue
		}
		if !grantMatchesTarget(grant, target) {
			continue
		}
		for _, perm := range grant.Permissions {
			if permissionMatches(perm, resource, action, scope) {
				return true
			}
		}
	}
	return false
}

// Require is Authorize returning ErrPermissionDenied on deny.
func Require(sess SessionContext, resource, action, scope string, target *Target) error {
	if !Authorize(sess, resource, action, scope, target) {
		return ErrPermissionDenied
	}
	return nil
}

func permissionMatches(perm Permission, resource, action, scope string) bool {
	if perm.Resource != resource && perm.Resource != ResourceAll {
		return false
	}
	if perm.Action != action && perm.Action != ActionManage {
		return false
	}
	if scope != "" && perm.Scope != scope && perm.Scope != ScopeAll {
		return false
	}
	return true
}

// grantMatchesTarget applies the grant's narrowing lists to the target.
// PLATFORM and SCHOOL scoped roles apply to any target within the tenant.
// An empty narrowing list means the role is unrestricted within its scope;
// a narrowed role with no target to match against is not a match.
func grantMatchesTarget(grant Grant, target *Target) bool {
	switch grant.Role.Scope {
	case RoleScopePlatform, RoleScopeSchool:
		return true
	case RoleScopeClass:
		return listMatches(grant.ClassIDs, targetField(target, func(t *Target) string { return t.ClassID }))
	case RoleScopeYearGroup:
		return listMatches(grant.YearGroups, targetField(target, func(t *Target) string { return t.YearGroup }))
	case RoleScopeSubject:
		return listMatches(grant.Subjects, targetField(target, func(t *Target) string { return t.Subject }))
	case RoleScopeIndividual:
		return listMatches(grant.StudentIDs, targetField(target, func(t *Target) string { return t.StudentID }))
	}
	return false
}

func targetField(target *Target, get func(*Target) string) string {
	if target == nil {
		return ""
	}
	return get(target)
}

func listMatches(list []string, val string) bool {
	if len(list) == 0 {
		return true
	}
	if val == "" {
		return false
	}
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
