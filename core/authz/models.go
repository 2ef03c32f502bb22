package authz

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Actions a permission may allow on a resource.
// ActionManage implies every other action on the same resource.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
	ActionManage = "manage"
	ActionAssign = "assign"
)

// Permission scopes, narrowest to broadest.
const (
	ScopeOwn       = "own"
	ScopeClass     = "class"
	ScopeYearGroup = "year_group"
	ScopeSchool    = "school"
	ScopeAll       = "all"
)

// Role scopes: the breadth of a role grant.
const (
	RoleScopePlatform   = "PLATFORM"
	RoleScopeSchool     = "SCHOOL"
	RoleScopeYearGroup  = "YEAR_GROUP"
	RoleScopeClass      = "CLASS"
	RoleScopeSubject    = "SUBJECT"
	RoleScopeIndividual = "INDIVIDUAL"
)

// Permission risk levels.
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// ResourceAll is the wildcard resource tag matching any resource.
const ResourceAll = "all"

// Permission is a tenant-agnostic catalog entry.
type Permission struct {
	ID        string `json:"id,omitempty"`
	Resource  string `json:"resource"`
	Action    string `json:"action"`
	Scope     string `json:"scope"`
	RiskLevel string `json:"risk_level,omitempty"`
}

// Role is reusable across principals within its owning tenant.
// SchoolID is empty for platform-wide roles.
type Role struct {
	ID       string `json:"id"`
	SchoolID string `json:"school_id,omitempty"`
	Name     string `json:"name"`
	Scope    string `json:"scope"`
	Priority int    `json:"priority"`
}

// GetID implements the scoped-entity contract.
func (r Role) GetID() string { return r.ID }

// SetID implements the scoped-entity contract.
func (r *Role) SetID(id string) { r.ID = id }

// GetSchoolID implements the scoped-entity contract.
func (r Role) GetSchoolID() string { return r.SchoolID }

// SetSchoolID implements the scoped-entity contract.
func (r *Role) SetSchoolID(id string) { r.SchoolID = id }

// Grant is a role granted to a principal within a tenant, narrowed to
// specific classes, year groups, subjects or students. An empty narrowing
// list means unrestricted within the role's scope.
type Grant struct {
	ID          string       `json:"id,omitempty"`
	SchoolID    string       `json:"school_id"`
	Role        Role         `json:"role"`
	ClassIDs    []string     `json:"class_ids,omitempty"`
	YearGroups  []string     `json:"year_groups,omitempty"`
	Subjects    []string     `json:"subjects,omitempty"`
	StudentIDs  []string     `json:"student_ids,omitempty"`
	ExpiresAt   null.Time    `json:"expires_at,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt.Valid && g.ExpiresAt.Time.Before(now)
}

// GetID implements the scoped-entity contract.
func (g Grant) GetID() string { return g.ID }

// SetID implements the scoped-entity contract.
func (g *Grant) SetID(id string) { g.ID = id }

// GetSchoolID implements the scoped-entity contract.
func (g Grant) GetSchoolID() string { return g.SchoolID }

// SetSchoolID implements the scoped-entity contract.
func (g *Grant) SetSchoolID(id string) { g.SchoolID = id }

// SessionContext is the resolved bundle of identity, tenant and permissions
// produced at authentication time. It is immutable for the lifetime of the
// token it is embedded in, and re-derived on refresh.
type SessionContext struct {
	UserID   string  `json:"user_id"`
	SchoolID string  `json:"school_id"`
	UserType string  `json:"user_type"`
	Grants   []Grant `json:"grants"`
}

// Permissions flattens the permissions of all grants.
func (s SessionContext) Permissions() []Permission {
	var perms []Permission
	for _, g := range s.Grants {
		perms = append(perms, g.Permissions...)
	}
	return perms
}

// IsPlatform reports whether the session holds any platform-wide role.
func (s SessionContext) IsPlatform() bool {
	for _, g := range s.Grants {
		if g.Role.Scope == RoleScopePlatform {
			return true
		}
	}
	return false
}

// MaxRolePriority returns the highest role priority among the session's
// grants; 0 when there are none.
func (s SessionContext) MaxRolePriority() int {
	var max int
	for _, g := range s.Grants {
		if g.Role.Priority > max {
			max = g.Role.Priority
		}
	}
	return max
}

// Target identifies the object of an authorization check so narrowed grants
// can be matched against it.
type Target struct {
	ClassID   string
	YearGroup string
	Subject   string
	StudentID string
	OwnerID   string
}
