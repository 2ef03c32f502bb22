// Package academics holds the tenant-scoped entities of the platform:
// profiles, classes, clubs and homework completions. Every type implements
// the scoped-entity contract so it can only be reached through the tenant
// scope guard.
package academics

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/tatumdale/studystreaks/core/tenant"
)

// Student is the pupil profile linked to a Principal.
type Student struct {
	ID            string    `json:"id"`
	SchoolID      string    `json:"school_id"`
	PrincipalID   string    `json:"principal_id,omitempty"`
	ClassID       string    `json:"class_id,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	PreferredName string    `json:"preferred_name,omitempty"`
	YearGroup     string    `json:"year_group,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s Student) GetID() string          { return s.ID }
func (s *Student) SetID(id string)       { s.ID = id }
func (s Student) GetSchoolID() string    { return s.SchoolID }
func (s *Student) SetSchoolID(id string) { s.SchoolID = id }

func (s Student) TenantRefs() []tenant.Ref {
	return []tenant.Ref{
		{Kind: tenant.KindPrincipal, ID: s.PrincipalID},
		{Kind: tenant.KindClass, ID: s.ClassID},
	}
}

// Teacher is the staff profile linked to a Principal.
type Teacher struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	PrincipalID string    `json:"principal_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DisplayName string    `json:"display_name,omitempty"`
	Subjects    []string  `json:"subjects,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t Teacher) GetID() string          { return t.ID }
func (t *Teacher) SetID(id string)       { t.ID = id }
func (t Teacher) GetSchoolID() string    { return t.SchoolID }
func (t *Teacher) SetSchoolID(id string) { t.SchoolID = id }

func (t Teacher) TenantRefs() []tenant.Ref {
	return []tenant.Ref{{Kind: tenant.KindPrincipal, ID: t.PrincipalID}}
}

// Parent is the guardian profile linked to a Principal. StudentIDs list the
// children the parent is responsible for, all within the same school.
type Parent struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	PrincipalID string    `json:"principal_id,omitempty"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	StudentIDs  []string  `json:"student_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p Parent) GetID() string          { return p.ID }
func (p *Parent) SetID(id string)       { p.ID = id }
func (p Parent) GetSchoolID() string    { return p.SchoolID }
func (p *Parent) SetSchoolID(id string) { p.SchoolID = id }

func (p Parent) TenantRefs() []tenant.Ref {
	refs := []tenant.Ref{{Kind: tenant.KindPrincipal, ID: p.PrincipalID}}
	for _, sid := range p.StudentIDs {
		refs = append(refs, tenant.Ref{Kind: tenant.KindStudent, ID: sid})
	}
	return refs
}

// SchoolAdmin is the administrator profile linked to a Principal.
type SchoolAdmin struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	PrincipalID string    `json:"principal_id,omitempty"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a SchoolAdmin) GetID() string          { return a.ID }
func (a *SchoolAdmin) SetID(id string)       { a.ID = id }
func (a SchoolAdmin) GetSchoolID() string    { return a.SchoolID }
func (a *SchoolAdmin) SetSchoolID(id string) { a.SchoolID = id }

func (a SchoolAdmin) TenantRefs() []tenant.Ref {
	return []tenant.Ref{{Kind: tenant.KindPrincipal, ID: a.PrincipalID}}
}

// Class is a teaching group within a school.
type Class struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Name      string    `json:"name"`
	YearGroup string    `json:"year_group,omitempty"`
	TeacherID string    `json:"teacher_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Class) GetID() string          { return c.ID }
func (c *Class) SetID(id string)       { c.ID = id }
func (c Class) GetSchoolID() string    { return c.SchoolID }
func (c *Class) SetSchoolID(id string) { c.SchoolID = id }

func (c Class) TenantRefs() []tenant.Ref {
	return []tenant.Ref{{Kind: tenant.KindTeacher, ID: c.TeacherID}}
}

// Club is an extracurricular group within a school.
type Club struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Name      string    `json:"name"`
	LeaderID  string    `json:"leader_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Club) GetID() string          { return c.ID }
func (c *Club) SetID(id string)       { c.ID = id }
func (c Club) GetSchoolID() string    { return c.SchoolID }
func (c *Club) SetSchoolID(id string) { c.SchoolID = id }

func (c Club) TenantRefs() []tenant.Ref {
	return []tenant.Ref{{Kind: tenant.KindTeacher, ID: c.LeaderID}}
}

// HomeworkCompletion records a student completing homework on a date; it
// feeds streak tracking.
type HomeworkCompletion struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	StudentID   string    `json:"student_id"`
	ClassID     string    `json:"class_id,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	CompletedOn time.Time `json:"completed_on"`
	VerifiedBy  null.String `json:"verified_by,omitempty"` // teacher id
	CreatedAt   time.Time `json:"created_at"`
}

func (h HomeworkCompletion) GetID() string          { return h.ID }
func (h *HomeworkCompletion) SetID(id string)       { h.ID = id }
func (h HomeworkCompletion) GetSchoolID() string    { return h.SchoolID }
func (h *HomeworkCompletion) SetSchoolID(id string) { h.SchoolID = id }

func (h HomeworkCompletion) TenantRefs() []tenant.Ref {
	return []tenant.Ref{
		{Kind: tenant.KindStudent, ID: h.StudentID},
		{Kind: tenant.KindClass, ID: h.ClassID},
		{Kind: tenant.KindTeacher, ID: h.VerifiedBy.String},
	}
}

// New returns a zero entity of the given kind, for stores that need to
// decode rows into concrete types.
func New(kind tenant.Kind) (tenant.Entity, bool) {
	switch kind {
	case tenant.KindStudent:
		return &Student{}, true
	case tenant.KindTeacher:
		return &Teacher{}, true
	case tenant.KindParent:
		return &Parent{}, true
	case tenant.KindSchoolAdmin:
		return &SchoolAdmin{}, true
	case tenant.KindClass:
		return &Class{}, true
	case tenant.KindClub:
		return &Club{}, true
	case tenant.KindHomeworkCompletion:
		return &HomeworkCompletion{}, true
	}
	return nil, false
}
