package school

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/tatumdale/studystreaks/core"
)

// School is the tenant: the unit of data isolation. Every other entity
// belongs to exactly one School, directly or transitively, and its
// SchoolID never changes after creation.
type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URN       string    `json:"urn,omitempty"`        // external regulatory identifier, opaque here
	DfENumber string    `json:"dfe_number,omitempty"` // external regulatory identifier, opaque here
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewSchool contains information needed to register a new School.
// The ID doubles as the tenant identifier and must match the strict
// allow-list pattern.
type NewSchool struct {
	ID        string `json:"id" validate:"required,tenantid"`
	Name      string `json:"name" validate:"required"`
	URN       string `json:"urn" validate:"omitempty,alphanum_"`
	DfENumber string `json:"dfe_number" validate:"omitempty,alphanum_"`
}

func (ns *NewSchool) Validate(validate *validator.Validate, _ ut.Translator) error {
	ns.ID = core.CleanString(ns.ID, true /* lower */)
	ns.Name = core.CleanString(ns.Name)
	ns.URN = core.CleanString(ns.URN)
	ns.DfENumber = core.CleanString(ns.DfENumber)
	return validate.Struct(ns)
}
