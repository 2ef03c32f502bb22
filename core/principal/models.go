package principal

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/tatumdale/studystreaks/core"
)

// Profile types. A Principal maps to at most one profile.
const (
	TypeTeacher     = "teacher"
	TypeStudent     = "student"
	TypeParent      = "parent"
	TypeSchoolAdmin = "schoolAdmin"
)

// Principal is an authenticated account within a school.
// Lockout state lives on the row: LoginAttempts counts consecutive
// failures and LockedUntil marks an active lockout window.
type Principal struct {
	ID            string    `json:"id"`
	SchoolID      string    `json:"school_id"`
	Email         string    `json:"email"`
	PasswordHash  []byte    `json:"-"`
	IsActive      bool      `json:"is_active"`
	LoginAttempts int       `json:"-"`
	LockedUntil   null.Time `json:"-"`
	LastLoginAt   null.Time `json:"last_login_at"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (p *Principal) SetPassword(pwd string, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), cost)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	return nil
}

func (p *Principal) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(pwd))
}

// Locked reports whether the account is inside an active lockout window.
func (p Principal) Locked(now time.Time) bool {
	return p.LockedUntil.Valid && p.LockedUntil.Time.After(now)
}

// GetID implements the scoped-entity contract.
func (p Principal) GetID() string { return p.ID }

// SetID implements the scoped-entity contract.
func (p *Principal) SetID(id string) { p.ID = id }

// GetSchoolID implements the scoped-entity contract.
func (p Principal) GetSchoolID() string { return p.SchoolID }

// SetSchoolID implements the scoped-entity contract.
func (p *Principal) SetSchoolID(id string) { p.SchoolID = id }

// Profile is the single role-profile linked to a Principal.
type Profile struct {
	ID          string `json:"id"`
	PrincipalID string `json:"principal_id"`
	SchoolID    string `json:"school_id"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
}

// NewPrincipal contains information needed to register a new account.
type NewPrincipal struct {
	SchoolID        string `json:"school_id" validate:"required,tenantid"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	UserType        string `json:"user_type" validate:"required,oneof=teacher student parent schoolAdmin"`
	DisplayName     string `json:"display_name" validate:"required"`
}

func (np *NewPrincipal) Validate(validate *validator.Validate, _ ut.Translator, svc *Service) error {
	np.SchoolID = core.CleanString(np.SchoolID, true /* lower */)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.DisplayName = core.CleanString(np.DisplayName)

	if err := validate.Struct(np); err != nil {
		return err
	}
	return svc.checkUniqueness(np.Email)
}
