package principal

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/audit"
	"github.com/tatumdale/studystreaks/core/authz"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound    = errors.New("principal not found")
	ErrEmailExists = errors.New("an account with this email already exists")

	// ErrInvalidCredentials deliberately does not reveal which factor was
	// wrong, nor whether the account exists at all.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account deactivated; contact your school administrator")
	ErrAccountLocked      = errors.New("account locked")
	ErrProfileMissing     = errors.New("account profile not found; contact your school administrator")
)

// CredentialsError is an ErrInvalidCredentials carrying the number of
// attempts left before lockout, for user feedback.
type CredentialsError struct {
	Remaining int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s. %d attempts remaining", ErrInvalidCredentials, e.Remaining)
}

func (e *CredentialsError) Cause() error { return ErrInvalidCredentials }

// LockedError is an ErrAccountLocked carrying the unlock time. Callers may
// surface the remaining minutes but never the exact unlock algorithm.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	mins := int(time.Until(e.Until).Minutes()) + 1
	return fmt.Sprintf("account locked. Try again in %d minutes", mins)
}

func (e *LockedError) Cause() error { return ErrAccountLocked }

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excluded ...Principal) error
		CreatePrincipal(ctx context.Context, p Principal) (Principal, error)
		GetPrincipalByID(ctx context.Context, id string) (Principal, error)
		GetPrincipalByEmail(ctx context.Context, email string) (Principal, error)
		// UpdatePrincipal only saves set fields; isActive is applied when non-nil.
		UpdatePrincipal(ctx context.Context, p Principal, isActive *bool) (Principal, error)

		// RegisterFailedLogin atomically increments the attempt counter and
		// applies the lockout once the counter reaches maxAttempts. The
		// increment-and-check must be a single atomic step with respect to
		// concurrent attempts against the same principal, and must be a
		// no-op while a lockout window is already active.
		RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockout time.Duration) (Principal, error)

		// ResetLoginState zeroes the attempt counter, clears any lockout
		// and stamps the last login time.
		ResetLoginState(ctx context.Context, id string, loginAt time.Time) (Principal, error)

		GetProfiles(ctx context.Context, principalID string) ([]Profile, error)
		CreateProfile(ctx context.Context, prof Profile) (Profile, error)

		GetGrants(ctx context.Context, principalID string) ([]authz.Grant, error)
		AddGrant(ctx context.Context, principalID string, grant authz.Grant) (authz.Grant, error)
		RemoveGrant(ctx context.Context, principalID, grantID string) error
	}

	Service struct {
		repo Repository
		conf *core.Config
		aud  *audit.Emitter
		log  core.Logger
	}
)

func NewService(repo Repository, conf *core.Config, aud *audit.Emitter, log core.Logger) *Service {
	return &Service{repo: repo, conf: conf, aud: aud, log: log}
}

func (svc *Service) checkUniqueness(email string, excluded ...Principal) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, excluded...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Authenticate verifies credentials and resolves the caller's session
// context. The read-verify-update sequence is atomic with respect to
// concurrent attempts against the same principal: the attempt counter is
// incremented by the repository in a single step.
func (svc *Service) Authenticate(ctx context.Context, email, password string) (authz.SessionContext, error) {
	email = core.CleanString(email, true /* lower */)
	now := NowFunc()

	p, err := svc.repo.GetPrincipalByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			// indistinguishable from a wrong password
			return authz.SessionContext{}, ErrInvalidCredentials
		}
		return authz.SessionContext{}, errors.Wrap(err, "finding principal by email")
	}

	if !p.IsActive {
		_ = svc.aud.Record(ctx, audit.EventLoginFailed, p.SchoolID, p.ID, details("reason", "disabled"))
		return authz.SessionContext{}, ErrAccountDisabled
	}

	if p.Locked(now) {
		// attempts during an active lockout neither increment the counter
		// nor extend the window
		_ = svc.aud.Record(ctx, audit.EventLoginFailed, p.SchoolID, p.ID, details("reason", "locked"))
		return authz.SessionContext{}, &LockedError{Until: p.LockedUntil.Time}
	}

	if err := p.CheckPassword(password); err != nil {
		p, err = svc.repo.RegisterFailedLogin(ctx, p.ID, svc.conf.Auth.MaxLoginAttempts, svc.conf.Auth.LockoutDuration)
		if err != nil {
			return authz.SessionContext{}, errors.Wrap(err, "registering failed login")
		}
		if p.Locked(now) {
			_ = svc.aud.Record(ctx, audit.EventAccountLocked, p.SchoolID, p.ID, details("attempts", p.LoginAttempts))
			return authz.SessionContext{}, &LockedError{Until: p.LockedUntil.Time}
		}
		_ = svc.aud.Record(ctx, audit.EventLoginFailed, p.SchoolID, p.ID, details("attempts", p.LoginAttempts))
		return authz.SessionContext{}, &CredentialsError{Remaining: svc.conf.Auth.MaxLoginAttempts - p.LoginAttempts}
	}

	p, err = svc.repo.ResetLoginState(ctx, p.ID, now)
	if err != nil {
		return authz.SessionContext{}, errors.Wrap(err, "resetting login state")
	}

	sess, err := svc.Resolve(ctx, p)
	if err != nil {
		return authz.SessionContext{}, err
	}

	_ = svc.aud.Record(ctx, audit.EventLogin, p.SchoolID, p.ID, details("user_type", sess.UserType))
	return sess, nil
}

// Resolve builds the SessionContext for an already-authenticated principal:
// exactly one profile, plus the flattened active non-expired grants.
// Also used on token refresh to re-derive claims.
func (svc *Service) Resolve(ctx context.Context, p Principal) (authz.SessionContext, error) {
	profiles, err := svc.repo.GetProfiles(ctx, p.ID)
	if err != nil {
		return authz.SessionContext{}, errors.Wrap(err, "loading profiles")
	}
	if len(profiles) != 1 {
		return authz.SessionContext{}, ErrProfileMissing
	}

	grants, err := svc.repo.GetGrants(ctx, p.ID)
	if err != nil {
		return authz.SessionContext{}, errors.Wrap(err, "loading grants")
	}
	now := NowFunc()
	active := make([]authz.Grant, 0, len(grants))
	for _, g := range grants {
		if g.Expired(now) || g.SchoolID != p.SchoolID {
			continue
		}
		active = append(active, g)
	}

	return authz.SessionContext{
		UserID:   p.ID,
		SchoolID: p.SchoolID,
		UserType: profiles[0].Type,
		Grants:   active,
	}, nil
}

func (svc *Service) Create(ctx context.Context, np NewPrincipal) (Principal, error) {
	now := time.Now().UTC()
	p := Principal{
		SchoolID:  np.SchoolID,
		Email:     np.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.SetPassword(np.Password, svc.conf.Auth.BcryptCost); err != nil {
		return Principal{}, err
	}
	p, err := svc.repo.CreatePrincipal(ctx, p)
	if err != nil {
		return Principal{}, err
	}
	_, err = svc.repo.CreateProfile(ctx, Profile{
		PrincipalID: p.ID,
		SchoolID:    p.SchoolID,
		Type:        np.UserType,
		DisplayName: np.DisplayName,
	})
	if err != nil {
		return Principal{}, errors.Wrap(err, "creating profile")
	}
	return p, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Principal, error) {
	return svc.repo.GetPrincipalByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Principal, error) {
	return svc.repo.GetPrincipalByEmail(ctx, core.CleanString(email, true /* lower */))
}

// Deactivate soft-disables an account. Hard deletion only ever happens via
// retention-driven purge, outside this service.
func (svc *Service) Deactivate(ctx context.Context, id, actorID string) (Principal, error) {
	p, err := svc.repo.GetPrincipalByID(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	p.UpdatedAt = time.Now().UTC()
	inactive := false
	p, err = svc.repo.UpdatePrincipal(ctx, p, &inactive)
	if err != nil {
		return Principal{}, err
	}
	_ = svc.aud.Record(ctx, audit.EventPrincipalDeactivated, p.SchoolID, actorID, details("principal_id", p.ID))
	return p, nil
}

// Unlock clears the lockout state ahead of the window's expiry.
func (svc *Service) Unlock(ctx context.Context, id, actorID string) (Principal, error) {
	p, err := svc.repo.GetPrincipalByID(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	p, err = svc.repo.ResetLoginState(ctx, p.ID, time.Time{})
	if err != nil {
		return Principal{}, err
	}
	_ = svc.aud.Record(ctx, audit.EventAccountUnlocked, p.SchoolID, actorID, details("principal_id", p.ID))
	return p, nil
}

// GrantRole attaches a role grant to a principal within its own tenant.
func (svc *Service) GrantRole(ctx context.Context, principalID, actorID string, grant authz.Grant) (authz.Grant, error) {
	p, err := svc.repo.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return authz.Grant{}, err
	}
	// a grant's tenant must equal the principal's tenant
	grant.SchoolID = p.SchoolID
	grant.ClassIDs = core.CleanStrings(grant.ClassIDs, true)
	grant.YearGroups = core.CleanStrings(grant.YearGroups, true)
	grant.Subjects = core.CleanStrings(grant.Subjects, true)
	grant.StudentIDs = core.CleanStrings(grant.StudentIDs, true)
	grant, err = svc.repo.AddGrant(ctx, principalID, grant)
	if err != nil {
		return authz.Grant{}, err
	}
	_ = svc.aud.Record(ctx, audit.EventPermissionGranted, p.SchoolID, actorID, details("principal_id", principalID, "role", grant.Role.Name))
	return grant, nil
}

// RevokeRole removes a role grant. Tokens already issued keep the stale
// grant until they expire or refresh; see the session docs.
func (svc *Service) RevokeRole(ctx context.Context, principalID, grantID, actorID string) error {
	p, err := svc.repo.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return err
	}
	if err := svc.repo.RemoveGrant(ctx, principalID, grantID); err != nil {
		return err
	}
	_ = svc.aud.Record(ctx, audit.EventPermissionRevoked, p.SchoolID, actorID, details("principal_id", principalID, "grant_id", grantID))
	return nil
}

func details(kvs ...interface{}) map[string]interface{} {
	d := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		if key, ok := kvs[i].(string); ok {
			d[key] = kvs[i+1]
		}
	}
	return d
}
