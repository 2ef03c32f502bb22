package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/principal"
)

type principalRepository struct {
	db *DB
}

var _ principal.Repository = (*principalRepository)(nil) // interface compliance check

func NewPrincipalRepository(db *DB) principal.Repository {
	return &principalRepository{db: db}
}

func (repo *principalRepository) CheckEmailUniqueness(ctx context.Context, email string, excluded ...principal.Principal) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.db.principals {
		if p.Email != email {
			continue
		}
		if isExcluded(*p, excluded) {
			continue
		}
		return principal.ErrEmailExists
	}
	return nil
}

func (repo *principalRepository) CreatePrincipal(ctx context.Context, p principal.Principal) (principal.Principal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	repo.db.principals[p.ID] = &p
	return p, nil
}

func (repo *principalRepository) GetPrincipalByID(ctx context.Context, id string) (principal.Principal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.principals[id]; ok {
		return *p, nil
	}
	return principal.Principal{}, principal.ErrNotFound
}

func (repo *principalRepository) GetPrincipalByEmail(ctx context.Context, email string) (principal.Principal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.db.principals {
		if p.Email == email {
			return *p, nil
		}
	}
	return principal.Principal{}, principal.ErrNotFound
}

func (repo *principalRepository) UpdatePrincipal(ctx context.Context, p principal.Principal, isActive *bool) (principal.Principal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.principals[p.ID]
	if !ok {
		return principal.Principal{}, principal.ErrNotFound
	}
	// only save set fields; SchoolID is immutable
	if p.Email != "" {
		orig.Email = p.Email
	}
	if p.PasswordHash != nil {
		orig.PasswordHash = p.PasswordHash
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = p.UpdatedAt
	return *orig, nil
}

// RegisterFailedLogin increments under the table lock so two concurrent
// failures cannot both observe the same attempt count. While a lockout
// window is active the call is a no-op.
func (repo *principalRepository) RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockout time.Duration) (principal.Principal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.principals[id]
	if !ok {
		return principal.Principal{}, principal.ErrNotFound
	}
	now := time.Now()
	if p.Locked(now) {
		return *p, nil
	}
	p.LoginAttempts++
	if p.LoginAttempts >= maxAttempts {
		p.LockedUntil = null.TimeFrom(now.Add(lockout))
	}
	return *p, nil
}

func (repo *principalRepository) ResetLoginState(ctx context.Context, id string, loginAt time.Time) (principal.Principal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.principals[id]
	if !ok {
		return principal.Principal{}, principal.ErrNotFound
	}
	p.LoginAttempts = 0
	p.LockedUntil = null.Time{}
	if !loginAt.IsZero() {
		p.LastLoginAt = null.TimeFrom(loginAt.UTC())
	}
	return *p, nil
}

func (repo *principalRepository) GetProfiles(ctx context.Context, principalID string) ([]principal.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	profiles := make([]principal.Profile, len(repo.db.profiles[principalID]))
	copy(profiles, repo.db.profiles[principalID])
	return profiles, nil
}

func (repo *principalRepository) CreateProfile(ctx context.Context, prof principal.Profile) (principal.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if prof.ID == "" {
		prof.ID = uuid.New().String()
	}
	repo.db.profiles[prof.PrincipalID] = append(repo.db.profiles[prof.PrincipalID], prof)
	return prof, nil
}

func (repo *principalRepository) GetGrants(ctx context.Context, principalID string) ([]authz.Grant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	grants := make([]authz.Grant, len(repo.db.grants[principalID]))
	copy(grants, repo.db.grants[principalID])
	return grants, nil
}

func (repo *principalRepository) AddGrant(ctx context.Context, principalID string, grant authz.Grant) (authz.Grant, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	repo.db.grants[principalID] = append(repo.db.grants[principalID], grant)
	return grant, nil
}

func (repo *principalRepository) RemoveGrant(ctx context.Context, principalID, grantID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	grants := repo.db.grants[principalID]
	for i, g := range grants {
		if g.ID == grantID {
			repo.db.grants[principalID] = append(grants[:i], grants[i+1:]...)
			return nil
		}
	}
	return principal.ErrNotFound
}

func isExcluded(p principal.Principal, excluded []principal.Principal) bool {
	for _, ex := range excluded {
		if ex.ID == p.ID {
			return true
		}
	}
	return false
}
