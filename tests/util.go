package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/principal"
	"github.com/tatumdale/studystreaks/core/school"
	"github.com/tatumdale/studystreaks/core/tenant"
)

// Logger is a recording core.Logger for tests.
type Logger struct {
	mu      sync.Mutex
	Entries []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, fmt.Sprintf("%s: %s %v", level, msg, args))
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

func CreateSchool(t *testing.T, repo school.Repository, id, name string) school.School {
	t.Helper()
	now := time.Now().UTC()
	sch, err := repo.CreateSchool(context.Background(), school.School{
		ID:        id,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return sch
}

func CreatePrincipal(
	t *testing.T,
	repo principal.Repository,
	schoolID, email, pwd, userType string,
	isActive bool,
	grants ...authz.Grant,
) principal.Principal {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	p := principal.Principal{
		SchoolID:  schoolID,
		Email:     email,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := p.SetPassword(pwd, 4 /* bcrypt.MinCost */); err != nil {
			t.Fatalf("CreatePrincipal() failed: %v", err)
		}
	}
	p, err := repo.CreatePrincipal(ctx, p)
	if err != nil {
		t.Fatalf("CreatePrincipal() failed: %v", err)
	}

	if userType != "" {
		_, err = repo.CreateProfile(ctx, principal.Profile{
			PrincipalID: p.ID,
			SchoolID:    schoolID,
			Type:        userType,
			DisplayName: email,
		})
		if err != nil {
			t.Fatalf("CreatePrincipal() failed: %v", err)
		}
	}

	for _, g := range grants {
		g.SchoolID = schoolID
		if _, err = repo.AddGrant(ctx, p.ID, g); err != nil {
			t.Fatalf("CreatePrincipal() failed: %v", err)
		}
	}
	return p
}

func CreateEntity(t *testing.T, store tenant.Store, kind tenant.Kind, entity tenant.Entity) tenant.Entity {
	t.Helper()
	created, err := store.Create(context.Background(), kind, entity)
	if err != nil {
		t.Fatalf("CreateEntity(%s) failed: %v", kind, err)
	}
	return created
}

// Perm is a shorthand permission constructor.
func Perm(resource, action, scope string) authz.Permission {
	return authz.Permission{Resource: resource, Action: action, Scope: scope, RiskLevel: authz.RiskLow}
}

// Grant is a shorthand grant constructor; narrowing lists are set by the caller.
func Grant(schoolID string, role authz.Role, perms ...authz.Permission) authz.Grant {
	return authz.Grant{
		SchoolID:    schoolID,
		Role:        role,
		Permissions: perms,
	}
}

// ExpiredGrant is Grant with an expiry in the past.
func ExpiredGrant(schoolID string, role authz.Role, perms ...authz.Permission) authz.Grant {
	g := Grant(schoolID, role, perms...)
	g.ExpiresAt = null.TimeFrom(time.Now().Add(-time.Hour))
	return g
}
