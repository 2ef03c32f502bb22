package school

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("school not found")
	ErrIDExists = errors.New("a school with this identifier already exists")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School) (School, error)
		GetSchoolByID(ctx context.Context, id string) (School, error)
		QueryAllSchools(ctx context.Context) ([]School, error)
		// UpdateSchool never touches the ID; only name, regulatory codes
		// and the active flag are mutable.
		UpdateSchool(ctx context.Context, sch School, isActive *bool) (School, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	now := time.Now().UTC()
	sch := School{
		ID:        ns.ID,
		Name:      ns.Name,
		URN:       ns.URN,
		DfENumber: ns.DfENumber,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateSchool(ctx, sch)
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchoolByID(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]School, error) {
	return svc.repo.QueryAllSchools(ctx)
}

// Deactivate soft-disables a tenant; its data stays for retention-driven purge.
func (svc *Service) Deactivate(ctx context.Context, id string) (School, error) {
	sch, err := svc.repo.GetSchoolByID(ctx, id)
	if err != nil {
		return School{}, err
	}
	sch.UpdatedAt = time.Now().UTC()
	inactive := false
	return svc.repo.UpdateSchool(ctx, sch, &inactive)
}
