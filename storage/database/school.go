package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core/school"
)

const schoolColumns = "id, name, urn, dfe_number, is_active, created_at, updated_at"

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	_, err := repo.db.ExecContext(ctx,
		"INSERT INTO schools ("+schoolColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		sch.ID, sch.Name, sch.URN, sch.DfENumber, sch.IsActive, sch.CreatedAt, sch.UpdatedAt,
	)
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return school.School{}, school.ErrIDExists
	}
	if err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	var sch school.School
	err := repo.db.QueryRowxContext(ctx,
		"SELECT "+schoolColumns+" FROM schools WHERE id = $1", id,
	).Scan(schoolFields(&sch)...)
	if err == sql.ErrNoRows {
		return school.School{}, school.ErrNotFound
	}
	if err != nil {
		return school.School{}, errors.Wrap(err, "getting school")
	}
	return sch, nil
}

func (repo *schoolRepository) QueryAllSchools(ctx context.Context) ([]school.School, error) {
	rows, err := repo.db.QueryxContext(ctx, "SELECT "+schoolColumns+" FROM schools ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	defer func() { _ = rows.Close() }()

	var schools []school.School
	for rows.Next() {
		var sch school.School
		if err = rows.Scan(schoolFields(&sch)...); err != nil {
			return nil, errors.Wrap(err, "scanning school")
		}
		schools = append(schools, sch)
	}
	return schools, rows.Err()
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, sch school.School, isActive *bool) (school.School, error) {
	// only save set fields
	err := repo.db.QueryRowxContext(ctx,
		`UPDATE schools SET
			name = COALESCE(NULLIF($2, ''), name),
			urn = COALESCE(NULLIF($3, ''), urn),
			dfe_number = COALESCE(NULLIF($4, ''), dfe_number),
			is_active = COALESCE($5, is_active),
			updated_at = $6
		WHERE id = $1 RETURNING `+schoolColumns,
		sch.ID, sch.Name, sch.URN, sch.DfENumber, boolPtr(isActive), sch.UpdatedAt,
	).Scan(schoolFields(&sch)...)
	if err == sql.ErrNoRows {
		return school.School{}, school.ErrNotFound
	}
	if err != nil {
		return school.School{}, errors.Wrap(err, "updating school")
	}
	return sch, nil
}

func schoolFields(sch *school.School) []interface{} {
	return []interface{}{
		&sch.ID, &sch.Name, &sch.URN, &sch.DfENumber, &sch.IsActive, &sch.CreatedAt, &sch.UpdatedAt,
	}
}
