package main

import (
	"context"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/school"
	"github.com/tatumdale/studystreaks/core/tenant"
)

// addSchool registers a new tenant.
func (cli *commandLine) addSchool(id, name, urn, dfe string) error {
	id = core.CleanString(id, true /* lower */)
	if !core.ValidTenantID(id) {
		return tenant.ErrInvalidTenant
	}

	_, err := cli.schSvc.Create(context.Background(), school.NewSchool{
		ID:        id,
		Name:      core.CleanString(name),
		URN:       core.CleanString(urn),
		DfENumber: core.CleanString(dfe),
	})
	return err
}
