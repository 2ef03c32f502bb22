package main

import (
	"context"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/principal"
)

// addUser creates a principal and its profile within a school.
func (cli *commandLine) addUser(schoolID, email, userType, displayName, pwd string) error {
	_, err := cli.prinSvc.Create(context.Background(), principal.NewPrincipal{
		SchoolID:    core.CleanString(schoolID, true /* lower */),
		Email:       core.CleanString(email, true /* lower */),
		Password:    pwd,
		UserType:    userType,
		DisplayName: core.CleanString(displayName),
	})
	return err
}
