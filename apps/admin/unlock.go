package main

import (
	"context"

	"github.com/tatumdale/studystreaks/core"
)

// unlock clears a lockout ahead of its expiry.
func (cli *commandLine) unlock(email string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	p, err := cli.prinSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	_, err = cli.prinSvc.Unlock(ctx, p.ID, "admin-cli")
	return err
}
