package main

import (
	"context"
	"time"

	"github.com/tatumdale/studystreaks/core"
)

// resetPassword sets a new password on the account.
func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	p, err := cli.prinSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := p.SetPassword(pwd, cli.conf.Auth.BcryptCost); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	_, err = cli.repo.UpdatePrincipal(ctx, p, nil)
	return err
}
