package main

import (
	"context"
	"fmt"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/core/user"
)

func (cli *commandLine) createTenant(ctx context.Context, nt tenant.NewTenant) error {
	t, err := cli.tenants.Create(ctx, nt)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created tenant %q: schema %s, domain %s\n", t.Name, t.SchemaName, t.DomainURL)
	return nil
}

// addUser creates a user.User in the tenant's schema.
func (cli *commandLine) addUser(ctx context.Context, schema core.Schema, nu user.NewUser) error {
	if _, err := cli.tenants.GetBySchema(ctx, schema); err != nil {
		return err
	}
	usr, err := cli.users.Create(ctx, schema, nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created user %q (id %d) in %s\n", usr.Username, usr.ID, schema)
	return nil
}
