package main

import (
	"context"
	"fmt"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/storage/database"
)

var migrateFunc = database.RunMigrations // mockable

// migrate runs the goose command on the public schema then on every tenant schema, or only on schema.
func (cli *commandLine) migrate(ctx context.Context, schema core.Schema, args []string) error {
	command, arguments := args[0], args[1:]

	if schema != "" {
		return migrateFunc(ctx, cli.conf, schema, command, arguments...)
	}

	if err := migrateFunc(ctx, cli.conf, core.PublicSchema, command, arguments...); err != nil {
		return err
	}
	tenants, err := cli.tenants.List(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		fmt.Fprintf(cli.out, "%s:\n", t.SchemaName)
		if err := migrateFunc(ctx, cli.conf, t.SchemaName, command, arguments...); err != nil {
			return err
		}
	}
	return nil
}
