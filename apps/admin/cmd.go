package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/digest"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/core/user"
)

var errHelp = errors.New("help provided")

type (
	digestRunner interface {
		Run(ctx context.Context, t tenant.Tenant) (digest.Report, error)
	}

	commandLine struct {
		conf    *core.Config
		tenants *tenant.Service
		users   *user.Service
		digests digestRunner
		out     io.Writer
	}
)

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate [-schema SCHEMA] COMMAND [ARGS] - run a goose command on the public schema then on every tenant")
	fmt.Fprintln(cli.out, "  createtenant -name NAME -owner USERNAME [-email EMAIL] [-description TEXT] [-shortname NAME] - create a tenant")
	fmt.Fprintln(cli.out, "  adduser -schema SCHEMA -username USERNAME [-email EMAIL] [-name NAME] [-staff] - add a user to a tenant")
	fmt.Fprintln(cli.out, "  registertasks - register the periodic tasks of every tenant")
	fmt.Fprintln(cli.out, "  senddigests [-schema SCHEMA] - send the notification digests now")
	fmt.Fprintln(cli.out, "  token -username USERNAME [-expires DURATION] - issue an API operator token")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	migrateCmd := flag.NewFlagSet("migrate", flag.ContinueOnError)
	migrateSchema := migrateCmd.String("schema", "", "Only migrate this schema.")

	createTenantCmd := flag.NewFlagSet("createtenant", flag.ContinueOnError)
	createTenantName := createTenantCmd.String("name", "", "The tenant's name; it determines the schema and the domain.")
	createTenantOwner := createTenantCmd.String("owner", "", "The deck owner's username.")
	createTenantEmail := createTenantCmd.String("email", "", "The deck owner's email.")
	createTenantDesc := createTenantCmd.String("description", "", "The tenant's description.")
	createTenantShortName := createTenantCmd.String("shortname", "", "The deck's short name, used in email subjects.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserSchema := addUserCmd.String("schema", "", "The tenant's schema.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserStaff := addUserCmd.Bool("staff", false, "Whether the user approves quest submissions.")

	sendDigestsCmd := flag.NewFlagSet("senddigests", flag.ContinueOnError)
	sendDigestsSchema := sendDigestsCmd.String("schema", "", "Only send the digests of this tenant.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenUname := tokenCmd.String("username", "", "The operator's username.")
	tokenExpires := tokenCmd.Duration("expires", cli.conf.Server.JWTExpirationDelta, "The token's lifetime.")

	for _, fs := range []*flag.FlagSet{migrateCmd, createTenantCmd, addUserCmd, sendDigestsCmd, tokenCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if err := migrateCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if migrateCmd.NArg() == 0 {
			migrateCmd.Usage()
			return errHelp
		}
		return cli.migrate(ctx, core.Schema(*migrateSchema), migrateCmd.Args())
	case "createtenant":
		if err := createTenantCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *createTenantName == "" || *createTenantOwner == "" {
			createTenantCmd.Usage()
			return errHelp
		}
		return cli.createTenant(ctx, tenant.NewTenant{
			Name:          *createTenantName,
			Description:   *createTenantDesc,
			OwnerUsername: *createTenantOwner,
			OwnerEmail:    *createTenantEmail,
			ShortName:     *createTenantShortName,
		})
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserSchema == "" || *addUserUname == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, core.Schema(*addUserSchema), user.NewUser{
			Username: *addUserUname,
			Email:    *addUserEmail,
			Name:     *addUserName,
			IsStaff:  *addUserStaff,
		})
	case "registertasks":
		return cli.registerTasks(ctx)
	case "senddigests":
		if err := sendDigestsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.sendDigests(ctx, core.Schema(*sendDigestsSchema))
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tokenUname == "" || *tokenExpires <= 0 {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenUname, *tokenExpires)
	default:
		cli.printUsage()
		return errHelp
	}
}

// tenantsOf returns every tenant, or the one of schema when set.
func (cli *commandLine) tenantsOf(ctx context.Context, schema core.Schema) ([]tenant.Tenant, error) {
	if schema != "" {
		t, err := cli.tenants.GetBySchema(ctx, schema)
		if err != nil {
			return nil, err
		}
		return []tenant.Tenant{t}, nil
	}
	return cli.tenants.List(ctx)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
