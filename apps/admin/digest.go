package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/digest"
)

func (cli *commandLine) registerTasks(ctx context.Context) error {
	created, err := cli.tenants.RegisterTasks(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "registered %d new periodic task(s)\n", created)
	return nil
}

// sendDigests runs the digest batch of every tenant, or only of schema, in this process.
// Delivery failures of a tenant do not stop the next ones; they are returned together.
func (cli *commandLine) sendDigests(ctx context.Context, schema core.Schema) error {
	tenants, err := cli.tenantsOf(ctx, schema)
	if err != nil {
		return err
	}

	var failed int
	for _, t := range tenants {
		start := time.Now()
		report, err := cli.digests.Run(ctx, t)
		fmt.Fprintf(cli.out, "%s: %d recipient(s), %d sent, %d duplicate(s), %d invalid, %d errored, %d failed (%s)\n",
			t.SchemaName, report.Recipients, report.Sent, report.Duplicates, report.Invalid, report.Errored, report.Failed,
			formatDuration(time.Since(start)))
		if err != nil {
			if !errors.Is(err, digest.ErrDeliveryFailure) {
				return err
			}
			fmt.Fprintf(cli.out, "  %v\n", err)
			failed++
		}
	}
	if failed > 0 {
		return errors.Wrapf(digest.ErrDeliveryFailure, "%d tenant(s) with undelivered digests", failed)
	}
	return nil
}
