package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/digest"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/tenant"
	queuesvc "github.com/bytedeck/deck/services/queue"
)

var errUnknownTask = errors.New("unknown task")

type (
	tenantGetter interface {
		GetBySchema(ctx context.Context, schema core.Schema) (tenant.Tenant, error)
	}

	digestRunner interface {
		Run(ctx context.Context, t tenant.Tenant) (digest.Report, error)
	}

	jobObserver interface {
		ObserveJob(task string, err error)
	}
)

// newJobHandler runs the jobs of the periodic tasks known to the worker, in the tenant named by the job.
func newJobHandler(tenants tenantGetter, digests digestRunner, metrics jobObserver, logger core.Logger) queuesvc.Handler {
	return func(ctx context.Context, job schedule.Job) (err error) {
		defer func() { metrics.ObserveJob(job.Task, err) }()

		if job.Task != digest.TaskName {
			return errors.Wrap(errUnknownTask, job.Task)
		}
		t, err := tenants.GetBySchema(ctx, job.Schema())
		if err != nil {
			return errors.Wrapf(err, "finding tenant %s", job.Schema())
		}

		report, err := digests.Run(ctx, t)
		logger.Info("digest batch done", map[string]interface{}{
			"job_id":     job.ID.String(),
			"schema":     report.Schema.String(),
			"recipients": report.Recipients,
			"sent":       report.Sent,
			"duplicates": report.Duplicates,
			"invalid":    report.Invalid,
			"errored":    report.Errored,
			"failed":     report.Failed,
		})
		return err
	}
}
