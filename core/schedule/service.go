package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/bytedeck/deck/core"
)

var (
	// errors
	ErrNotFound        = errors.New("periodic task not found")
	ErrInvalidSchedule = errors.New("invalid cron schedule")
	ErrInvalidSchema   = errors.New("invalid tenant schema")
)

type (
	Repository interface {
		// RegisterTask inserts t unless an entry with the same (Task, TenantSchema) exists.
		// It returns the stored entry and whether it was created by this call.
		RegisterTask(ctx context.Context, t PeriodicTask) (PeriodicTask, bool, error)
		QueryTasks(ctx context.Context, filter *QueryFilter) ([]PeriodicTask, error)
		MarkRun(ctx context.Context, id int64, at time.Time) error
		DisableTask(ctx context.Context, id int64) error
	}

	Service struct {
		repo           Repository
		digestSchedule string
	}
)

func NewService(repo Repository, digestSchedule string) *Service {
	return &Service{repo: repo, digestSchedule: digestSchedule}
}

// Register adds a recurring task for the tenant. Registering an existing (task, tenant) pair is a no-op
// returning the stored entry.
func (svc *Service) Register(ctx context.Context, task string, schema core.Schema, spec string) (PeriodicTask, bool, error) {
	if !schema.Valid() || schema.IsPublic() {
		return PeriodicTask{}, false, errors.Wrap(ErrInvalidSchema, schema.String())
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return PeriodicTask{}, false, errors.Wrapf(ErrInvalidSchedule, "%q: %v", spec, err)
	}

	return svc.repo.RegisterTask(ctx, PeriodicTask{
		Name:         fmt.Sprintf("%s (%s)", task, schema),
		Task:         task,
		TenantSchema: schema,
		Schedule:     spec,
		Enabled:      true,
		OneOff:       false,
		CreatedAt:    time.Now().UTC(),
	})
}

// RegisterDigestTask registers the daily notification digest of the tenant.
func (svc *Service) RegisterDigestTask(ctx context.Context, schema core.Schema) (PeriodicTask, bool, error) {
	return svc.Register(ctx, DigestTaskName, schema, svc.digestSchedule)
}

func (svc *Service) List(ctx context.Context, filter QueryFilter) ([]PeriodicTask, error) {
	return svc.repo.QueryTasks(ctx, &filter)
}
