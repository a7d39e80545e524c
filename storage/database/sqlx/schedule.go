package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/schedule"
)

var periodicTaskColumns = []string{
	"id", "name", "task", "tenant_schema", "schedule", "enabled", "one_off", "last_run_at", "created_at",
}

type periodicTaskRepository struct {
	exec core.DBExecutor
}

var _ schedule.Repository = (*periodicTaskRepository)(nil) // interface compliance check

func NewPeriodicTaskRepository(exec core.DBExecutor) *periodicTaskRepository {
	return &periodicTaskRepository{exec: exec}
}

// RegisterTask relies on the (task, tenant_schema) unique key: concurrent registrations of
// the same pair insert a single row and every caller gets it back.
func (repo periodicTaskRepository) RegisterTask(ctx context.Context, t schedule.PeriodicTask) (schedule.PeriodicTask, bool, error) {
	tbl, _ := table(core.PublicSchema, "periodic_task")
	q, args, err := psql.Insert(tbl).
		Columns(periodicTaskColumns[1:]...).
		Values(t.Name, t.Task, t.TenantSchema, t.Schedule, t.Enabled, t.OneOff, t.LastRunAt, t.CreatedAt.UTC()).
		Suffix("ON CONFLICT (task, tenant_schema) DO NOTHING RETURNING " + joinColumns("", periodicTaskColumns...)).
		ToSql()
	if err != nil {
		return schedule.PeriodicTask{}, false, errors.Wrap(err, "building periodic task insert")
	}

	var created schedule.PeriodicTask
	err = sqlx.GetContext(ctx, repo.exec, &created, q, args...)
	if err == nil {
		return created, true, nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return schedule.PeriodicTask{}, false, errors.Wrap(err, "inserting periodic task")
	}

	existing, err := repo.QueryTasks(ctx, &schedule.QueryFilter{Task: t.Task, TenantSchema: t.TenantSchema})
	if err != nil {
		return schedule.PeriodicTask{}, false, err
	}
	if len(existing) == 0 {
		return schedule.PeriodicTask{}, false, schedule.ErrNotFound
	}
	return existing[0], false, nil
}

func (repo periodicTaskRepository) QueryTasks(ctx context.Context, filter *schedule.QueryFilter) ([]schedule.PeriodicTask, error) {
	tbl, _ := table(core.PublicSchema, "periodic_task")
	qb := psql.Select(periodicTaskColumns...).From(tbl).OrderBy("id ASC")
	if filter != nil {
		if filter.Task != "" {
			qb = qb.Where(sq.Eq{"task": filter.Task})
		}
		if filter.TenantSchema != "" {
			qb = qb.Where(sq.Eq{"tenant_schema": filter.TenantSchema})
		}
		if filter.Enabled != nil {
			qb = qb.Where(sq.Eq{"enabled": *filter.Enabled})
		}
	}

	q, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building periodic tasks query")
	}
	tasks := make([]schedule.PeriodicTask, 0)
	if err := sqlx.SelectContext(ctx, repo.exec, &tasks, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying periodic tasks")
	}
	return tasks, nil
}

func (repo periodicTaskRepository) update(ctx context.Context, id int64, field string, value interface{}) error {
	tbl, _ := table(core.PublicSchema, "periodic_task")
	q, args, err := psql.Update(tbl).Set(field, value).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building periodic task update")
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "updating periodic task")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

func (repo periodicTaskRepository) MarkRun(ctx context.Context, id int64, at time.Time) error {
	return repo.update(ctx, id, "last_run_at", at.UTC())
}

func (repo periodicTaskRepository) DisableTask(ctx context.Context, id int64) error {
	return repo.update(ctx, id, "enabled", false)
}
