package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/bytedeck/deck/core/schedule"
)

type periodicTaskRepository struct {
	db *DB
}

var _ schedule.Repository = (*periodicTaskRepository)(nil) // interface compliance check

func NewPeriodicTaskRepository(db *DB) *periodicTaskRepository {
	return &periodicTaskRepository{db: db}
}

// RegisterTask checks and inserts under the write lock, so the (task, tenant) pair stays unique.
func (repo *periodicTaskRepository) RegisterTask(_ context.Context, t schedule.PeriodicTask) (schedule.PeriodicTask, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.tasks {
		if existing.Task == t.Task && existing.TenantSchema == t.TenantSchema {
			return *existing, false, nil
		}
	}
	t.ID = repo.db.nextPK()
	repo.db.tasks[t.ID] = &t
	return t, true, nil
}

func (repo *periodicTaskRepository) QueryTasks(_ context.Context, filter *schedule.QueryFilter) ([]schedule.PeriodicTask, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tasks := make([]schedule.PeriodicTask, 0, len(repo.db.tasks))
	for _, t := range repo.db.tasks {
		if filter != nil {
			if filter.Task != "" && t.Task != filter.Task {
				continue
			}
			if filter.TenantSchema != "" && t.TenantSchema != filter.TenantSchema {
				continue
			}
			if filter.Enabled != nil && t.Enabled != *filter.Enabled {
				continue
			}
		}
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (repo *periodicTaskRepository) MarkRun(_ context.Context, id int64, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.tasks[id]
	if !ok {
		return schedule.ErrNotFound
	}
	at = at.UTC()
	t.LastRunAt = &at
	return nil
}

func (repo *periodicTaskRepository) DisableTask(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.tasks[id]
	if !ok {
		return schedule.ErrNotFound
	}
	t.Enabled = false
	return nil
}
