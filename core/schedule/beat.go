package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/bytedeck/deck/core"
)

// Dispatcher hands jobs over to the workers, eg. through a message queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

type beatEntry struct {
	id   cron.EntryID
	spec string
}

// Beat fires the enabled periodic tasks on their cron schedules and dispatches a Job for each run.
type Beat struct {
	repo       Repository
	dispatcher Dispatcher
	logger     core.Logger
	cron       *cron.Cron

	mu      sync.Mutex
	entries map[int64]beatEntry // {task id: entry}
}

func NewBeat(repo Repository, dispatcher Dispatcher, logger core.Logger) *Beat {
	return &Beat{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		cron:       cron.New(cron.WithLocation(time.UTC)),
		entries:    make(map[int64]beatEntry),
	}
}

// Sync reloads the enabled tasks: new or rescheduled tasks are (re)added, vanished ones removed.
func (b *Beat) Sync(ctx context.Context) error {
	enabled := true
	tasks, err := b.repo.QueryTasks(ctx, &QueryFilter{Enabled: &enabled})
	if err != nil {
		return errors.Wrap(err, "loading periodic tasks")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		seen[t.ID] = true
		if e, ok := b.entries[t.ID]; ok {
			if e.spec == t.Schedule {
				continue
			}
			b.cron.Remove(e.id)
		}

		task := t
		id, err := b.cron.AddFunc(task.Schedule, func() { b.fire(task) })
		if err != nil {
			b.logger.Error("beat.Sync: invalid schedule", err, map[string]interface{}{"task": task.Name})
			delete(b.entries, task.ID)
			continue
		}
		b.entries[task.ID] = beatEntry{id: id, spec: task.Schedule}
	}
	for tid, e := range b.entries {
		if !seen[tid] {
			b.cron.Remove(e.id)
			delete(b.entries, tid)
		}
	}
	return nil
}

// Len returns the number of scheduled tasks.
func (b *Beat) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Beat) Start() { b.cron.Start() }

// Stop stops the scheduler; the returned context is done once running fires complete.
func (b *Beat) Stop() context.Context { return b.cron.Stop() }

func (b *Beat) fire(t PeriodicTask) {
	ctx := context.Background()
	now := time.Now().UTC()

	if err := b.dispatcher.Dispatch(ctx, NewJob(t, now)); err != nil {
		b.logger.Error("beat.fire: dispatch failed", err, map[string]interface{}{"task": t.Name})
		return
	}
	if err := b.repo.MarkRun(ctx, t.ID, now); err != nil {
		b.logger.Warn("beat.fire: marking run", err, map[string]interface{}{"task": t.Name})
	}
	if t.OneOff {
		if err := b.repo.DisableTask(ctx, t.ID); err != nil {
			b.logger.Warn("beat.fire: disabling one-off task", err, map[string]interface{}{"task": t.Name})
		}
		b.mu.Lock()
		if e, ok := b.entries[t.ID]; ok {
			b.cron.Remove(e.id)
			delete(b.entries, t.ID)
		}
		b.mu.Unlock()
	}
}

// RunNow dispatches the task immediately, outside of its schedule.
func (b *Beat) RunNow(ctx context.Context, t PeriodicTask) error {
	return b.dispatcher.Dispatch(ctx, NewJob(t, time.Now()))
}
