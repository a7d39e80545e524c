package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/bytedeck/deck/core"
)

// DigestTaskName identifies the notification digest batch in the periodic task table.
const DigestTaskName = "notifications.email_notifications_to_users"

// SchemaHeader is the job header naming the tenant a task runs for.
const SchemaHeader = "_schema_name"

// PeriodicTask is a recurring task registered for one tenant.
// (Task, TenantSchema) is unique.
type PeriodicTask struct {
	ID           int64       `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Task         string      `json:"task" db:"task"`
	TenantSchema core.Schema `json:"tenant_schema" db:"tenant_schema"`
	Schedule     string      `json:"schedule" db:"schedule"` // standard 5 fields cron spec
	Enabled      bool        `json:"enabled" db:"enabled"`
	OneOff       bool        `json:"one_off" db:"one_off"`
	LastRunAt    *time.Time  `json:"last_run_at" db:"last_run_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"` // UTC
}

func (t PeriodicTask) Headers() map[string]string {
	return map[string]string{SchemaHeader: t.TenantSchema.String()}
}

// Job is one run of a periodic task, handed to the workers.
type Job struct {
	ID           uuid.UUID         `json:"id"`
	Task         string            `json:"task"`
	TenantSchema core.Schema       `json:"tenant_schema"`
	Headers      map[string]string `json:"headers"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
}

func NewJob(t PeriodicTask, at time.Time) Job {
	return Job{
		ID:           uuid.New(),
		Task:         t.Task,
		TenantSchema: t.TenantSchema,
		Headers:      t.Headers(),
		ScheduledAt:  at.UTC(),
	}
}

// Schema returns the tenant of the job, preferring the header over the field.
func (j Job) Schema() core.Schema {
	if s, ok := j.Headers[SchemaHeader]; ok && s != "" {
		return core.Schema(s)
	}
	return j.TenantSchema
}

// QueryFilter applies AND operation on the set fields.
type QueryFilter struct {
	Task         string
	TenantSchema core.Schema
	Enabled      *bool
}
