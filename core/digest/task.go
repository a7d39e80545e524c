package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/core/user"
)

// TaskName identifies the batch task in the periodic task table and on the job queue.
const TaskName = schedule.DigestTaskName

// Outcomes of a single recipient's digest.
const (
	OutcomeSent      = "sent"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid_recipient"
	OutcomeErrored   = "errored"
	OutcomeFailed    = "delivery_failed"
)

type (
	// Deduper guards against sending a recipient two digests in the same cycle.
	Deduper interface {
		// Claim takes key for ttl and reports whether it was free.
		Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
		Release(ctx context.Context, key string) error
	}

	Metrics interface {
		ObserveDigest(schema core.Schema, outcome string)
		ObserveBatch(schema core.Schema, duration time.Duration)
	}

	// Report summarises one batch run.
	Report struct {
		Schema     core.Schema `json:"schema"`
		Recipients int         `json:"recipients"`
		Sent       int         `json:"sent"`
		Duplicates int         `json:"duplicates"`
		Invalid    int         `json:"invalid"`
		Errored    int         `json:"errored"`
		Failed     int         `json:"failed"`
	}

	TaskConfig struct {
		Workers int           // recipients processed concurrently
		Cycle   time.Duration // a recipient gets at most one digest per cycle
		// RootURL returns the absolute URL of a tenant's site from its domain.
		RootURL func(domain string) string
	}

	// Task is the batch digest of one tenant: it builds and sends the digest of every recipient.
	Task struct {
		builder *Builder
		mailer  core.EmailService
		deduper Deduper
		metrics Metrics
		logger  core.Logger
		conf    TaskConfig
	}
)

// NewTask returns the batch task. deduper and metrics are optional.
func NewTask(builder *Builder, mailer core.EmailService, deduper Deduper, metrics Metrics, logger core.Logger, conf TaskConfig) *Task {
	if deduper == nil {
		deduper = nopDeduper{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = core.NewNopLogger()
	}
	if conf.Workers < 1 {
		conf.Workers = 1
	}
	if conf.Cycle <= 0 {
		conf.Cycle = 24 * time.Hour
	}
	return &Task{builder: builder, mailer: mailer, deduper: deduper, metrics: metrics, logger: logger, conf: conf}
}

// DedupKey is the deduper key of a recipient within the cycle starting at cycle.
func DedupKey(schema core.Schema, userID int64, cycle time.Time) string {
	return fmt.Sprintf("digest:%s:%d:%d", schema, userID, cycle.Unix())
}

// Run sends the digests of the tenant. A recipient's failure never stops the others:
// invalid recipients and assembly errors are logged and counted, transport errors are
// returned together as a *DeliveryError once the batch completes.
func (t *Task) Run(ctx context.Context, tn tenant.Tenant) (Report, error) {
	start := time.Now()
	report := Report{Schema: tn.SchemaName}
	defer func() { t.metrics.ObserveBatch(tn.SchemaName, time.Since(start)) }()

	rootURL := t.conf.RootURL(tn.DomainURL)
	recipients, conf, err := t.builder.recipients(ctx, tn.SchemaName, rootURL)
	if err != nil {
		return report, errors.Wrapf(err, "selecting digest recipients of %s", tn.SchemaName)
	}
	report.Recipients = len(recipients)
	subject := t.builder.subjectOf(conf)
	cycle := start.UTC().Truncate(t.conf.Cycle)

	var (
		mu       sync.Mutex
		failures = make(map[int64]error)
		g        errgroup.Group
	)
	g.SetLimit(t.conf.Workers)
	for _, r := range recipients {
		r := r
		g.Go(func() error {
			outcome, err := t.deliver(ctx, tn.SchemaName, r, rootURL, subject, cycle)
			t.metrics.ObserveDigest(tn.SchemaName, outcome)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeSent:
				report.Sent++
			case OutcomeDuplicate:
				report.Duplicates++
			case OutcomeInvalid:
				report.Invalid++
			case OutcomeErrored:
				report.Errored++
			case OutcomeFailed:
				report.Failed++
				failures[r.ID] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(failures) > 0 {
		return report, &DeliveryError{Schema: tn.SchemaName, Failures: failures}
	}
	return report, nil
}

func (t *Task) deliver(ctx context.Context, schema core.Schema, r user.User, rootURL, subject string, cycle time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeErrored, err
	}
	extra := map[string]interface{}{"schema": schema.String(), "user_id": r.ID}

	key := DedupKey(schema, r.ID, cycle)
	claimed, err := t.deduper.Claim(ctx, key, t.conf.Cycle)
	if err != nil {
		// fail open
		t.logger.Warn("digest.Task: dedup unavailable", err, extra)
		claimed = true
	}
	if !claimed {
		return OutcomeDuplicate, nil
	}
	// the key must be freed even when the batch is being cancelled
	release := func() {
		if err := t.deduper.Release(context.WithoutCancel(ctx), key); err != nil {
			t.logger.Warn("digest.Task: releasing dedup key", err, extra)
		}
	}

	email, err := t.builder.build(ctx, schema, r, rootURL, subject)
	if err != nil {
		release()
		if errors.Is(err, ErrInvalidRecipient) {
			t.logger.Warn("digest.Task: skipping recipient", err, extra)
			return OutcomeInvalid, err
		}
		t.logger.Error("digest.Task: building digest", err, extra)
		return OutcomeErrored, err
	}

	if err := t.mailer.Send(ctx, email.Message()); err != nil {
		release()
		t.logger.Error("digest.Task: sending digest", err, extra)
		return OutcomeFailed, err
	}
	return OutcomeSent, nil
}

type nopDeduper struct{}

func (nopDeduper) Claim(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (nopDeduper) Release(context.Context, string) error                      { return nil }

type nopMetrics struct{}

func (nopMetrics) ObserveDigest(core.Schema, string)       {}
func (nopMetrics) ObserveBatch(core.Schema, time.Duration) {}
