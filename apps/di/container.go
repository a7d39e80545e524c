// Package di assembles the dependencies shared by the binaries.
package di

import (
	"context"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/digest"
	"github.com/bytedeck/deck/core/notification"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/siteconfig"
	"github.com/bytedeck/deck/core/submission"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/core/user"
	cachesvc "github.com/bytedeck/deck/services/cache"
	emailsvc "github.com/bytedeck/deck/services/email"
	logsvc "github.com/bytedeck/deck/services/logger"
	metricssvc "github.com/bytedeck/deck/services/metrics"
	"github.com/bytedeck/deck/storage/database"
	sqlxrepos "github.com/bytedeck/deck/storage/database/sqlx"
)

type Container struct {
	Conf       *core.Config
	Logger     *logsvc.RollbarLogger
	DB         *sqlx.DB
	Redis      *redis.Client
	Validate   *validator.Validate
	Translator ut.Translator
	Registry   *prometheus.Registry
	Metrics    *metricssvc.DigestMetrics
	Mailer     core.EmailService

	UserRepo         user.Repository
	NotificationRepo notification.Repository
	SubmissionRepo   submission.Repository
	SiteRepo         siteconfig.Repository
	TenantRepo       tenant.Repository
	TaskRepo         schedule.Repository

	Users         *user.Service
	Notifications *notification.Service
	Schedule      *schedule.Service
	Tenants       *tenant.Service
	Digests       *digest.Builder
}

// NewLogger returns the zap backed rollbar logger of conf.
func NewLogger(conf *core.Config) (*logsvc.RollbarLogger, error) {
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up zap")
	}
	return logsvc.NewRollbarLogger(zl, conf), nil
}

// SetUpDB creates the database if needed, opens it and migrates the public schema.
func SetUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// New wires every dependency on top of the database.
func New(conf *core.Config, logger *logsvc.RollbarLogger, db *sqlx.DB) *Container {
	validate, translator := core.NewValidator()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Container{
		Conf:       conf,
		Logger:     logger,
		DB:         db,
		Redis:      cachesvc.NewRedisClient(conf.Redis),
		Validate:   validate,
		Translator: translator,
		Registry:   registry,
		Metrics:    metricssvc.NewDigestMetrics(registry),
		Mailer:     newEmailService(conf, logger),

		UserRepo:         sqlxrepos.NewUserRepository(db),
		NotificationRepo: sqlxrepos.NewNotificationRepository(db),
		SubmissionRepo:   sqlxrepos.NewSubmissionRepository(db),
		SiteRepo:         sqlxrepos.NewSiteConfigRepository(db),
		TenantRepo:       sqlxrepos.NewTenantRepository(db),
		TaskRepo:         sqlxrepos.NewPeriodicTaskRepository(db),
	}

	c.Users = user.NewService(c.UserRepo, validate)
	c.Notifications = notification.NewService(c.NotificationRepo, validate)
	c.Schedule = schedule.NewService(c.TaskRepo, conf.Digest.Schedule)
	c.Tenants = tenant.NewService(tenant.Deps{
		Repo:      c.TenantRepo,
		Provision: database.NewProvisioner(conf),
		Users:     c.UserRepo,
		Sites:     c.SiteRepo,
		Schedule:  c.Schedule,
		Validate:  validate,
		Logger:    logger,
	}, conf.Site.Domain, conf.Deck.ShortName)
	c.Digests = digest.NewBuilder(c.UserRepo, c.NotificationRepo, c.SubmissionRepo, c.SiteRepo, conf.Deck.ShortName)
	return c
}

// DigestTask returns the batch digest task, deduplicated through redis.
func (c *Container) DigestTask() *digest.Task {
	return digest.NewTask(c.Digests, c.Mailer, cachesvc.NewDeduper(c.Redis), c.Metrics, c.Logger, digest.TaskConfig{
		Workers: c.Conf.Digest.Workers,
		Cycle:   c.Conf.Digest.Cycle,
		RootURL: c.Conf.RootURL,
	})
}

// StatusCheck reports whether the database answers.
func (c *Container) StatusCheck(ctx context.Context) error {
	return database.StatusCheck(ctx, c.DB)
}

func (c *Container) Close() {
	if err := c.Redis.Close(); err != nil {
		c.Logger.Warn("closing redis", err)
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.Error("closing database", err)
	}
	_ = c.Logger.Sync()
}
