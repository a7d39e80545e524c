package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/notification"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/siteconfig"
	"github.com/bytedeck/deck/core/submission"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/core/user"
	"github.com/bytedeck/deck/storage/database/inmem"
)

const Schema core.Schema = "test"

// NewConfig returns a fixed configuration that does not depend on the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Deck",
		Env:              "TEST",
		Debug:            false,
		TestMode:         true,
		SecretKey:        "test-secret",
		DefaultFromEmail: "Deck <noreply@deck.test>",
		Server: core.ServerConfig{
			Host:               ":8000",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Site:   core.SiteConfig{Scheme: "https", Domain: "deck.test"},
		Deck:   core.DeckConfig{ShortName: "Deck"},
		Digest: core.DigestConfig{Schedule: "0 5 * * *", Workers: 4, Cycle: 24 * time.Hour},
		MQ:     core.MQConfig{Exchange: "deck.tasks", Queue: "deck.digests"},
	}
}

// Repos bundles the in-memory repositories of one database.
type Repos struct {
	DB            *inmemdb.DB
	Users         user.Repository
	Notifications notification.Repository
	Submissions   submission.Repository
	Sites         siteconfig.Repository
	Tenants       tenant.Repository
	Tasks         schedule.Repository
}

func NewRepos() *Repos {
	db := inmemdb.Open()
	return &Repos{
		DB:            db,
		Users:         inmemdb.NewUserRepository(db),
		Notifications: inmemdb.NewNotificationRepository(db),
		Submissions:   inmemdb.NewSubmissionRepository(db),
		Sites:         inmemdb.NewSiteConfigRepository(db),
		Tenants:       inmemdb.NewTenantRepository(db),
		Tasks:         inmemdb.NewPeriodicTaskRepository(db),
	}
}

// PrepareTenant provisions schema and saves its site config with owner as deck owner.
// A zero owner leaves the deck without owner.
func (r *Repos) PrepareTenant(t *testing.T, schema core.Schema, owner int64) {
	t.Helper()
	ctx := context.Background()
	if err := r.DB.ProvisionSchema(ctx, schema); err != nil {
		t.Fatalf("PrepareTenant() failed: %v", err)
	}
	if _, err := r.Sites.SaveSiteConfig(ctx, schema, siteconfig.SiteConfig{DeckOwnerID: owner}); err != nil {
		t.Fatalf("PrepareTenant() failed: %v", err)
	}
}

func CreateUser(t *testing.T, repo user.Repository, schema core.Schema, uname, email string, isStaff bool, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr, err := repo.CreateUser(context.Background(), schema, user.User{
		Username:  uname,
		Email:     email,
		IsStaff:   isStaff,
		IsActive:  true,
		CreatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// SetDigestPreference turns the user's digest emails on or off.
func SetDigestPreference(t *testing.T, repo user.Repository, schema core.Schema, userID int64, on bool) {
	t.Helper()
	if _, err := repo.UpdateProfile(context.Background(), schema, user.Profile{UserID: userID, GetNotificationsByEmail: on}); err != nil {
		t.Fatalf("SetDigestPreference() failed: %v", err)
	}
}

func CreateNotification(t *testing.T, repo notification.Repository, schema core.Schema, recipientID int64, verb string, createdAt ...time.Time) notification.Notification {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	n, err := repo.CreateNotification(context.Background(), schema, notification.Notification{
		RecipientID: recipientID,
		Actor:       "Ms. T",
		Verb:        verb,
		Unread:      true,
		CreatedAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreateNotification() failed: %v", err)
	}
	return n
}

func CreateSubmission(t *testing.T, repo submission.Repository, schema core.Schema, userID int64, quest string, completed, approved bool) submission.Submission {
	t.Helper()
	var completedAt *time.Time
	if completed {
		now := time.Now().UTC()
		completedAt = &now
	}
	s, err := repo.CreateSubmission(context.Background(), schema, submission.Submission{
		QuestName:     quest,
		UserID:        userID,
		IsCompleted:   completed,
		IsApproved:    approved,
		TimeCompleted: completedAt,
	})
	if err != nil {
		t.Fatalf("CreateSubmission() failed: %v", err)
	}
	return s
}

// FakeDispatcher records the dispatched jobs. Err, when set, fails every dispatch.
type FakeDispatcher struct {
	mu   sync.Mutex
	jobs []schedule.Job
	Err  error
}

func (d *FakeDispatcher) Dispatch(_ context.Context, job schedule.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *FakeDispatcher) Jobs() []schedule.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]schedule.Job(nil), d.jobs...)
}
