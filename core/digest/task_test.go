package digest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/digest"
	"github.com/bytedeck/deck/core/siteconfig"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/core/user"
	emailsvc "github.com/bytedeck/deck/services/email"
	"github.com/bytedeck/deck/tests"
)

type memDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (d *memDeduper) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.keys[key] {
		return false, nil
	}
	d.keys[key] = true
	return true, nil
}

func (d *memDeduper) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(d.keys, key)
	return nil
}

// countingSites counts the site config reads.
type countingSites struct {
	siteconfig.Repository

	mu    sync.Mutex
	reads int
}

func (s *countingSites) GetSiteConfig(ctx context.Context, schema core.Schema) (siteconfig.SiteConfig, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.Repository.GetSiteConfig(ctx, schema)
}

// cancellingMailer cancels the batch while sending, then fails.
type cancellingMailer struct {
	cancel context.CancelFunc
}

func (m cancellingMailer) Send(context.Context, *core.EmailMessage) error {
	m.cancel()
	return context.Canceled
}

type memMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	batches  int
}

func (m *memMetrics) ObserveDigest(_ core.Schema, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *memMetrics) ObserveBatch(core.Schema, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
}

type taskFixture struct {
	repos   *testutil.Repos
	mailer  *emailsvc.ConsoleServiceMock
	deduper *memDeduper
	metrics *memMetrics
	task    *digest.Task
	tenant  tenant.Tenant
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	repos := testutil.NewRepos()
	f := &taskFixture{
		repos:   repos,
		mailer:  emailsvc.NewConsoleServiceMock(testutil.NewConfig()),
		deduper: &memDeduper{keys: make(map[string]bool)},
		metrics: &memMetrics{outcomes: make(map[string]int)},
		tenant:  tenant.Tenant{ID: 1, Name: "school", SchemaName: schema, DomainURL: "school.deck.test"},
	}
	f.task = digest.NewTask(newBuilder(repos), f.mailer, f.deduper, f.metrics, nil, digest.TaskConfig{
		Workers: 3,
		Cycle:   24 * time.Hour,
		RootURL: func(domain string) string { return "https://" + domain },
	})
	return f
}

// recipient creates a user that qualifies for a digest.
func (f *taskFixture) recipient(t *testing.T, uname, email string) user.User {
	t.Helper()
	usr := testutil.CreateUser(t, f.repos.Users, schema, uname, email, false)
	testutil.SetDigestPreference(t, f.repos.Users, schema, usr.ID, true)
	testutil.CreateNotification(t, f.repos.Notifications, schema, usr.ID, "commented")
	return usr
}

func (f *taskFixture) sentTo() []string {
	var to []string
	for _, msg := range f.mailer.SentMessages() {
		for _, a := range msg.To {
			to = append(to, a.Address)
		}
	}
	return to
}

func TestTask_Run(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	require.NoError(t, f.repos.DB.ProvisionSchema(ctx, schema))
	owner := testutil.CreateUser(t, f.repos.Users, schema, "owner", "", true) // no email
	f.repos.PrepareTenant(t, schema, owner.ID)
	f.recipient(t, "alice", "alice@school.test")
	f.recipient(t, "bob", "bob@school.test")

	report, err := f.task.Run(ctx, f.tenant)
	require.NoError(t, err)
	assert.Equal(t, digest.Report{Schema: schema, Recipients: 3, Sent: 2, Invalid: 1}, report)
	assert.ElementsMatch(t, []string{"alice@school.test", "bob@school.test"}, f.sentTo())
	for _, msg := range f.mailer.SentMessages() {
		assert.Equal(t, "Deck Notifications", msg.Subject)
		assert.Len(t, msg.To, 1)
	}
	assert.Equal(t, map[string]int{digest.OutcomeSent: 2, digest.OutcomeInvalid: 1}, f.metrics.outcomes)
	assert.Equal(t, 1, f.metrics.batches)

	t.Run("same cycle does not resend", func(t *testing.T) {
		f.mailer.Reset()
		report, err := f.task.Run(ctx, f.tenant)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Duplicates)
		assert.Equal(t, 1, report.Invalid)
		assert.Empty(t, f.mailer.SentMessages())
	})
}

func TestTask_Run_deliveryFailure(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	f.repos.PrepareTenant(t, schema, 0)
	alice := f.recipient(t, "alice", "alice@school.test")
	bob := f.recipient(t, "bob", "bob@school.test")
	carol := f.recipient(t, "carol", "carol@school.test")

	f.mailer.FailFor["bob@school.test"] = errors.New("mailbox full")
	f.mailer.FailFor["carol@school.test"] = errors.New("rejected")

	report, err := f.task.Run(ctx, f.tenant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, digest.ErrDeliveryFailure))

	var derr *digest.DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, schema, derr.Schema)
	assert.Len(t, derr.Failures, 2)
	assert.Contains(t, derr.Failures, bob.ID)
	assert.Contains(t, derr.Failures, carol.ID)
	assert.NotContains(t, derr.Failures, alice.ID)
	assert.Contains(t, err.Error(), "2 digest(s) of test not delivered")

	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, []string{"alice@school.test"}, f.sentTo())

	t.Run("retry only resends the failures", func(t *testing.T) {
		f.mailer.Reset()
		delete(f.mailer.FailFor, "bob@school.test")
		delete(f.mailer.FailFor, "carol@school.test")

		report, err := f.task.Run(ctx, f.tenant)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Duplicates)
		assert.Equal(t, 2, report.Sent)
		assert.ElementsMatch(t, []string{"bob@school.test", "carol@school.test"}, f.sentTo())
	})
}

func TestTask_Run_dedupUnavailable(t *testing.T) {
	f := newTaskFixture(t)
	f.repos.PrepareTenant(t, schema, 0)
	f.recipient(t, "alice", "alice@school.test")
	f.deduper.err = errors.New("connection refused")

	report, err := f.task.Run(context.Background(), f.tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
}

func TestTask_Run_invalidRootURL(t *testing.T) {
	f := newTaskFixture(t)
	f.repos.PrepareTenant(t, schema, 0)
	f.tenant.DomainURL = ""
	f.task = digest.NewTask(newBuilder(f.repos), f.mailer, nil, nil, nil, digest.TaskConfig{
		RootURL: func(domain string) string { return domain },
	})

	_, err := f.task.Run(context.Background(), f.tenant)
	assert.True(t, errors.Is(err, digest.ErrInvalidRootURL), "err = %v", err)
}

func TestDedupKey(t *testing.T) {
	cycle := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "digest:school:42:1709251200", digest.DedupKey("school", 42, cycle))
	assert.NotEqual(t, digest.DedupKey("school", 42, cycle), digest.DedupKey("college", 42, cycle))
}

func TestTask_Run_readsSiteConfigOnce(t *testing.T) {
	f := newTaskFixture(t)
	f.repos.PrepareTenant(t, schema, 0)
	_, err := f.repos.Sites.SaveSiteConfig(context.Background(), schema, siteconfig.SiteConfig{ShortName: "Hacker Space"})
	require.NoError(t, err)
	for _, name := range []string{"alice", "bob", "carol"} {
		f.recipient(t, name, name+"@school.test")
	}

	sites := &countingSites{Repository: f.repos.Sites}
	b := digest.NewBuilder(f.repos.Users, f.repos.Notifications, f.repos.Submissions, sites, "Deck")
	task := digest.NewTask(b, f.mailer, nil, nil, nil, digest.TaskConfig{
		Workers: 2,
		RootURL: func(domain string) string { return "https://" + domain },
	})

	report, err := task.Run(context.Background(), f.tenant)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 1, sites.reads)
	for _, msg := range f.mailer.SentMessages() {
		assert.Equal(t, "Hacker Space Notifications", msg.Subject)
	}
}

func TestTask_Run_cancelledReleasesKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newTaskFixture(t)
	f.repos.PrepareTenant(t, schema, 0)
	f.recipient(t, "alice", "alice@school.test")
	task := digest.NewTask(newBuilder(f.repos), cancellingMailer{cancel: cancel}, f.deduper, nil, nil, digest.TaskConfig{
		Workers: 1,
		RootURL: func(domain string) string { return "https://" + domain },
	})

	_, err := task.Run(ctx, f.tenant)
	assert.Equal(t, context.Canceled, errors.Cause(err))

	f.deduper.mu.Lock()
	defer f.deduper.mu.Unlock()
	assert.Empty(t, f.deduper.keys, "the claimed key is released")
}
