package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/tests"
)

func TestSchemaName(t *testing.T) {
	tests := []struct {
		name string
		want core.Schema
	}{
		{"school", "school"},
		{"Hacker-Space", "hacker_space"},
		{"  Spaced-Out  ", "spaced_out"},
		{"already_snake", "already_snake"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tenant.SchemaName(tc.name), tc.name)
	}
}

func TestDomainURL(t *testing.T) {
	assert.Equal(t, "hacker-space.deck.test", tenant.DomainURL("Hacker-Space", "deck.test"))
	assert.Equal(t, "school.localhost", tenant.DomainURL(" school ", "localhost"))
}

func TestIsPublicName(t *testing.T) {
	assert.True(t, tenant.IsPublicName("public"))
	assert.True(t, tenant.IsPublicName(" Public "))
	assert.False(t, tenant.IsPublicName("publicity"))
}

func newService(repos *testutil.Repos) *tenant.Service {
	validate, _ := core.NewValidator()
	return tenant.NewService(tenant.Deps{
		Repo:      repos.Tenants,
		Provision: repos.DB,
		Users:     repos.Users,
		Sites:     repos.Sites,
		Schedule:  schedule.NewService(repos.Tasks, "0 5 * * *"),
		Validate:  validate,
	}, "deck.test", "Deck")
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	svc := newService(repos)

	tn, err := svc.Create(ctx, tenant.NewTenant{
		Name:          "Hacker-Space",
		Description:   " makers ",
		OwnerUsername: "Admin",
		OwnerEmail:    "Admin@Hacker.Test",
	})
	require.NoError(t, err)
	assert.NotZero(t, tn.ID)
	assert.Equal(t, core.Schema("hacker_space"), tn.SchemaName)
	assert.Equal(t, "hacker-space.deck.test", tn.DomainURL)
	assert.Equal(t, "makers", tn.Description)
	assert.WithinDuration(t, time.Now(), tn.CreatedAt, time.Minute)

	t.Run("initial data", func(t *testing.T) {
		owner, err := repos.Users.GetUserByUsername(ctx, tn.SchemaName, "admin")
		require.NoError(t, err)
		assert.Equal(t, "admin@hacker.test", owner.Email)
		assert.True(t, owner.IsStaff)
		assert.True(t, owner.IsActive)

		conf, err := repos.Sites.GetSiteConfig(ctx, tn.SchemaName)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, conf.DeckOwnerID)
		assert.Equal(t, "Deck", conf.ShortName)

		tasks, err := repos.Tasks.QueryTasks(ctx, &schedule.QueryFilter{TenantSchema: tn.SchemaName})
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, schedule.DigestTaskName, tasks[0].Task)
	})

	t.Run("existing name", func(t *testing.T) {
		_, err := svc.Create(ctx, tenant.NewTenant{Name: "hacker_space", OwnerUsername: "admin"})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "err = %v", err)
		assert.Equal(t, tenant.ErrExists, verr.Err)
	})

	t.Run("public", func(t *testing.T) {
		_, err := svc.Create(ctx, tenant.NewTenant{Name: "Public", OwnerUsername: "admin"})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "err = %v", err)
		assert.Equal(t, tenant.ErrPublicRestricted, verr.Err)
	})

	t.Run("invalid input", func(t *testing.T) {
		for _, nt := range []tenant.NewTenant{
			{Name: "", OwnerUsername: "admin"},
			{Name: "9lives", OwnerUsername: "admin"},
			{Name: "school", OwnerUsername: "ab"},
			{Name: "school", OwnerUsername: "admin", OwnerEmail: "not-an-email"},
		} {
			_, err := svc.Create(ctx, nt)
			var verrs validator.ValidationErrors
			assert.True(t, errors.As(err, &verrs), "%+v: err = %v", nt, err)
		}
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	svc := newService(repos)

	tn, err := svc.Create(ctx, tenant.NewTenant{Name: "school", OwnerUsername: "admin"})
	require.NoError(t, err)
	public, err := repos.Tenants.CreateTenant(ctx, tenant.Tenant{Name: "public", SchemaName: core.PublicSchema})
	require.NoError(t, err)

	str := func(s string) *string { return &s }

	updated, err := svc.Update(ctx, tn.ID, tenant.UpdateTenant{Name: str("School"), Description: str("a school")})
	require.NoError(t, err)
	assert.Equal(t, "School", updated.Name)
	assert.Equal(t, "a school", updated.Description)
	assert.Equal(t, tn.SchemaName, updated.SchemaName)

	_, err = svc.Update(ctx, tn.ID, tenant.UpdateTenant{Name: str("college")})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, tenant.ErrNameImmutable, verr.Err)

	_, err = svc.Update(ctx, public.ID, tenant.UpdateTenant{Description: str("hacked")})
	assert.Equal(t, tenant.ErrPublicRestricted, errors.Cause(err))

	_, err = svc.Update(ctx, 404, tenant.UpdateTenant{})
	assert.Equal(t, tenant.ErrNotFound, errors.Cause(err))
}

func TestService_RegisterTasks(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	svc := newService(repos)

	// tenants created before the digest task existed
	for _, name := range []string{"school", "college"} {
		_, err := repos.Tenants.CreateTenant(ctx, tenant.Tenant{Name: name, SchemaName: tenant.SchemaName(name)})
		require.NoError(t, err)
	}
	_, err := repos.Tenants.CreateTenant(ctx, tenant.Tenant{Name: "public", SchemaName: core.PublicSchema})
	require.NoError(t, err)

	created, err := svc.RegisterTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = svc.RegisterTasks(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)

	tenants, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}

// flakyProvisioner fails its first call.
type flakyProvisioner struct {
	tenant.Provisioner
	failed bool
}

func (p *flakyProvisioner) ProvisionSchema(ctx context.Context, schema core.Schema) error {
	if !p.failed {
		p.failed = true
		return errors.New("connection refused")
	}
	return p.Provisioner.ProvisionSchema(ctx, schema)
}

func TestService_Create_retryAfterProvisioningFailure(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	validate, _ := core.NewValidator()
	svc := tenant.NewService(tenant.Deps{
		Repo:      repos.Tenants,
		Provision: &flakyProvisioner{Provisioner: repos.DB},
		Users:     repos.Users,
		Sites:     repos.Sites,
		Schedule:  schedule.NewService(repos.Tasks, "0 5 * * *"),
		Validate:  validate,
	}, "deck.test", "Deck")
	nt := tenant.NewTenant{Name: "school", OwnerUsername: "admin"}

	_, err := svc.Create(ctx, nt)
	require.Error(t, err)
	_, err = repos.Tenants.GetTenantBySchema(ctx, "school")
	assert.Equal(t, tenant.ErrNotFound, errors.Cause(err), "no tenant row without a schema")
	tasks, err := repos.Tasks.QueryTasks(ctx, &schedule.QueryFilter{TenantSchema: "school"})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	tn, err := svc.Create(ctx, nt)
	require.NoError(t, err)
	assert.Equal(t, core.Schema("school"), tn.SchemaName)
	tasks, err = repos.Tasks.QueryTasks(ctx, &schedule.QueryFilter{TenantSchema: "school"})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	t.Run("initial data is not duplicated", func(t *testing.T) {
		users, err := repos.Users.QueryUsers(ctx, "school", nil)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})
}
