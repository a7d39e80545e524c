package tenant

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/siteconfig"
	"github.com/bytedeck/deck/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("tenant not found")
	ErrExists           = errors.New("a tenant with this name already exists")
	ErrPublicRestricted = errors.New("the public tenant is restricted and cannot be edited")
	ErrNameImmutable    = errors.New("the name cannot be changed after the tenant is created")
)

type (
	// Repository stores tenants in the public schema.
	Repository interface {
		CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
		GetTenant(ctx context.Context, id int64) (Tenant, error)
		GetTenantBySchema(ctx context.Context, schema core.Schema) (Tenant, error)
		QueryTenants(ctx context.Context, filter *QueryFilter) ([]Tenant, error)
		UpdateTenant(ctx context.Context, t Tenant) (Tenant, error)
	}

	// Provisioner creates a tenant's schema and brings its tables up to date.
	Provisioner interface {
		ProvisionSchema(ctx context.Context, schema core.Schema) error
	}

	Deps struct {
		Repo      Repository
		Provision Provisioner
		Users     user.Repository
		Sites     siteconfig.Repository
		Schedule  *schedule.Service
		Validate  *validator.Validate
		Logger    core.Logger
	}

	Service struct {
		Deps
		siteDomain string
		shortName  string
	}
)

// NewService returns the tenant service; siteDomain is the shared parent domain of every tenant
// and shortName the default deck short name of new tenants.
func NewService(deps Deps, siteDomain, shortName string) *Service {
	if deps.Logger == nil {
		deps.Logger = core.NewNopLogger()
	}
	return &Service{Deps: deps, siteDomain: siteDomain, shortName: shortName}
}

// Create provisions the tenant's schema, loads its initial data (the deck owner account and the
// site config), then registers the tenant and its digest periodic task. The row is only written
// once the schema is ready, so a failed creation can be retried with the same name.
func (svc *Service) Create(ctx context.Context, nt NewTenant) (Tenant, error) {
	if err := nt.Validate(svc.Validate); err != nil {
		return Tenant{}, err
	}
	if IsPublicName(nt.Name) {
		return Tenant{}, core.NewFieldValidationError("name", ErrPublicRestricted)
	}

	schema := SchemaName(nt.Name)
	if _, err := svc.Repo.GetTenantBySchema(ctx, schema); err == nil {
		return Tenant{}, core.NewFieldValidationError("name", ErrExists)
	} else if errors.Cause(err) != ErrNotFound {
		return Tenant{}, errors.Wrap(err, "checking tenant uniqueness")
	}

	if err := svc.Provision.ProvisionSchema(ctx, schema); err != nil {
		return Tenant{}, errors.Wrapf(err, "provisioning schema %s", schema)
	}
	if err := svc.loadInitialData(ctx, schema, nt); err != nil {
		return Tenant{}, errors.Wrapf(err, "loading initial data of %s", schema)
	}

	t, err := svc.Repo.CreateTenant(ctx, Tenant{
		Name:        nt.Name,
		SchemaName:  schema,
		DomainURL:   DomainURL(nt.Name, svc.siteDomain),
		Description: nt.Description,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Tenant{}, errors.Wrap(err, "creating tenant")
	}

	// a missing task is repaired by RegisterTasks
	if _, _, err := svc.Schedule.RegisterDigestTask(ctx, schema); err != nil {
		return t, errors.Wrapf(err, "registering digest task of %s", schema)
	}

	svc.Logger.Info("tenant created", map[string]interface{}{"schema": schema.String(), "domain": t.DomainURL})
	return t, nil
}

// loadInitialData is safe to run again on a schema it already filled.
func (svc *Service) loadInitialData(ctx context.Context, schema core.Schema, nt NewTenant) error {
	owner, err := svc.Users.GetUserByUsername(ctx, schema, nt.OwnerUsername)
	if errors.Cause(err) == user.ErrNotFound {
		owner, err = svc.Users.CreateUser(ctx, schema, user.User{
			Username:  nt.OwnerUsername,
			Email:     nt.OwnerEmail,
			IsStaff:   true,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		return errors.Wrap(err, "deck owner")
	}

	shortName := nt.ShortName
	if shortName == "" {
		shortName = svc.shortName
	}
	if _, err := svc.Sites.SaveSiteConfig(ctx, schema, siteconfig.SiteConfig{
		ShortName:   shortName,
		DeckOwnerID: owner.ID,
	}); err != nil {
		return errors.Wrap(err, "site config")
	}
	return nil
}

// Update modifies the tenant's description. The name may only be resubmitted unchanged
// (modulo case and dashes) since it determines the schema.
func (svc *Service) Update(ctx context.Context, id int64, ut UpdateTenant) (Tenant, error) {
	if err := svc.Validate.Struct(ut); err != nil {
		return Tenant{}, err
	}
	t, err := svc.Repo.GetTenant(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if t.SchemaName.IsPublic() {
		return Tenant{}, ErrPublicRestricted
	}

	if ut.Name != nil {
		name := core.CleanString(*ut.Name)
		if IsPublicName(name) {
			return Tenant{}, core.NewFieldValidationError("name", ErrPublicRestricted)
		}
		if SchemaName(name) != t.SchemaName {
			return Tenant{}, core.NewFieldValidationError("name", ErrNameImmutable)
		}
		t.Name = name
	}
	if ut.Description != nil {
		t.Description = core.CleanString(*ut.Description)
	}
	return svc.Repo.UpdateTenant(ctx, t)
}

func (svc *Service) Get(ctx context.Context, id int64) (Tenant, error) {
	return svc.Repo.GetTenant(ctx, id)
}

func (svc *Service) GetBySchema(ctx context.Context, schema core.Schema) (Tenant, error) {
	return svc.Repo.GetTenantBySchema(ctx, schema)
}

// List returns every tenant except the public one.
func (svc *Service) List(ctx context.Context) ([]Tenant, error) {
	all, err := svc.Repo.QueryTenants(ctx, &QueryFilter{})
	if err != nil {
		return nil, err
	}
	tenants := make([]Tenant, 0, len(all))
	for _, t := range all {
		if !t.SchemaName.IsPublic() {
			tenants = append(tenants, t)
		}
	}
	return tenants, nil
}

// RegisterTasks (re)registers the digest task of every tenant. It is safe to run repeatedly.
func (svc *Service) RegisterTasks(ctx context.Context) (int, error) {
	tenants, err := svc.List(ctx)
	if err != nil {
		return 0, err
	}
	var created int
	for _, t := range tenants {
		_, ok, err := svc.Schedule.RegisterDigestTask(ctx, t.SchemaName)
		if err != nil {
			return created, errors.Wrapf(err, "registering digest task of %s", t.SchemaName)
		}
		if ok {
			created++
		}
	}
	return created, nil
}
