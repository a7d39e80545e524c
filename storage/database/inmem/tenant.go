package inmemdb

import (
	"context"
	"sort"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/tenant"
)

type tenantRepository struct {
	db *DB
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *DB) *tenantRepository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) CreateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.tenants {
		if existing.SchemaName == t.SchemaName || existing.Name == t.Name {
			return tenant.Tenant{}, tenant.ErrExists
		}
	}
	t.ID = repo.db.nextPK()
	repo.db.tenants[t.ID] = &t
	return t, nil
}

func (repo *tenantRepository) GetTenant(_ context.Context, id int64) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.tenants[id]; ok {
		return *t, nil
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) GetTenantBySchema(_ context.Context, schema core.Schema) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.tenants {
		if t.SchemaName == schema {
			return *t, nil
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) QueryTenants(_ context.Context, filter *tenant.QueryFilter) ([]tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tenants := make([]tenant.Tenant, 0, len(repo.db.tenants))
	for _, t := range repo.db.tenants {
		if filter != nil {
			if filter.SchemaName != "" && t.SchemaName != filter.SchemaName {
				continue
			}
			if filter.Name != "" && t.Name != filter.Name {
				continue
			}
		}
		tenants = append(tenants, *t)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants, nil
}

func (repo *tenantRepository) UpdateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.tenants[t.ID]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	orig.Name = t.Name
	orig.Description = t.Description
	return *orig, nil
}
