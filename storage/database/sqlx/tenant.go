package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/tenant"
)

var tenantColumns = []string{"id", "name", "schema_name", "domain_url", "description", "created_at"}

type tenantRepository struct {
	exec core.DBExecutor
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(exec core.DBExecutor) *tenantRepository {
	return &tenantRepository{exec: exec}
}

func (repo tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	tbl, _ := table(core.PublicSchema, "tenant")
	q, args, err := psql.Insert(tbl).
		Columns(tenantColumns[1:]...).
		Values(t.Name, t.SchemaName, t.DomainURL, t.Description, t.CreatedAt.UTC()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "building tenant insert")
	}

	if err := sqlx.GetContext(ctx, repo.exec, &t.ID, q, args...); err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "inserting tenant")
	}
	return t, nil
}

func (repo tenantRepository) getTenant(ctx context.Context, pred sq.Sqlizer) (tenant.Tenant, error) {
	tbl, _ := table(core.PublicSchema, "tenant")
	q, args, err := psql.Select(tenantColumns...).From(tbl).Where(pred).Limit(1).ToSql()
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "building tenant query")
	}

	var t tenant.Tenant
	if err := sqlx.GetContext(ctx, repo.exec, &t, q, args...); err != nil {
		return tenant.Tenant{}, trapNoRowsErr(err, tenant.ErrNotFound, "finding tenant")
	}
	return t, nil
}

func (repo tenantRepository) GetTenant(ctx context.Context, id int64) (tenant.Tenant, error) {
	return repo.getTenant(ctx, sq.Eq{"id": id})
}

func (repo tenantRepository) GetTenantBySchema(ctx context.Context, schema core.Schema) (tenant.Tenant, error) {
	return repo.getTenant(ctx, sq.Eq{"schema_name": schema})
}

func (repo tenantRepository) QueryTenants(ctx context.Context, filter *tenant.QueryFilter) ([]tenant.Tenant, error) {
	tbl, _ := table(core.PublicSchema, "tenant")
	qb := psql.Select(tenantColumns...).From(tbl).OrderBy("id ASC")
	if filter != nil {
		if filter.SchemaName != "" {
			qb = qb.Where(sq.Eq{"schema_name": filter.SchemaName})
		}
		if filter.Name != "" {
			qb = qb.Where(sq.Eq{"name": filter.Name})
		}
	}

	q, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building tenants query")
	}
	tenants := make([]tenant.Tenant, 0)
	if err := sqlx.SelectContext(ctx, repo.exec, &tenants, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying tenants")
	}
	return tenants, nil
}

func (repo tenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	tbl, _ := table(core.PublicSchema, "tenant")
	q, args, err := psql.Update(tbl).
		Set("name", t.Name).
		Set("description", t.Description).
		Where(sq.Eq{"id": t.ID}).
		Suffix("RETURNING " + joinColumns("", tenantColumns...)).
		ToSql()
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "building tenant update")
	}

	var updated tenant.Tenant
	if err := sqlx.GetContext(ctx, repo.exec, &updated, q, args...); err != nil {
		return tenant.Tenant{}, trapNoRowsErr(err, tenant.ErrNotFound, "updating tenant")
	}
	return updated, nil
}
