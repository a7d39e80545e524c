package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/siteconfig"
)

type siteConfigRow struct {
	ShortName   string        `db:"short_name"`
	DeckOwnerID sql.NullInt64 `db:"deck_owner_id"`
}

type siteConfigRepository struct {
	exec core.DBExecutor
}

var _ siteconfig.Repository = (*siteConfigRepository)(nil) // interface compliance check

func NewSiteConfigRepository(exec core.DBExecutor) *siteConfigRepository {
	return &siteConfigRepository{exec: exec}
}

func (repo siteConfigRepository) GetSiteConfig(ctx context.Context, schema core.Schema) (siteconfig.SiteConfig, error) {
	tbl, err := table(schema, "site_config")
	if err != nil {
		return siteconfig.SiteConfig{}, err
	}
	q, args, err := psql.Select("short_name", "deck_owner_id").From(tbl).Where(sq.Eq{"id": 1}).ToSql()
	if err != nil {
		return siteconfig.SiteConfig{}, errors.Wrap(err, "building site config query")
	}

	var row siteConfigRow
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, args...); err != nil {
		return siteconfig.SiteConfig{}, trapNoRowsErr(err, siteconfig.ErrNotFound, "finding site config")
	}
	return siteconfig.SiteConfig{ShortName: row.ShortName, DeckOwnerID: row.DeckOwnerID.Int64}, nil
}

func (repo siteConfigRepository) SaveSiteConfig(ctx context.Context, schema core.Schema, c siteconfig.SiteConfig) (siteconfig.SiteConfig, error) {
	tbl, err := table(schema, "site_config")
	if err != nil {
		return siteconfig.SiteConfig{}, err
	}
	owner := sql.NullInt64{Int64: c.DeckOwnerID, Valid: c.DeckOwnerID != 0}

	q, args, err := psql.Insert(tbl).
		Columns("id", "short_name", "deck_owner_id").
		Values(1, c.ShortName, owner).
		Suffix("ON CONFLICT (id) DO UPDATE SET short_name = EXCLUDED.short_name, deck_owner_id = EXCLUDED.deck_owner_id").
		ToSql()
	if err != nil {
		return siteconfig.SiteConfig{}, errors.Wrap(err, "building site config upsert")
	}

	if _, err := repo.exec.ExecContext(ctx, q, args...); err != nil {
		return siteconfig.SiteConfig{}, errors.Wrap(err, "saving site config")
	}
	return c, nil
}
