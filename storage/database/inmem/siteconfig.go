package inmemdb

import (
	"context"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/siteconfig"
)

type siteConfigRepository struct {
	db *DB
}

var _ siteconfig.Repository = (*siteConfigRepository)(nil) // interface compliance check

func NewSiteConfigRepository(db *DB) *siteConfigRepository {
	return &siteConfigRepository{db: db}
}

func (repo *siteConfigRepository) GetSiteConfig(_ context.Context, schema core.Schema) (siteconfig.SiteConfig, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return siteconfig.SiteConfig{}, err
	}
	if tbls.siteConfig == nil {
		return siteconfig.SiteConfig{}, siteconfig.ErrNotFound
	}
	return *tbls.siteConfig, nil
}

func (repo *siteConfigRepository) SaveSiteConfig(_ context.Context, schema core.Schema, c siteconfig.SiteConfig) (siteconfig.SiteConfig, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return siteconfig.SiteConfig{}, err
	}
	tbls.siteConfig = &c
	return c, nil
}
