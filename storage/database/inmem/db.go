// Package inmemdb implements the repositories in memory, for tests and local runs.
package inmemdb

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/notification"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/siteconfig"
	"github.com/bytedeck/deck/core/submission"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/core/user"
)

var ErrUnknownSchema = errors.New("schema does not exist")

type (
	// DB holds the public tables and one set of tables per provisioned schema.
	DB struct {
		mutex   sync.RWMutex
		pkCount int64

		tenants map[int64]*tenant.Tenant
		tasks   map[int64]*schedule.PeriodicTask
		schemas map[core.Schema]*schemaTables
	}

	schemaTables struct {
		users         map[int64]*user.User
		profiles      map[int64]*user.Profile
		notifications map[int64]*notification.Notification
		submissions   map[int64]*submission.Submission
		siteConfig    *siteconfig.SiteConfig
	}
)

var _ tenant.Provisioner = (*DB)(nil)

func Open() *DB {
	return &DB{
		tenants: make(map[int64]*tenant.Tenant),
		tasks:   make(map[int64]*schedule.PeriodicTask),
		schemas: make(map[core.Schema]*schemaTables),
	}
}

// ProvisionSchema creates the tables of schema. It is a no-op for an existing schema.
func (db *DB) ProvisionSchema(_ context.Context, schema core.Schema) error {
	if !schema.Valid() || schema.IsPublic() {
		return errors.Errorf("invalid tenant schema %q", schema)
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if _, ok := db.schemas[schema]; !ok {
		db.schemas[schema] = &schemaTables{
			users:         make(map[int64]*user.User),
			profiles:      make(map[int64]*user.Profile),
			notifications: make(map[int64]*notification.Notification),
			submissions:   make(map[int64]*submission.Submission),
		}
	}
	return nil
}

// tables must be called with the mutex held.
func (db *DB) tables(schema core.Schema) (*schemaTables, error) {
	tbls, ok := db.schemas[schema]
	if !ok {
		return nil, errors.Wrap(ErrUnknownSchema, schema.String())
	}
	return tbls, nil
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int64 {
	db.pkCount++
	return db.pkCount
}
