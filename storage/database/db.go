package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/fs"
)

// goose keeps its settings in package globals
var gooseMu sync.Mutex

func dsn(dbName string, admin bool, conf *core.Config, params map[string]string) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")
	for k, v := range params {
		q.Set(k, v)
	}

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(dbName string, admin bool, conf *core.Config, params map[string]string) (*sqlx.DB, error) {
	return sqlx.Open(conf.Database.Engine, dsn(dbName, admin, conf, params))
}

// Open opens the application database. Tables are always schema-qualified by the repositories,
// so the connection search_path does not matter.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// StatusCheck returns nil if it can successfully talk to the database.
func StatusCheck(ctx context.Context, db core.DBExecutor) error {
	var ok bool
	return db.QueryRowxContext(ctx, "SELECT true").Scan(&ok)
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	var exists bool
	if err := db.Get(&exists, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", conf.Database.User); err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !exists {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s",
			pq.QuoteIdentifier(conf.Database.User), pq.QuoteLiteral(conf.Database.Password))
		if _, err := db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	var exists bool
	if err := db.Get(&exists, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name); err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !exists {
		if _, err := db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the application role and database.
func CreateIfNotExist(conf *core.Config) error {
	// connect as admin
	db, err := open("postgres", true, conf, nil)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return err
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf, nil)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

func migrate(db *sql.DB, dir, command string, args ...string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(appfs.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Run(command, db, dir, args...)
}

// Migrate brings the shared tables of the public schema up to date.
func Migrate(db *sqlx.DB) error {
	if err := migrate(db.DB, appfs.PublicMigrationsDir, "up"); err != nil {
		return errors.Wrap(err, "migrating public schema")
	}
	return nil
}

// MigrateTenant creates the tenant's schema if needed and brings its tables up to date.
func MigrateTenant(ctx context.Context, conf *core.Config, schema core.Schema) error {
	if schema.IsPublic() {
		return errors.Errorf("invalid tenant schema %q", schema)
	}
	return RunMigrations(ctx, conf, schema, "up")
}

// RunMigrations runs the goose command (up, down, status, version...) on schema: the shared
// tables for the public schema, the tenant tables otherwise. Tenant migrations run on a dedicated
// connection whose search_path is the tenant schema, so each tenant has its own goose version table.
func RunMigrations(ctx context.Context, conf *core.Config, schema core.Schema, command string, args ...string) error {
	if !schema.Valid() {
		return errors.Errorf("invalid schema %q", schema)
	}

	dir := appfs.TenantMigrationsDir
	params := map[string]string{"search_path": schema.String()}
	if schema.IsPublic() {
		dir = appfs.PublicMigrationsDir
		params = nil
	}

	db, err := open(conf.Database.Name, false, conf, params)
	if err != nil {
		return errors.Wrapf(err, "opening %s connection", schema)
	}
	defer func() { _ = db.Close() }()

	if !schema.IsPublic() && command == "up" {
		if _, err = db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema.String())); err != nil {
			return errors.Wrapf(err, "creating schema %s", schema)
		}
	}
	if err = migrate(db.DB, dir, command, args...); err != nil {
		return errors.Wrapf(err, "migrating schema %s", schema)
	}
	return nil
}

// Provisioner provisions tenant schemas on the configured database.
type Provisioner struct {
	conf *core.Config
}

func NewProvisioner(conf *core.Config) *Provisioner {
	return &Provisioner{conf: conf}
}

func (p *Provisioner) ProvisionSchema(ctx context.Context, schema core.Schema) error {
	return MigrateTenant(ctx, p.conf, schema)
}
