package core

import (
	"context"
	"database/sql"
	"regexp"

	"github.com/jmoiron/sqlx"
)

// PublicSchema holds the shared tables (tenants, periodic tasks). It never holds tenant data.
const PublicSchema Schema = "public"

var schemaRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Schema is the explicit handle of a tenant's isolated database schema.
// Every tenant-scoped store operation receives one; nothing reads a "current" tenant from ambient state.
type Schema string

func (s Schema) String() string { return string(s) }

func (s Schema) IsPublic() bool { return s == PublicSchema }

// Valid reports whether s is a usable (lowercase, identifier-safe) schema name.
func (s Schema) Valid() bool { return schemaRegex.MatchString(string(s)) }

type (
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

var (
	_ DB           = (*sqlx.DB)(nil)
	_ DBTransactor = (*sqlx.Tx)(nil)
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
