// Package sqlxrepos implements the repositories on Postgres with sqlx and squirrel.
// Every tenant table is qualified with the schema passed to the call.
package sqlxrepos

import (
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	ErrInvalidSchema = errors.New("invalid schema")
)

// table returns the schema-qualified, quoted name of a table, eg. "school"."user"
func table(schema core.Schema, name string) (string, error) {
	if !schema.Valid() {
		return "", errors.Wrapf(ErrInvalidSchema, "%q", schema)
	}
	return pq.QuoteIdentifier(schema.String()) + "." + pq.QuoteIdentifier(name), nil
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func orderBy(prefix string, ordering []core.DBOrdering) []string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		ord.Field = prefix + ord.Field
		orderList = append(orderList, ord.String())
	}
	return orderList
}

func columns(prefix string, cols ...string) []string {
	if prefix == "" {
		return cols
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return out
}

func joinColumns(prefix string, cols ...string) string {
	return strings.Join(columns(prefix, cols...), ", ")
}
