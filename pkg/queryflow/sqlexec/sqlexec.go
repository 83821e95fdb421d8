// Package sqlexec runs generated queries against SQL data stores.
//
// Two executors are provided:
//   - DB wraps a database/sql handle. Any registered driver works; SQLite
//     (modernc.org/sqlite) and Postgres (lib/pq) errors are classified
//     precisely.
//   - Pool wraps a pgx connection pool for Postgres.
//
// Both run each query in a read-only transaction that is always rolled
// back, so a generated statement cannot change the store even when the
// driver ignores the read-only flag for some statement kinds. Errors the
// store raises for the query itself are returned as *queryflow.QueryError;
// everything else is returned unchanged and stops the run.
//
// Both executors satisfy queryflow.Executor:
//
//	db, err := sqlexec.Open("sqlite", "file:sales.db?mode=ro")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	flow, err := queryflow.New(queryflow.Services{Executor: db, ...})
package sqlexec

import (
	"errors"
	"fmt"
	"regexp"
)

// Default limits.
const (
	// DefaultDistinctLimit bounds DistinctValues results.
	DefaultDistinctLimit = 100
)

// ErrInvalidIdentifier indicates a table or column name that is not a plain
// SQL identifier.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, name)
	}
	return nil
}

func distinctQuery(table, column string, limit int) (string, error) {
	if err := validIdent("table", table); err != nil {
		return "", err
	}
	if err := validIdent("column", column); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s ORDER BY 1 LIMIT %d", column, table, limit), nil
}

// Option configures an executor.
type Option func(*options)

type options struct {
	maxRows       int
	distinctLimit int
}

func newOptions(opts []Option) options {
	o := options{distinctLimit: DefaultDistinctLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxRows stops reading after n rows. Zero or negative reads every row.
func WithMaxRows(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRows = n
		}
	}
}

// WithDistinctLimit bounds the values returned by DistinctValues.
func WithDistinctLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.distinctLimit = n
		}
	}
}
