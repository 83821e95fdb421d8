package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Registered drivers.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

// DB executes queries through database/sql.
type DB struct {
	db    *sql.DB
	owned bool
	opts  options
}

// Open opens a database/sql handle and wraps it. Supported driver names
// include "sqlite" and "postgres". The handle is closed by Close.
//
// In-memory SQLite databases are limited to one connection so every query
// sees the same database.
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if driverName == "sqlite" && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	d := NewDB(db, opts...)
	d.owned = true
	return d, nil
}

// NewDB wraps an existing handle. Close does not close it.
func NewDB(db *sql.DB, opts ...Option) *DB {
	return &DB{db: db, opts: newOptions(opts)}
}

// Execute runs query inside a read-only transaction that is always rolled
// back.
func (d *DB) Execute(ctx context.Context, query string) (queryflow.ResultSet, error) {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return queryflow.ResultSet{}, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rs, err := tx.QueryContext(ctx, query)
	if err != nil {
		return queryflow.ResultSet{}, classify(query, err)
	}
	defer rs.Close()

	result, err := scanAll(rs, d.opts.maxRows)
	if err != nil {
		return queryflow.ResultSet{}, classify(query, err)
	}
	return result, nil
}

// DistinctValues returns up to the configured limit of distinct values of
// table.column in ascending order.
func (d *DB) DistinctValues(ctx context.Context, table, column string) ([]any, error) {
	query, err := distinctQuery(table, column, d.opts.distinctLimit)
	if err != nil {
		return nil, err
	}
	rs, err := d.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	return distinctColumn(rs)
}

// Close closes the handle if Open created it.
func (d *DB) Close() error {
	if !d.owned {
		return nil
	}
	return d.db.Close()
}

func scanAll(rs *sql.Rows, maxRows int) (queryflow.ResultSet, error) {
	cts, err := rs.ColumnTypes()
	if err != nil {
		return queryflow.ResultSet{}, fmt.Errorf("column types: %w", err)
	}

	columns := make([]string, len(cts))
	types := make(map[string]string, len(cts))
	for i, ct := range cts {
		columns[i] = ct.Name()
		if t := ct.DatabaseTypeName(); t != "" {
			types[ct.Name()] = t
		}
	}

	out := []rows.Row{}
	truncated := false
	for rs.Next() {
		if maxRows > 0 && len(out) >= maxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return queryflow.ResultSet{}, fmt.Errorf("scan row %d: %w", len(out), err)
		}
		row := make(rows.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return queryflow.ResultSet{}, err
	}

	return queryflow.ResultSet{Columns: columns, ColumnTypes: types, Rows: out, Truncated: truncated}, nil
}

// distinctColumn reads the single column of a DistinctValues result. The
// store may fold the column name's case, so the reported name is used.
func distinctColumn(rs queryflow.ResultSet) ([]any, error) {
	values := make([]any, 0, len(rs.Rows))
	if len(rs.Columns) == 0 {
		return values, nil
	}
	column := rs.Columns[0]
	for _, r := range rs.Rows {
		v, err := rows.Normalize(r[column], rs.ColumnTypes[column])
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", column, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// IsRejected reports whether err is a query rejection.
func IsRejected(err error) bool {
	var qe *queryflow.QueryError
	return errors.As(err, &qe)
}
