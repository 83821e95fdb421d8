package sqlexec

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

// Pool executes queries against Postgres through pgx.
type Pool struct {
	pool  *pgxpool.Pool
	owned bool
	opts  options
}

// NewPool connects to the Postgres server at connString.
func NewPool(ctx context.Context, connString string, opts ...Option) (*Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := FromPool(pool, opts...)
	p.owned = true
	return p, nil
}

// FromPool wraps an existing pool. Close does not close it.
func FromPool(pool *pgxpool.Pool, opts ...Option) *Pool {
	return &Pool{pool: pool, opts: newOptions(opts)}
}

// Execute runs query inside a read-only transaction that is always rolled
// back.
func (p *Pool) Execute(ctx context.Context, query string) (queryflow.ResultSet, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return queryflow.ResultSet{}, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	rs, err := tx.Query(ctx, query)
	if err != nil {
		return queryflow.ResultSet{}, classify(query, err)
	}
	defer rs.Close()

	fields := rs.FieldDescriptions()
	columns := make([]string, len(fields))
	types := make(map[string]string, len(fields))
	typeMap := tx.Conn().TypeMap()
	for i, fd := range fields {
		columns[i] = fd.Name
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			types[fd.Name] = t.Name
		}
	}

	out := []rows.Row{}
	truncated := false
	for rs.Next() {
		if p.opts.maxRows > 0 && len(out) >= p.opts.maxRows {
			truncated = true
			break
		}
		values, err := rs.Values()
		if err != nil {
			return queryflow.ResultSet{}, classify(query, fmt.Errorf("read row %d: %w", len(out), err))
		}
		row := make(rows.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return queryflow.ResultSet{}, classify(query, err)
	}

	return queryflow.ResultSet{Columns: columns, ColumnTypes: types, Rows: out, Truncated: truncated}, nil
}

// DistinctValues returns up to the configured limit of distinct values of
// table.column in ascending order.
func (p *Pool) DistinctValues(ctx context.Context, table, column string) ([]any, error) {
	query, err := distinctQuery(table, column, p.opts.distinctLimit)
	if err != nil {
		return nil, err
	}
	rs, err := p.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	return distinctColumn(rs)
}

// Close closes the pool if NewPool created it.
func (p *Pool) Close() error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}
