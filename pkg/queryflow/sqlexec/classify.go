package sqlexec

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
)

// Category represents how an execution error should be handled.
type Category int

const (
	// CategoryRejected indicates the store refused the query itself.
	// Examples: syntax errors, unknown columns, type mismatches.
	CategoryRejected Category = iota

	// CategoryFault indicates the store could not serve any query.
	// Examples: lost connections, locked files, exhausted resources.
	CategoryFault
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRejected:
		return "rejected"
	case CategoryFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Postgres SQLSTATE classes that describe the server or the session rather
// than the query.
var faultClasses = map[string]bool{
	"08": true, // connection exception
	"28": true, // invalid authorization specification
	"3D": true, // invalid catalog name
	"53": true, // insufficient resources
	"57": true, // operator intervention
	"58": true, // system error
	"F0": true, // configuration file error
	"XX": true, // internal error
}

// SQLite primary result codes that describe the database file or the
// process rather than the statement.
var faultCodes = map[int]bool{
	sqlite3.SQLITE_PERM:      true,
	sqlite3.SQLITE_BUSY:      true,
	sqlite3.SQLITE_LOCKED:    true,
	sqlite3.SQLITE_NOMEM:     true,
	sqlite3.SQLITE_INTERRUPT: true,
	sqlite3.SQLITE_IOERR:     true,
	sqlite3.SQLITE_CORRUPT:   true,
	sqlite3.SQLITE_FULL:      true,
	sqlite3.SQLITE_CANTOPEN:  true,
	sqlite3.SQLITE_PROTOCOL:  true,
	sqlite3.SQLITE_NOTADB:    true,
}

// Categorize determines how an execution error should be handled.
// Errors from unknown drivers are treated as rejections unless they look
// like connection or cancellation failures.
func Categorize(err error) Category {
	if err == nil {
		return CategoryFault
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryFault
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return CategoryFault
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return categorizeState(string(pqErr.Code))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return categorizeState(pgErr.Code)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		if faultCodes[liteErr.Code()&0xff] {
			return CategoryFault
		}
		return CategoryRejected
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return CategoryFault
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryFault
	}

	return CategoryRejected
}

func categorizeState(code string) Category {
	if len(code) < 2 {
		return CategoryRejected
	}
	if faultClasses[code[:2]] {
		return CategoryFault
	}
	return CategoryRejected
}

// classify wraps rejections as *queryflow.QueryError and returns faults
// unchanged.
func classify(query string, err error) error {
	if err == nil {
		return nil
	}
	if Categorize(err) == CategoryRejected {
		return &queryflow.QueryError{Query: query, Err: err}
	}
	return err
}
