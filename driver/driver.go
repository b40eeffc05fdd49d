// Package driver defines the Driver port (spec.md §6): the JDBC-style seam
// between Storm's Execution Engine and a concrete database/sql driver. It
// generalizes the teacher repository's session.go Executor interface (which
// was implemented directly by *sqlx.DB/*sqlx.Tx) into a named port with its
// own package, so storm/driver/sqlxdriver is one swappable implementation
// among others rather than the only possible one.
package driver

import (
	"context"
	"database/sql"
)

// Conn is the minimal capability the Execution Engine needs from a live
// database handle or transaction: contextual query/exec/scan, matching the
// teacher's Executor interface.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// TxOptions carries the subset of sql.TxOptions the Transaction Manager
// (C7) needs to request, kept independent of database/sql so alternate
// Driver implementations aren't forced to depend on it beyond this port.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// Tx extends Conn with the statement-boundary operations a transaction
// needs: commit and rollback. Savepoints have no method here; the
// Transaction Manager issues them as SQL statements through Conn.
type Tx interface {
	Conn
	Commit() error
	Rollback() error
}

// Driver opens connections and transactions against one physical database.
// A Driver is paired with one Dialect for a given database: txn.NewManager
// takes the Driver and exec.New takes the Dialect.
type Driver interface {
	// Conn returns the top-level, non-transactional connection handle.
	Conn() Conn
	// BeginTx starts a new transaction with opts.
	BeginTx(ctx context.Context, opts TxOptions) (Tx, error)
	// Close releases the underlying connection pool.
	Close() error
}
