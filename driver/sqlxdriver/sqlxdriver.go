// Package sqlxdriver implements the Driver port (storm/driver) on top of
// github.com/jmoiron/sqlx, the same library the teacher repository's
// session.go uses to implement Executor directly against *sqlx.DB/*sqlx.Tx.
// This is Storm's default Driver; callers construct one with Open unless
// they supply an alternate Driver.
package sqlxdriver

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/storm-repo/storm-framework-sub012/driver"
)

// Driver wraps an *sqlx.DB opened against a dialect's driver name.
type Driver struct {
	db *sqlx.DB
}

var _ driver.Driver = (*Driver)(nil)

// Open wraps an already-opened *sql.DB, tagging it with driverName (e.g.
// "sqlite3", "postgres", "mysql") for sqlx's struct-scan column matching.
func Open(db *sql.DB, driverName string) *Driver {
	return &Driver{db: sqlx.NewDb(db, driverName)}
}

func (d *Driver) Conn() driver.Conn { return d.db }

func (d *Driver) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	tx, err := d.db.BeginTxx(ctx, &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, err
	}
	return &txAdapter{tx}, nil
}

func (d *Driver) Close() error { return d.db.Close() }

// txAdapter satisfies driver.Tx; *sqlx.Tx already implements every Conn
// method, so only Commit/Rollback need forwarding (they're already present
// too, but the explicit type keeps the interface satisfaction visible).
type txAdapter struct {
	*sqlx.Tx
}
