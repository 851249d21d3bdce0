package migrate

import (
	"context"
	"database/sql"
)

// Execer is what a migration step may use; *sql.Tx and *sqlx.Tx both satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Handle is the open datastore the runner borrows from the host.
type Handle interface {
	Execer

	// Transaction runs fn in a transaction, committing when fn returns nil.
	Transaction(ctx context.Context, fn func(tx Execer) error) error

	// Pragma returns the current value of a single-valued SQLite pragma.
	Pragma(ctx context.Context, name string) (string, error)
}

// Reopener is implemented by handles that can drop and re-establish their
// connections. The runner closes such a handle before restoring a backup
// over the live file and reopens it afterwards.
type Reopener interface {
	Close() error
	Reopen() error
}

// Backups creates and restores datastore snapshots.
type Backups interface {
	Create(filePath string) (string, error)
	Restore(backupPath, filePath string) error
}
