package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MetaTable holds the single schema version row.
const MetaTable = "schema_meta"

const metaSchema = `
CREATE TABLE IF NOT EXISTS schema_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL,
    updated_at TEXT NOT NULL
);
`

// Meta is the persisted schema version row.
type Meta struct {
	Version   int
	UpdatedAt time.Time // zero when the row is absent
}

// EnsureVersionTable creates the version table and the baseline row if they are missing.
// It never changes an existing row.
func EnsureVersionTable(ctx context.Context, h Execer) error {
	if _, err := h.ExecContext(ctx, metaSchema); err != nil {
		return fmt.Errorf("failed to create %s: %w", MetaTable, err)
	}
	_, err := h.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_meta (id, version, updated_at) VALUES (1, ?, ?)`,
		BaselineVersion, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert baseline version: %w", err)
	}
	return nil
}

// ReadMeta reads the version row without writing anything.
// A pristine datastore reports the baseline version.
func ReadMeta(ctx context.Context, h Execer) (Meta, error) {
	var count int
	err := h.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, MetaTable).Scan(&count)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to check %s table: %w", MetaTable, err)
	}
	if count == 0 {
		return Meta{Version: BaselineVersion}, nil
	}

	var (
		version   int
		updatedAt string
	)
	err = h.QueryRowContext(ctx, `SELECT version, updated_at FROM schema_meta WHERE id = 1`).Scan(&version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{Version: BaselineVersion}, nil
	}
	if err != nil {
		return Meta{}, fmt.Errorf("failed to query schema version: %w", err)
	}

	meta := Meta{Version: version}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		meta.UpdatedAt = ts
	}
	return meta, nil
}

// CurrentVersion returns the datastore's schema version.
func CurrentVersion(ctx context.Context, h Execer) (int, error) {
	meta, err := ReadMeta(ctx, h)
	if err != nil {
		return 0, err
	}
	return meta.Version, nil
}

// CommitVersion upserts the version row. It must be the last write of a successful run.
func CommitVersion(ctx context.Context, h Execer, version int) error {
	if version < BaselineVersion {
		return fmt.Errorf("refusing to record version %d below baseline", version)
	}
	if _, err := h.ExecContext(ctx, metaSchema); err != nil {
		return fmt.Errorf("failed to create %s: %w", MetaTable, err)
	}
	_, err := h.ExecContext(ctx, `
INSERT INTO schema_meta (id, version, updated_at) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`,
		version, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write schema version %d: %w", version, err)
	}
	return nil
}
