package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maloquacious/sheetkeep/internal/backup"
	"github.com/maloquacious/sheetkeep/internal/logger"
	"github.com/maloquacious/sheetkeep/internal/migrate"
	"github.com/maloquacious/sheetkeep/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)
	s := New(path, append([]Option{WithLogger(logger.Nop)}, opts...)...)
	require.NoError(t, s.Open())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func migrateTestStore(t *testing.T, s *SQLiteStore) migrate.Result {
	t.Helper()
	runner := NewRunner(backup.NewManager(backup.OSFS{}, "", logger.Nop), logger.Nop)
	result, err := runner.Run(context.Background(), s, s.Path())
	require.NoError(t, err)
	require.True(t, result.Success, "migration failed: %v", result.Err)
	return result
}

func TestCurrentSchemaVersionMatchesSteps(t *testing.T) {
	assert.Equal(t, CurrentSchemaVersion, Steps.Target())
}

func TestCheckState(t *testing.T) {
	missing := New(filepath.Join(t.TempDir(), "absent.sqlite"), WithLogger(logger.Nop))
	state, err := missing.CheckState()
	require.NoError(t, err)
	assert.Equal(t, store.StateMissing, state)

	s := openTestStore(t)
	state, err = s.CheckState()
	require.NoError(t, err)
	assert.Equal(t, store.StateUninitialized, state)

	require.NoError(t, s.InitSchema())
	state, err = s.CheckState()
	require.NoError(t, err)
	assert.Equal(t, store.StateVersionMismatch, state)

	version, err := s.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrate.BaselineVersion, version)

	migrateTestStore(t, s)
	state, err = s.CheckState()
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, state)
}

func TestMigrateFreshDatastore(t *testing.T) {
	for _, mode := range []string{"WAL", "DELETE"} {
		t.Run(mode, func(t *testing.T) {
			s := openTestStore(t, WithJournalMode(mode))
			require.NoError(t, s.InitSchema())

			result := migrateTestStore(t, s)
			assert.Equal(t, migrate.BaselineVersion, result.FromVersion)
			assert.Equal(t, CurrentSchemaVersion, result.ToVersion)
			assert.Equal(t, 2, result.MigrationsRun)
			assert.FileExists(t, result.BackupPath)

			exists, err := hasColumn(context.Background(), s, "timesheet", "submission_started_at")
			require.NoError(t, err)
			assert.True(t, exists)

			var indexes int
			require.NoError(t, s.Get(&indexes,
				`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_timesheet_%'`))
			assert.Equal(t, 2, indexes)

			again := migrateTestStore(t, s)
			assert.Equal(t, 0, again.MigrationsRun)
			assert.Empty(t, again.BackupPath)
		})
	}
}

func TestStepsAreIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InitSchema())
	migrateTestStore(t, s)

	ctx := context.Background()
	for _, step := range Steps.Steps() {
		err := s.Transaction(ctx, func(tx migrate.Execer) error {
			return step.Apply(ctx, tx)
		})
		assert.NoError(t, err, "re-running v%d", step.TargetVersion)
	}
}

func TestIndexTimesheetClearsBlankStatus(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InitSchema())

	_, err := s.Exec(`INSERT INTO timesheet (date, time_in, time_out, hours, project, task_description, status)
		VALUES ('2026-01-01', 480, 960, 8.0, 'Alpha', 'blank', '  '),
		       ('2026-01-02', 480, 960, 8.0, 'Alpha', 'done', 'Complete')`)
	require.NoError(t, err)

	migrateTestStore(t, s)

	var statuses []sql.NullString
	require.NoError(t, s.Select(&statuses, `SELECT status FROM timesheet ORDER BY date`))
	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].Valid)
	assert.True(t, statuses[1].Valid)
	assert.Equal(t, StatusComplete, statuses[1].String)
}

func TestOpenRejectsDSNCharacters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"time?sheet.sqlite", "time#sheet.sqlite"} {
		t.Run(name, func(t *testing.T) {
			s := New(filepath.Join(dir, name), WithLogger(logger.Nop))
			assert.ErrorContains(t, s.Open(), "must not contain")
			assert.Nil(t, s.DB)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransactionRollsBack(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InitSchema())
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx migrate.Execer) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE scratch (id INTEGER)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, s.Get(&count, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'scratch'`))
	assert.Zero(t, count)

	assert.Panics(t, func() {
		_ = s.Transaction(ctx, func(tx migrate.Execer) error {
			panic("step exploded")
		})
	})
	_, err = s.Exec(`SELECT 1`)
	assert.NoError(t, err, "connection must be usable after a panicking transaction")
}

func TestPragma(t *testing.T) {
	s := openTestStore(t)

	mode, err := s.Pragma(context.Background(), "journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	fk, err := s.Pragma(context.Background(), "foreign_keys")
	require.NoError(t, err)
	assert.Equal(t, "1", fk)

	_, err = s.Pragma(context.Background(), "journal_mode; DROP TABLE timesheet")
	assert.Error(t, err)
}

func TestReopen(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InitSchema())
	require.NoError(t, s.Reopen())

	version, err := s.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrate.BaselineVersion, version)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is harmless")
	_, err = s.GetSchemaVersion()
	assert.Error(t, err)
}
