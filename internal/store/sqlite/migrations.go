package sqlite

import (
	"context"
	"fmt"

	"github.com/maloquacious/sheetkeep/internal/logger"
	"github.com/maloquacious/sheetkeep/internal/migrate"
)

// CurrentSchemaVersion is the schema version this build migrates datastores to.
// It must equal Steps.Target().
const CurrentSchemaVersion = 3

// Steps is the datastore's migration history. Append only; never edit a released step.
var Steps = migrate.MustRegistry(
	migrate.Step{
		TargetVersion: 2,
		Description:   "track when a submission started",
		Apply:         addSubmissionStartedAt,
	},
	migrate.Step{
		TargetVersion: 3,
		Description:   "index timesheet lookups and clear blank statuses",
		Apply:         indexTimesheet,
	},
)

// NewRunner returns a runner over Steps.
func NewRunner(backups migrate.Backups, log logger.Logger) *migrate.Runner {
	return migrate.NewRunner(Steps, backups, log)
}

func addSubmissionStartedAt(ctx context.Context, tx migrate.Execer) error {
	exists, err := hasColumn(ctx, tx, "timesheet", "submission_started_at")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE timesheet ADD COLUMN submission_started_at TEXT`); err != nil {
		return fmt.Errorf("failed to add submission_started_at: %w", err)
	}
	return nil
}

func indexTimesheet(ctx context.Context, tx migrate.Execer) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_timesheet_status ON timesheet(status)`,
		`CREATE INDEX IF NOT EXISTS idx_timesheet_date_time_in ON timesheet(date, time_in)`,
		`UPDATE timesheet SET status = NULL WHERE TRIM(status) = ''`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

func hasColumn(ctx context.Context, tx migrate.Execer, table, column string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s columns: %w", table, err)
	}
	return count > 0, nil
}
