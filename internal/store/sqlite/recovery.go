package sqlite

import (
	"context"
	"fmt"
	"time"
)

// DefaultStuckAfter is how long a submission may stay in progress before it counts as stuck.
const DefaultStuckAfter = 30 * time.Minute

// FailedEntry is a timesheet row whose submission failed.
type FailedEntry struct {
	ID                  int64   `db:"id" json:"id"`
	Date                string  `db:"date" json:"date"`
	TimeIn              int64   `db:"time_in" json:"timeIn"`
	TimeOut             int64   `db:"time_out" json:"timeOut"`
	Hours               float64 `db:"hours" json:"hours"`
	Project             string  `db:"project" json:"project"`
	Tool                *string `db:"tool" json:"tool,omitempty"`
	DetailChargeCode    *string `db:"detail_charge_code" json:"chargeCode,omitempty"`
	TaskDescription     string  `db:"task_description" json:"taskDescription"`
	SubmissionStartedAt *string `db:"submission_started_at" json:"submissionStartedAt,omitempty"`
}

// RecoverStuckSubmissions marks rows left in Submitting for longer than olderThan as Failed.
// A previous session that died mid-submission leaves such rows behind.
func (s *SQLiteStore) RecoverStuckSubmissions(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = DefaultStuckAfter
	}
	modifier := fmt.Sprintf("-%d seconds", int64(olderThan/time.Second))

	res, err := s.ExecContext(ctx, `
UPDATE timesheet
   SET status = ?, submission_started_at = NULL
 WHERE status = ?
   AND datetime(submission_started_at) < datetime('now', ?)`,
		StatusFailed, StatusSubmitting, modifier)
	if err != nil {
		return 0, fmt.Errorf("recovery failed: %w", err)
	}
	recovered, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recovery failed: %w", err)
	}
	if recovered > 0 {
		s.log.Warn("recovered %d stuck entries from previous session", recovered)
	}
	return recovered, nil
}

// FailedEntries returns every failed row, newest first.
func (s *SQLiteStore) FailedEntries(ctx context.Context) ([]FailedEntry, error) {
	entries := []FailedEntry{}
	err := s.SelectContext(ctx, &entries, `
SELECT id, date, time_in, time_out, hours, project, tool,
       detail_charge_code, task_description, submission_started_at
  FROM timesheet
 WHERE status = ?
 ORDER BY date DESC, time_in DESC`, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch failed entries: %w", err)
	}
	return entries, nil
}

// ResetFailedToDraft moves failed rows back to draft.
func (s *SQLiteStore) ResetFailedToDraft(ctx context.Context) (int64, error) {
	res, err := s.ExecContext(ctx,
		`UPDATE timesheet SET status = NULL, submission_started_at = NULL WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to reset entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to reset entries: %w", err)
	}
	return n, nil
}

// SubmissionInProgress reports whether any row is currently being submitted.
func (s *SQLiteStore) SubmissionInProgress(ctx context.Context) (bool, error) {
	var count int
	if err := s.GetContext(ctx, &count, `SELECT COUNT(*) FROM timesheet WHERE status = ?`, StatusSubmitting); err != nil {
		return false, fmt.Errorf("failed to check submission status: %w", err)
	}
	return count > 0, nil
}
