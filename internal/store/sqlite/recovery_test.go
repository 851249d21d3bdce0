package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSubmissions(t *testing.T, s *SQLiteStore) {
	t.Helper()
	_, err := s.Exec(`
INSERT INTO timesheet (date, time_in, time_out, hours, project, tool, task_description, status, submission_started_at) VALUES
    ('2026-01-05', 480, 720, 4.0, 'Alpha', 'CAD', 'stuck for hours', 'Submitting', datetime('now', '-2 hours')),
    ('2026-01-06', 480, 720, 4.0, 'Alpha', NULL,  'just started',    'Submitting', datetime('now', '-1 minutes')),
    ('2026-01-04', 540, 600, 1.0, 'Beta',  NULL,  'failed earlier',  'Failed',     NULL),
    ('2026-01-03', 480, 960, 8.0, 'Beta',  NULL,  'draft',           NULL,         NULL)`)
	require.NoError(t, err)
}

func TestRecoverStuckSubmissions(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InitSchema())
	migrateTestStore(t, s)
	seedSubmissions(t, s)
	ctx := context.Background()

	recovered, err := s.RecoverStuckSubmissions(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	inProgress, err := s.SubmissionInProgress(ctx)
	require.NoError(t, err)
	assert.True(t, inProgress, "the recent submission is still running")

	failed, err := s.FailedEntries(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "2026-01-05", failed[0].Date, "newest first")
	assert.Nil(t, failed[0].SubmissionStartedAt)
	require.NotNil(t, failed[0].Tool)
	assert.Equal(t, "CAD", *failed[0].Tool)
	assert.Equal(t, "2026-01-04", failed[1].Date)

	again, err := s.RecoverStuckSubmissions(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, again, "zero falls back to the default window")
}

func TestResetFailedToDraft(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InitSchema())
	migrateTestStore(t, s)
	seedSubmissions(t, s)
	ctx := context.Background()

	reset, err := s.ResetFailedToDraft(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	failed, err := s.FailedEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestSubmissionInProgressEmpty(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InitSchema())
	migrateTestStore(t, s)

	inProgress, err := s.SubmissionInProgress(context.Background())
	require.NoError(t, err)
	assert.False(t, inProgress)
}
