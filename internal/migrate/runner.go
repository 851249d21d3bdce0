package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maloquacious/sheetkeep/internal/logger"
)

// Result is the outcome of one Run. BackupPath is empty when no backup was taken.
type Result struct {
	Success       bool   `json:"success"`
	FromVersion   int    `json:"fromVersion"`
	ToVersion     int    `json:"toVersion"`
	MigrationsRun int    `json:"migrationsRun"`
	BackupPath    string `json:"backupPath,omitempty"`

	// Err explains a failed run that was recovered locally
	// (ErrBackupCreation or ErrStepApplication).
	Err error `json:"-"`
}

// Runner applies pending registry steps behind a verified backup.
// It holds no per-datastore state, so one Runner may serve many handles.
type Runner struct {
	registry *Registry
	backups  Backups
	log      logger.Logger
}

// NewRunner returns a Runner. A nil log uses logger.Default.
func NewRunner(registry *Registry, backups Backups, log logger.Logger) *Runner {
	return &Runner{
		registry: registry,
		backups:  backups,
		log:      logger.OrDefault(log),
	}
}

// Target returns the version a successful run ends at.
func (r *Runner) Target() int {
	return r.registry.Target()
}

// Run brings the datastore at filePath, open as h, up to the registry target.
//
// Backup and step failures are recovered and reported through the Result
// with a nil error. A non-nil error means the run could not start, the
// restore failed (ErrRestore), or the final version write failed
// (ErrVersionCommit); the last two need manual intervention.
//
// Run is not cancellable once steps start applying.
func (r *Runner) Run(ctx context.Context, h Handle, filePath string) (Result, error) {
	if err := EnsureVersionTable(ctx, h); err != nil {
		return Result{}, fmt.Errorf("failed to initialize version table: %w", err)
	}
	from, err := CurrentVersion(ctx, h)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read schema version: %w", err)
	}

	result := Result{FromVersion: from, ToVersion: from}

	pending := r.registry.Pending(from)
	if len(pending) == 0 {
		if from > r.registry.Target() {
			r.log.Warn("datastore schema v%d is newer than the newest known migration v%d", from, r.registry.Target())
		}
		r.log.Info("schema is current at v%d, no migrations to run", from)
		result.Success = true
		return result, nil
	}

	r.log.Info("schema at v%d, %d pending migration(s) up to v%d", from, len(pending), pending[len(pending)-1].TargetVersion)

	if err := r.quiesce(ctx, h); err != nil {
		result.Err = newError(ErrBackupCreation, 0, "checkpoint", err)
		r.log.Error("%v", result.Err)
		return result, nil
	}

	backupPath, err := r.backups.Create(filePath)
	if err != nil {
		result.Err = newError(ErrBackupCreation, 0, "backup", err)
		r.log.Error("%v", result.Err)
		return result, nil
	}
	r.log.Info("backup created at %s", backupPath)

	// no cancellation once the schema starts changing
	applyCtx := context.WithoutCancel(ctx)

	applied, count := from, 0
	for _, step := range pending {
		start := time.Now()
		r.log.Info("applying migration v%d: %s", step.TargetVersion, step.Description)

		if err := runStep(applyCtx, h, step); err != nil {
			stepErr := newError(ErrStepApplication, step.TargetVersion, "apply", err)
			r.log.Error("%v", stepErr)

			failed := Result{
				FromVersion: from,
				ToVersion:   from,
				BackupPath:  backupPath,
				Err:         stepErr,
			}
			if rerr := r.rollback(h, backupPath, filePath); rerr != nil {
				restoreErr := newError(ErrRestore, step.TargetVersion, "restore", rerr)
				r.log.Error("%v (datastore may be partially migrated, restore %s manually)", restoreErr, backupPath)
				return failed, restoreErr
			}
			r.log.Warn("restored %s from %s, schema remains at v%d", filePath, backupPath, from)
			return failed, nil
		}

		applied = step.TargetVersion
		count++
		r.log.Info("migration v%d applied in %s", step.TargetVersion, time.Since(start).Round(time.Millisecond))
	}

	if err := CommitVersion(applyCtx, h, applied); err != nil {
		commitErr := newError(ErrVersionCommit, applied, "commit", err)
		r.log.Error("%v (schema changes through v%d are applied but unrecorded)", commitErr, applied)
		return Result{
			FromVersion:   from,
			ToVersion:     from,
			MigrationsRun: count,
			BackupPath:    backupPath,
		}, commitErr
	}

	r.log.Info("schema migrated from v%d to v%d (%d migration(s))", from, applied, count)
	return Result{
		Success:       true,
		FromVersion:   from,
		ToVersion:     applied,
		MigrationsRun: count,
		BackupPath:    backupPath,
	}, nil
}

// runStep applies one step in its own transaction, turning a panic into an error.
func runStep(ctx context.Context, h Handle, step Step) error {
	return h.Transaction(ctx, func(tx Execer) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return step.Apply(ctx, tx)
	})
}

// quiesce folds the WAL into the main file so the copy is self-contained.
func (r *Runner) quiesce(ctx context.Context, h Handle) error {
	mode, err := h.Pragma(ctx, "journal_mode")
	if err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return nil
	}

	var busy, logFrames, checkpointed int
	err = h.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	if busy != 0 {
		return errors.New("WAL checkpoint blocked by another connection")
	}
	r.log.Debug("WAL checkpointed (%d frames)", checkpointed)
	return nil
}

func (r *Runner) rollback(h Handle, backupPath, filePath string) error {
	reopener, ok := h.(Reopener)
	if ok {
		if err := reopener.Close(); err != nil {
			r.log.Warn("failed to close datastore before restore: %v", err)
		}
	}

	restoreErr := r.backups.Restore(backupPath, filePath)

	if ok {
		if err := reopener.Reopen(); err != nil {
			return errors.Join(restoreErr, fmt.Errorf("failed to reopen datastore: %w", err))
		}
	}
	return restoreErr
}
