package migrate

import (
	"errors"
	"fmt"
)

var (
	// ErrBackupCreation means the pre-migration snapshot could not be written or verified.
	// Nothing was mutated; the run reports a failure result.
	ErrBackupCreation = errors.New("backup creation failed")

	// ErrStepApplication means a migration step returned an error.
	// The backup was restored; the run reports a failure result.
	ErrStepApplication = errors.New("migration step failed")

	// ErrRestore means the rollback copy itself failed.
	// The datastore needs manual intervention.
	ErrRestore = errors.New("restore from backup failed")

	// ErrVersionCommit means every step succeeded but the new version could not be recorded.
	// The schema changes are real and are not rolled back.
	ErrVersionCommit = errors.New("schema version commit failed")

	// ErrInvalidRegistry means the step list is malformed or out of order.
	ErrInvalidRegistry = errors.New("invalid migration registry")
)

// MigrationError carries the version and phase an error occurred in.
type MigrationError struct {
	Version   int    // target version involved, 0 when not step specific
	Operation string // backup, apply, restore, commit, ...
	Kind      error  // one of the Err* sentinels
	Err       error  // underlying cause
}

func (e *MigrationError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("migration v%d: %s: %v: %v", e.Version, e.Operation, e.Kind, e.Err)
	}
	return fmt.Sprintf("migration %s: %v: %v", e.Operation, e.Kind, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Is matches both the sentinel kind and anything in the wrapped chain.
func (e *MigrationError) Is(target error) bool {
	return e.Kind == target
}

func newError(kind error, version int, operation string, err error) *MigrationError {
	return &MigrationError{
		Version:   version,
		Operation: operation,
		Kind:      kind,
		Err:       err,
	}
}
