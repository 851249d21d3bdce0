package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrVerification means a copy was written but does not match its source.
	ErrVerification = errors.New("backup verification failed")

	// ErrNotBackup means a path does not follow the backup naming scheme.
	ErrNotBackup = errors.New("not a backup file")
)

// FileSystemError wraps filesystem failures during backup operations.
type FileSystemError struct {
	Path      string // file involved
	Operation string // copy, verify, restore, ...
	Err       error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("backup %s of %s: %v", e.Operation, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

func newFSError(path, operation string, err error) *FileSystemError {
	return &FileSystemError{Path: path, Operation: operation, Err: err}
}
