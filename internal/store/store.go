package store

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultDBFile = "sheetkeep.sqlite"

	// DefaultBackupDir is relative to the store directory.
	DefaultBackupDir = "backups"
)

// CheckExists verifies if the datastore file exists in the given directory.
// An empty dbFile means DefaultDBFile.
func CheckExists(storePath, dbFile string) (bool, error) {
	dbPath := GetDBPath(storePath, dbFile)
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check store existence: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("datastore path is a directory, expected file: %s", dbPath)
	}
	return true, nil
}

// GetDBPath returns the full path to the database file.
func GetDBPath(storePath, dbFile string) string {
	if dbFile == "" {
		dbFile = DefaultDBFile
	}
	return filepath.Join(storePath, dbFile)
}

// GetBackupDir resolves the backup directory. Relative paths are taken
// from the store directory; an empty dir keeps backups beside the datastore.
func GetBackupDir(storePath, dir string) string {
	if dir == "" {
		return storePath
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(storePath, dir)
}
