package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(env(nil))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.StoreDir)
	assert.Equal(t, "sheetkeep.sqlite", cfg.DBFile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.StuckAfter)
	assert.Equal(t, 5, cfg.KeepBackups)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 8383, cfg.AdminPort)
	assert.Equal(t, filepath.Join(".", "sheetkeep.sqlite"), cfg.DBPath())
	assert.Equal(t, "backups", cfg.BackupPath())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"SHEETKEEP_STORE_DIR":    " /var/lib/sheetkeep ",
		"SHEETKEEP_DB_FILE":      "timesheets.db",
		"SHEETKEEP_BACKUP_DIR":   "",
		"SHEETKEEP_LOG_LEVEL":    "DEBUG",
		"SHEETKEEP_STUCK_AFTER":  "45m",
		"SHEETKEEP_KEEP_BACKUPS": "0",
		"SHEETKEEP_PORT":         "9000",
		"SHEETKEEP_ADMIN_PORT":   "9001",
	}))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/var/lib/sheetkeep", "timesheets.db"), cfg.DBPath())
	assert.Equal(t, "/var/lib/sheetkeep", cfg.BackupPath(), "empty backup dir keeps backups beside the datastore")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Minute, cfg.StuckAfter)
	assert.Zero(t, cfg.KeepBackups)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 9001, cfg.AdminPort)
}

func TestLoadReportsEveryInvalidKey(t *testing.T) {
	_, err := load(env(map[string]string{
		"SHEETKEEP_DB_FILE":      "../escape.db",
		"SHEETKEEP_LOG_LEVEL":    "loud",
		"SHEETKEEP_STUCK_AFTER":  "-5m",
		"SHEETKEEP_KEEP_BACKUPS": "many",
		"SHEETKEEP_PORT":         "70000",
		"SHEETKEEP_ADMIN_PORT":   "0",
	}))
	require.Error(t, err)
	for _, key := range []string{
		"SHEETKEEP_DB_FILE",
		"SHEETKEEP_LOG_LEVEL",
		"SHEETKEEP_STUCK_AFTER",
		"SHEETKEEP_KEEP_BACKUPS",
		"SHEETKEEP_PORT",
		"SHEETKEEP_ADMIN_PORT",
	} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadRejectsUnsafeDBFile(t *testing.T) {
	for _, name := range []string{"../escape.db", `dir\file.db`, "time?sheet.sqlite", "time#sheet.sqlite"} {
		t.Run(name, func(t *testing.T) {
			_, err := load(env(map[string]string{"SHEETKEEP_DB_FILE": name}))
			assert.ErrorContains(t, err, "SHEETKEEP_DB_FILE")
		})
	}
}

func TestLoadFromProcessEnvironment(t *testing.T) {
	t.Setenv("SHEETKEEP_KEEP_BACKUPS", "2")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.KeepBackups)
}
