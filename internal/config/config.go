package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maloquacious/sheetkeep/internal/store"
)

// Config captures environment driven configuration for the datastore host.
type Config struct {
	StoreDir    string        // directory holding the datastore
	DBFile      string        // datastore file name inside StoreDir
	BackupDir   string        // empty keeps backups beside the datastore
	LogLevel    string        // debug, info, warn, error
	StuckAfter  time.Duration // in-progress submissions older than this are recovered
	KeepBackups int           // backups kept by pruning; 0 disables pruning
	Port        int
	AdminPort   int
}

// Load parses configuration values from the current process environment.
//
// Unset keys keep their defaults. Every malformed key is reported in one error.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Config{
		StoreDir:    ".",
		DBFile:      store.DefaultDBFile,
		BackupDir:   store.DefaultBackupDir,
		LogLevel:    "info",
		StuckAfter:  30 * time.Minute,
		KeepBackups: 5,
		Port:        8080,
		AdminPort:   8383,
	}

	invalid := make([]string, 0, 4)
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	if v := get("SHEETKEEP_STORE_DIR"); v != "" {
		cfg.StoreDir = v
	}
	if v := get("SHEETKEEP_DB_FILE"); v != "" {
		if strings.ContainsAny(v, `/\?#`) {
			invalid = append(invalid, "SHEETKEEP_DB_FILE")
		} else {
			cfg.DBFile = v
		}
	}
	// set but empty means beside the datastore
	if v, ok := lookup("SHEETKEEP_BACKUP_DIR"); ok {
		cfg.BackupDir = strings.TrimSpace(v)
	}
	if v := get("SHEETKEEP_LOG_LEVEL"); v != "" {
		switch strings.ToLower(v) {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = strings.ToLower(v)
		default:
			invalid = append(invalid, "SHEETKEEP_LOG_LEVEL")
		}
	}
	if v := get("SHEETKEEP_STUCK_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, "SHEETKEEP_STUCK_AFTER")
		} else {
			cfg.StuckAfter = d
		}
	}
	if v := get("SHEETKEEP_KEEP_BACKUPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			invalid = append(invalid, "SHEETKEEP_KEEP_BACKUPS")
		} else {
			cfg.KeepBackups = n
		}
	}
	if v := get("SHEETKEEP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SHEETKEEP_PORT")
		} else {
			cfg.Port = port
		}
	}
	if v := get("SHEETKEEP_ADMIN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SHEETKEEP_ADMIN_PORT")
		} else {
			cfg.AdminPort = port
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// DBPath returns the datastore file path.
func (c Config) DBPath() string {
	return store.GetDBPath(c.StoreDir, c.DBFile)
}

// BackupPath returns the resolved backup directory.
func (c Config) BackupPath() string {
	return store.GetBackupDir(c.StoreDir, c.BackupDir)
}
