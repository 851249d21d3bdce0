package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/maloquacious/semver"
	"github.com/maloquacious/sheetkeep/internal/backup"
	"github.com/maloquacious/sheetkeep/internal/config"
	"github.com/maloquacious/sheetkeep/internal/logger"
	"github.com/maloquacious/sheetkeep/internal/migrate"
	"github.com/maloquacious/sheetkeep/internal/store"
	"github.com/maloquacious/sheetkeep/internal/store/sqlite"
	"github.com/spf13/cobra"
)

var (
	version   = semver.Version{Minor: 2, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

var (
	cfg config.Config
	log logger.Logger = logger.Default

	storeDir  string
	backupDir string
	logLevel  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "app",
		Short:         "SheetPilot timesheet datastore host and admin CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			flags := cmd.Flags()
			if flags.Changed("store") {
				cfg.StoreDir = storeDir
			}
			if flags.Changed("backup-dir") {
				cfg.BackupDir = backupDir
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			log = logger.NewConsoleLogger(cfg.LogLevel)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&storeDir, "store", ".", "directory holding the datastore")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", store.DefaultBackupDir, "backup directory, relative to the store directory; empty keeps backups beside the datastore")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd(), newDBCmd(), newRecoverCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print the application and schema versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(map[string]any{
				"version":       version.String(),
				"schemaVersion": sqlite.CurrentSchemaVersion,
				"buildDate":     buildDate,
			})
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the configured datastore, creating its directory when create is set.
func openStore(create bool) (*sqlite.SQLiteStore, error) {
	if create {
		if err := os.MkdirAll(cfg.StoreDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	} else {
		exists, err := store.CheckExists(cfg.StoreDir, cfg.DBFile)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("no datastore at %s, run 'db create' first", cfg.DBPath())
		}
	}

	s := sqlite.New(cfg.DBPath(), sqlite.WithLogger(log))
	if err := s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

func backups() *backup.Manager {
	return backup.NewManager(backup.OSFS{}, cfg.BackupPath(), log)
}

// migrateStore runs the startup migration and prunes old backups after a successful run.
func migrateStore(ctx context.Context, s *sqlite.SQLiteStore) (migrate.Result, error) {
	state, err := s.CheckState()
	if err != nil {
		return migrate.Result{}, err
	}
	if state == store.StateUninitialized {
		if err := s.InitSchema(); err != nil {
			return migrate.Result{}, err
		}
	}

	mgr := backups()
	result, err := sqlite.NewRunner(mgr, log).Run(ctx, s, s.Path())
	if err != nil {
		return result, err
	}
	if result.Success && result.MigrationsRun > 0 && cfg.KeepBackups > 0 {
		if removed, err := mgr.Prune(s.Path(), cfg.KeepBackups); err != nil {
			log.Warn("failed to prune old backups: %v", err)
		} else if len(removed) > 0 {
			log.Info("pruned %d old backup(s)", len(removed))
		}
	}
	return result, nil
}

// resultJSON wraps a migration result for host-facing output.
func resultJSON(result migrate.Result, err error) map[string]any {
	out := map[string]any{
		"success":       result.Success,
		"fromVersion":   result.FromVersion,
		"toVersion":     result.ToVersion,
		"migrationsRun": result.MigrationsRun,
		"backupPath":    nil,
	}
	if result.BackupPath != "" {
		out["backupPath"] = result.BackupPath
	}
	if result.Err != nil {
		out["error"] = result.Err.Error()
	}
	if err != nil {
		out["fatal"] = err.Error()
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
