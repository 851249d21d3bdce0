package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maloquacious/sheetkeep/internal/store"
	"github.com/maloquacious/sheetkeep/internal/store/sqlite"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	dbCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and initialize the datastore",
		RunE:  runDBCreate,
	}
	dbUpgradeCmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Back up the datastore and apply pending migrations",
		RunE:  runDBUpgrade,
	}
	dbVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify schema integrity and version",
		RunE:  runDBVerify,
	}
	dbBackupsCmd := &cobra.Command{
		Use:   "backups",
		Short: "List datastore backups, optionally pruning old ones",
		RunE:  runDBBackups,
	}
	dbBackupsCmd.Flags().Int("prune", -1, "keep only the newest N backups")

	dbRestoreCmd := &cobra.Command{
		Use:   "restore <backup>",
		Short: "Overwrite the datastore with a backup",
		Args:  cobra.ExactArgs(1),
		RunE:  runDBRestore,
	}

	dbCmd.AddCommand(dbCreateCmd, dbUpgradeCmd, dbVerifyCmd, dbBackupsCmd, dbRestoreCmd)
	return dbCmd
}

func runDBCreate(cmd *cobra.Command, args []string) error {
	exists, err := store.CheckExists(cfg.StoreDir, cfg.DBFile)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("datastore already exists at %s", cfg.DBPath())
	}

	s, err := openStore(true)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.InitSchema(); err != nil {
		return err
	}
	result, err := migrateStore(cmd.Context(), s)
	if err != nil || !result.Success {
		_ = printJSON(resultJSON(result, err))
		return errors.New("datastore created but could not be migrated")
	}
	return printJSON(resultJSON(result, nil))
}

func runDBUpgrade(cmd *cobra.Command, args []string) error {
	s, err := openStore(false)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := migrateStore(cmd.Context(), s)
	if perr := printJSON(resultJSON(result, err)); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("manual intervention required: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("upgrade failed, datastore left at v%d", result.ToVersion)
	}
	return nil
}

func runDBVerify(cmd *cobra.Command, args []string) error {
	s, err := openStore(false)
	if err != nil {
		return err
	}
	defer s.Close()

	state, err := s.CheckState()
	if err != nil {
		return err
	}
	current, err := s.GetSchemaVersion()
	if err != nil {
		return err
	}
	var integrity string
	if err := s.GetContext(cmd.Context(), &integrity, "PRAGMA integrity_check"); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	list, err := backups().List(s.Path())
	if err != nil {
		return err
	}

	if err := printJSON(map[string]any{
		"path":           s.Path(),
		"state":          state.String(),
		"schemaVersion":  current,
		"expected":       sqlite.CurrentSchemaVersion,
		"integrityCheck": integrity,
		"backups":        len(list),
	}); err != nil {
		return err
	}
	if state != store.StateReady || integrity != "ok" {
		return fmt.Errorf("datastore is not ready (%s)", state)
	}
	return nil
}

func runDBBackups(cmd *cobra.Command, args []string) error {
	mgr := backups()
	dbPath := cfg.DBPath()

	if keep, _ := cmd.Flags().GetInt("prune"); keep >= 0 {
		removed, err := mgr.Prune(dbPath, keep)
		if err != nil {
			return err
		}
		for _, path := range removed {
			log.Info("removed %s", path)
		}
	}

	list, err := mgr.List(dbPath)
	if err != nil {
		return err
	}
	rows := make([]map[string]any, 0, len(list))
	for _, b := range list {
		rows = append(rows, map[string]any{
			"path":    b.Path,
			"created": b.Created.Format(time.RFC3339),
			"age":     humanize.Time(b.Created),
			"size":    humanize.Bytes(uint64(b.Size)),
		})
	}
	return printJSON(rows)
}

func runDBRestore(cmd *cobra.Command, args []string) error {
	backupPath := args[0]
	if !filepath.IsAbs(backupPath) && filepath.Dir(backupPath) == "." {
		backupPath = filepath.Join(cfg.BackupPath(), backupPath)
	}

	// nothing may hold the file open while it is replaced
	if err := backups().Restore(backupPath, cfg.DBPath()); err != nil {
		return err
	}

	s, err := openStore(false)
	if err != nil {
		return err
	}
	defer s.Close()
	current, err := s.GetSchemaVersion()
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"restoredFrom":  backupPath,
		"schemaVersion": current,
	})
}

func newRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Mark submissions stuck from a previous session as failed",
		RunE:  runRecover,
	}
	cmd.Flags().Duration("stuck-after", 0, "age after which an in-progress submission counts as stuck (default from config)")
	cmd.Flags().Bool("reset", false, "move failed entries back to draft")
	cmd.Flags().Bool("list", false, "print failed entries")
	return cmd
}

func runRecover(cmd *cobra.Command, args []string) error {
	s, err := openStore(false)
	if err != nil {
		return err
	}
	defer s.Close()

	state, err := s.CheckState()
	if err != nil {
		return err
	}
	if state != store.StateReady {
		return fmt.Errorf("datastore is %s, run 'db upgrade' first", state)
	}

	stuckAfter := cfg.StuckAfter
	if d, _ := cmd.Flags().GetDuration("stuck-after"); d > 0 {
		stuckAfter = d
	}
	out, err := recoverSubmissions(cmd.Context(), s, stuckAfter)
	if err != nil {
		return err
	}

	if reset, _ := cmd.Flags().GetBool("reset"); reset {
		n, err := s.ResetFailedToDraft(cmd.Context())
		if err != nil {
			return err
		}
		out["resetToDraft"] = n
	}
	if list, _ := cmd.Flags().GetBool("list"); list {
		failed, err := s.FailedEntries(cmd.Context())
		if err != nil {
			return err
		}
		out["failed"] = failed
	}
	return printJSON(out)
}

func recoverSubmissions(ctx context.Context, s *sqlite.SQLiteStore, stuckAfter time.Duration) (map[string]any, error) {
	recovered, err := s.RecoverStuckSubmissions(ctx, stuckAfter)
	if err != nil {
		return nil, err
	}
	if recovered == 0 {
		log.Info("no stuck entries to recover")
	}
	inProgress, err := s.SubmissionInProgress(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"recovered":            recovered,
		"submissionInProgress": inProgress,
	}, nil
}
