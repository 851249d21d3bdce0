package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/maloquacious/sheetkeep/internal/logger"
	"github.com/maloquacious/sheetkeep/internal/migrate"
	"github.com/maloquacious/sheetkeep/internal/store"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements store.Store and migrate.Handle using modernc.org/sqlite.
type SQLiteStore struct {
	*sqlx.DB
	dbPath      string
	journalMode string
	log         logger.Logger
}

var (
	_ store.Store      = (*SQLiteStore)(nil)
	_ migrate.Handle   = (*SQLiteStore)(nil)
	_ migrate.Reopener = (*SQLiteStore)(nil)
)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithJournalMode overrides the default WAL journal mode.
func WithJournalMode(mode string) Option {
	return func(s *SQLiteStore) {
		s.journalMode = strings.ToUpper(mode)
	}
}

// WithLogger sets the store's logger.
func WithLogger(log logger.Logger) Option {
	return func(s *SQLiteStore) {
		s.log = log
	}
}

// New creates a new SQLiteStore for the file at dbPath.
func New(dbPath string, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		dbPath:      dbPath,
		journalMode: "WAL",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrDefault(s.log)
	return s
}

// Path returns the datastore file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// dsn carries the pragmas so every pooled connection gets them.
func (s *SQLiteStore) dsn() string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", s.journalMode))
	return s.dbPath + "?" + params.Encode()
}

// Open opens the SQLite database with safe defaults.
func (s *SQLiteStore) Open() error {
	// the driver splits the DSN at '?', so such a path would open a different file
	if strings.ContainsAny(s.dbPath, "?#") {
		return fmt.Errorf("invalid datastore path %q: must not contain '?' or '#'", s.dbPath)
	}
	db, err := sqlx.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; also keeps WAL checkpoints from being blocked by idle readers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.DB = db
	s.log.Debug("opened datastore %s (journal_mode=%s)", s.dbPath, s.journalMode)
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.DB == nil {
		return nil
	}
	err := s.DB.Close()
	s.DB = nil
	return err
}

// Reopen drops every pooled connection and opens the file again.
func (s *SQLiteStore) Reopen() error {
	if err := s.Close(); err != nil {
		s.log.Warn("failed to close datastore before reopening: %v", err)
	}
	return s.Open()
}

// Transaction runs fn inside a transaction, rolling back on error or panic.
func (s *SQLiteStore) Transaction(ctx context.Context, fn func(tx migrate.Execer) error) error {
	if s.DB == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var pragmaName = regexp.MustCompile(`^[a-z_]+$`)

// Pragma returns the value of a single-valued pragma such as journal_mode.
func (s *SQLiteStore) Pragma(ctx context.Context, name string) (string, error) {
	if s.DB == nil {
		return "", fmt.Errorf("database not opened")
	}
	if !pragmaName.MatchString(name) {
		return "", fmt.Errorf("invalid pragma name %q", name)
	}
	var value string
	if err := s.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to read pragma %s: %w", name, err)
	}
	return value, nil
}

// InitSchema creates the baseline schema and the version row at the baseline version.
func (s *SQLiteStore) InitSchema() error {
	if s.DB == nil {
		return fmt.Errorf("database not opened")
	}

	ctx := context.Background()
	err := s.Transaction(ctx, func(tx migrate.Execer) error {
		if _, err := tx.ExecContext(ctx, baselineSchema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return migrate.EnsureVersionTable(ctx, tx)
	})
	if err != nil {
		return err
	}

	s.log.Info("initialized datastore %s at schema v%d", s.dbPath, migrate.BaselineVersion)
	return nil
}

// CheckState returns the current state of the datastore.
func (s *SQLiteStore) CheckState() (store.StoreState, error) {
	if _, err := os.Stat(s.dbPath); os.IsNotExist(err) {
		return store.StateMissing, nil
	}
	if s.DB == nil {
		return store.StateMissing, fmt.Errorf("database not opened")
	}

	var count int
	err := s.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, migrate.MetaTable).Scan(&count)
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to check %s table: %w", migrate.MetaTable, err)
	}
	if count == 0 {
		return store.StateUninitialized, nil
	}

	version, err := s.GetSchemaVersion()
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to get schema version: %w", err)
	}
	if version != CurrentSchemaVersion {
		return store.StateVersionMismatch, nil
	}
	return store.StateReady, nil
}

// GetSchemaVersion returns the current schema version from the database.
func (s *SQLiteStore) GetSchemaVersion() (int, error) {
	if s.DB == nil {
		return 0, fmt.Errorf("database not opened")
	}
	return migrate.CurrentVersion(context.Background(), s)
}
