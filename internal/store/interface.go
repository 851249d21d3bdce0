package store

import "fmt"

// StoreState represents the initialization state of the datastore.
type StoreState int

const (
	StateMissing         StoreState = iota // File doesn't exist
	StateUninitialized                     // File exists but no schema
	StateVersionMismatch                   // Schema exists but is behind or ahead of this build
	StateReady                             // Initialized and at the current version
)

func (s StoreState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateUninitialized:
		return "uninitialized"
	case StateVersionMismatch:
		return "version-mismatch"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("StoreState(%d)", int(s))
}

// Store defines the sheetkeep datastore contract.
// Implementations must be safe for concurrent use.
type Store interface {
	// Open opens the datastore connection
	Open() error

	// Close closes the datastore connection
	Close() error

	// Reopen closes and reopens the connection at the same path
	Reopen() error

	// InitSchema creates the baseline schema and records the baseline version
	InitSchema() error

	// CheckState returns the current state of the datastore
	CheckState() (StoreState, error)

	// GetSchemaVersion returns the current schema version from the database
	GetSchemaVersion() (int, error)

	// Path returns the datastore file path
	Path() string
}
