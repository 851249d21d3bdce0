// Package migrate upgrades a single-file SQLite datastore through an ordered
// list of numbered, forward-only steps.
//
// A run takes a verified backup before touching the schema, applies each
// pending step in its own transaction, and restores the backup if any step
// fails. The schema version lives in the single-row schema_meta table and is
// written only after every pending step has succeeded.
//
// Example usage:
//
//	runner := migrate.NewRunner(registry, backup.NewManager(backup.OSFS{}, "", log), log)
//	result, err := runner.Run(ctx, store, store.Path())
//	if err != nil {
//		log.Error("migration needs manual intervention: %v", err)
//	}
package migrate
