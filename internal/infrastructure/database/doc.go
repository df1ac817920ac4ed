// Package database provides the SQLite connection behind the DALI frame
// journal.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Schema migrations read from any fs.FS (the migrations package embeds
//     the production set)
//   - Health checks for the gateway health reporter
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: each version has an .up.sql and, where a
// rollback makes sense, a .down.sql.
package database
