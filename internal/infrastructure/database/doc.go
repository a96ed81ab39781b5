// Package database provides the SQLite connection that backs the node's
// persisted state: gateway settings and the sealed device key.
//
// The database runs in WAL mode with a single connection and a busy
// timeout. Schema changes are plain SQL files applied in version order by
// Migrate; the embedded set lives in the top-level migrations package.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// The database file and its directory are created owner-only because they
// hold gateway credentials.
package database
