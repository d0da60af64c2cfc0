// Package database provides SQLite connectivity for the settings daemon.
//
// It owns the connection (WAL mode, busy timeout, single writer) and the
// embedded schema migrations. The settings package builds its persistent
// store and change log on top of the *sql.DB exposed here.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are registered with RegisterMigrations; importing the
// migrations package does that for the embedded schema.
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, and
// every .up.sql file has a matching .down.sql.
package database
