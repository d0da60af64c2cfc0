package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "settings.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "node", "data", "settings.db")

	db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(Config{}); !errors.Is(err, ErrNoPath) {
		t.Errorf("Open() error = %v, want ErrNoPath", err)
	}
}

func TestDSN(t *testing.T) {
	got := dsn(Config{Path: "/var/lib/glsettings/settings.db", BusyTimeout: 5})
	want := "file:/var/lib/glsettings/settings.db?_busy_timeout=5000&_foreign_keys=on"
	if got != want {
		t.Errorf("dsn() = %q, want %q", got, want)
	}

	wal := dsn(Config{Path: "settings.db", WALMode: true})
	if !strings.Contains(wal, "_journal_mode=WAL") {
		t.Errorf("dsn(WAL) = %q, missing journal mode", wal)
	}
}

func TestWALMode(t *testing.T) {
	db := openTestDB(t)

	var mode string
	if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.DB.Close() //nolint:errcheck // forcing a failure
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on a closed database should fail")
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() without a connection error = %v", err)
	}
}

func TestInTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE setting_values (key TEXT PRIMARY KEY, value BLOB)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}
	count := func() int {
		t.Helper()
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM setting_values").Scan(&n); err != nil {
			t.Fatalf("COUNT error = %v", err)
		}
		return n
	}

	err := db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO setting_values (key, value) VALUES (?, ?)", "interval", []byte{0x58, 0x02})
		return err
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	if n := count(); n != 1 {
		t.Errorf("rows after commit = %d, want 1", n)
	}

	errBoom := errors.New("boom")
	err = db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO setting_values (key, value) VALUES (?, ?)", "name", []byte("hall")); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("InTx() error = %v, want errBoom", err)
	}
	if n := count(); n != 1 {
		t.Errorf("rows after rollback = %d, want 1", n)
	}
}
