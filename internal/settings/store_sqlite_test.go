package settings

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-settings/migrations"
)

// setupTestDB opens a migrated SQLite database in a temp directory.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "settings.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewSQLiteStore(db.DB)

	if err := store.WriteDefault(ctx, "t1", []byte{1}); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if err := store.WriteValue(ctx, "t1", []byte{0}); err != nil {
		t.Fatalf("WriteValue() error = %v", err)
	}
	if err := store.WriteValue(ctx, "name", []byte("abc\x00")); err != nil {
		t.Fatalf("WriteValue() error = %v", err)
	}
	// Upsert replaces the previous row.
	if err := store.WriteValue(ctx, "name", []byte("xy\x00")); err != nil {
		t.Fatalf("WriteValue() overwrite error = %v", err)
	}
	if err := store.WriteValue(ctx, "empty", nil); err != nil {
		t.Fatalf("WriteValue() empty error = %v", err)
	}

	entries, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	got := make(map[string]Entry, len(entries))
	for _, e := range entries {
		got[e.Key] = e
	}
	if len(got) != 3 {
		t.Fatalf("LoadAll() returned %d keys, want 3", len(got))
	}

	t1 := got["t1"]
	if !t1.ValueSet || !bytes.Equal(t1.Value, []byte{0}) {
		t.Errorf("t1 value = %v (set %v), want [0]", t1.Value, t1.ValueSet)
	}
	if !t1.DefaultSet || !bytes.Equal(t1.Default, []byte{1}) {
		t.Errorf("t1 default = %v (set %v), want [1]", t1.Default, t1.DefaultSet)
	}
	if name := got["name"]; !bytes.Equal(name.Value, []byte("xy\x00")) || name.DefaultSet {
		t.Errorf("name = %+v, want value xy and no default", name)
	}
	if empty := got["empty"]; !empty.ValueSet || len(empty.Value) != 0 {
		t.Errorf("empty = %+v, want set zero-length value", empty)
	}

	if err := store.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	entries, _ = store.LoadAll(ctx)
	for _, e := range entries {
		if e.Key == "t1" {
			t.Error("t1 still present after Delete")
		}
	}
}

func TestSQLiteStore_RegistryRestart(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	declare := func() *Registry {
		reg := New(NewSQLiteStore(db.DB))
		reg.Add(1, "t1", TypeBool)
		reg.AddSized(2, "name", TypeStr, 16)
		if err := reg.Load(ctx); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return reg
	}

	first := declare()
	if err := first.SetDefaultByKey(ctx, "name", EncodeStr("default")); err != nil {
		t.Fatalf("SetDefaultByKey() error = %v", err)
	}
	if err := first.SetValue(ctx, 1, EncodeBool(true)); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}

	second := declare()
	if v, ok := second.Value(1); !ok || !bytes.Equal(v, []byte{1}) {
		t.Errorf("t1 after restart = %v, want [1]", v)
	}
	if v, ok := second.ValueByKey("name"); !ok || DecodeStr(v) != "default" {
		t.Errorf("name after restart = %q, want default fallback", v)
	}
	if second.IsSetByKey("name") {
		t.Error("name should only have a default after restart")
	}
}

func TestSQLiteChangeLog(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	log := NewSQLiteChangeLog(db.DB)

	for _, src := range []string{ChangeSourceShell, ChangeSourceRemote, ""} {
		if err := log.Record(ctx, 1, "t1", src); err != nil {
			t.Fatalf("Record(%q) error = %v", src, err)
		}
	}
	if err := log.Record(ctx, 2, "t2", ChangeSourceJSON); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := log.Record(ctx, 3, "", ChangeSourceJSON); err == nil {
		t.Error("Record() with empty key should fail")
	}

	records, err := log.Recent(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent() returned %d records, want 2", len(records))
	}
	// Newest first; the empty source defaults to remote.
	if records[0].Source != ChangeSourceRemote || records[1].Source != ChangeSourceRemote {
		t.Errorf("sources = %q, %q; want remote, remote", records[0].Source, records[1].Source)
	}
	if records[0].SettingID != 1 || records[0].ChangedAt.IsZero() {
		t.Errorf("record = %+v, want setting 1 with timestamp", records[0])
	}
}
