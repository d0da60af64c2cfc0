package settings

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Row kinds in the setting_values table. They play the role of the
// "user" and "user_default" key prefixes of flash-backed stores.
const (
	kindValue   = "value"
	kindDefault = "default"
)

// SQLiteStore implements Store using the setting_values table.
//
// Each setting has at most two rows: one for its value and one for its
// default. Writes are upserts, so a write either fully replaces the row or
// fails without touching it.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteStore: Store ready for use by a Registry
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// LoadAll implements Store.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, kind, data FROM setting_values ORDER BY key, kind`)
	if err != nil {
		return nil, fmt.Errorf("querying setting values: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	index := make(map[string]int)
	for rows.Next() {
		var key, kind string
		var data []byte
		if err := rows.Scan(&key, &kind, &data); err != nil {
			return nil, fmt.Errorf("scanning setting value: %w", err)
		}

		i, ok := index[key]
		if !ok {
			i = len(entries)
			index[key] = i
			entries = append(entries, Entry{Key: key})
		}

		switch kind {
		case kindValue:
			entries[i].Value = nonNil(data)
			entries[i].ValueSet = true
		case kindDefault:
			entries[i].Default = nonNil(data)
			entries[i].DefaultSet = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting values: %w", err)
	}
	return entries, nil
}

// WriteValue implements Store.
func (s *SQLiteStore) WriteValue(ctx context.Context, key string, data []byte) error {
	if err := s.upsert(ctx, key, kindValue, data); err != nil {
		return fmt.Errorf("writing value %q: %w", key, err)
	}
	return nil
}

// WriteDefault implements Store.
func (s *SQLiteStore) WriteDefault(ctx context.Context, key string, data []byte) error {
	if err := s.upsert(ctx, key, kindDefault, data); err != nil {
		return fmt.Errorf("writing default %q: %w", key, err)
	}
	return nil
}

// Delete removes both rows of key. It is used to drop settings that are no
// longer declared.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM setting_values WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) upsert(ctx context.Context, key, kind string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO setting_values (key, kind, data, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (key, kind) DO UPDATE SET
		     data = excluded.data,
		     updated_at = excluded.updated_at`,
		key,
		kind,
		nonNil(data),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// nonNil keeps zero-length blobs distinguishable from NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
