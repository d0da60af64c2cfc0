package settings

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultChangeLimit = 50
	maxChangeLimit     = 500
)

// Change sources recorded in the change log.
const (
	ChangeSourceRemote  = "remote"
	ChangeSourceShell   = "shell"
	ChangeSourceJSON    = "json"
	ChangeSourceRestore = "restore"
	ChangeSourceAPI     = "api"
)

// ChangeRecord is one row of the change log.
type ChangeRecord struct {
	ID        int64
	SettingID uint16
	Key       string
	Source    string
	ChangedAt time.Time
}

// SQLiteChangeLog records runtime value changes in the setting_changes table.
//
// It only stores which setting changed, when and through which surface.
// The values themselves stay in setting_values.
type SQLiteChangeLog struct {
	db *sql.DB
}

// NewSQLiteChangeLog creates a change log on an open, migrated database.
func NewSQLiteChangeLog(db *sql.DB) *SQLiteChangeLog {
	return &SQLiteChangeLog{db: db}
}

// Record appends a change entry.
func (c *SQLiteChangeLog) Record(ctx context.Context, id uint16, key, source string) error {
	if key == "" {
		return fmt.Errorf("setting key is required")
	}
	if source == "" {
		source = ChangeSourceRemote
	}
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO setting_changes (setting_id, key, source, changed_at) VALUES (?, ?, ?, ?)",
		id,
		key,
		source,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting setting change: %w", err)
	}
	return nil
}

// Recent returns the latest changes of key, newest first.
// A limit of 0 or less uses 50; limits above 500 are capped.
func (c *SQLiteChangeLog) Recent(ctx context.Context, key string, limit int) ([]ChangeRecord, error) {
	if limit <= 0 {
		limit = defaultChangeLimit
	}
	if limit > maxChangeLimit {
		limit = maxChangeLimit
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, setting_id, key, source, changed_at
		 FROM setting_changes
		 WHERE key = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		key,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying setting changes: %w", err)
	}
	defer rows.Close()

	records := make([]ChangeRecord, 0, limit)
	for rows.Next() {
		var r ChangeRecord
		var changedAt string
		if err := rows.Scan(&r.ID, &r.SettingID, &r.Key, &r.Source, &changedAt); err != nil {
			return nil, fmt.Errorf("scanning setting change: %w", err)
		}
		r.ChangedAt, _ = time.Parse(time.RFC3339Nano, changedAt) //nolint:errcheck // format is controlled
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting changes: %w", err)
	}
	return records, nil
}
