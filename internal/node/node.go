// Package node opens the persistent side of a settings node: the SQLite
// database, the settings schema and the registry loaded from both.
//
// The daemon and the CLI share it so they always see the same settings.
package node

import (
	"context"
	"fmt"

	_ "github.com/nerrad567/gray-logic-settings/migrations" // registers embedded migrations

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-settings/internal/schema"
	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Node is an opened settings node.
type Node struct {
	DB        *database.DB
	Schema    *schema.Schema
	Registry  *settings.Registry
	ChangeLog *settings.SQLiteChangeLog
}

// Open opens and migrates the database, loads the schema, declares every
// setting, loads persisted state and provisions schema defaults.
//
// The registry is returned loaded. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, log Logger) (*Node, error) {
	policy, err := settings.ParseDefaultPolicy(cfg.Settings.DefaultPolicy)
	if err != nil {
		return nil, err
	}

	sch, err := schema.Load(cfg.Settings.Schema)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	sch.SetLogger(log)
	log.Info("schema loaded", "path", cfg.Settings.Schema, "settings", len(sch.Settings))

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	n, err := open(ctx, db, sch, policy, log)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
		return nil, err
	}
	return n, nil
}

func open(ctx context.Context, db *database.DB, sch *schema.Schema, policy settings.DefaultPolicy, log Logger) (*Node, error) {
	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	reg := settings.New(settings.NewSQLiteStore(db.DB),
		settings.WithDefaultPolicy(policy),
		settings.WithLogger(log))
	if err := sch.Declare(reg); err != nil {
		return nil, fmt.Errorf("declaring settings: %w", err)
	}
	if err := reg.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if err := sch.ApplyDefaults(ctx, reg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	log.Info("settings loaded", "settings", reg.Len(), "default_policy", policy.String())

	return &Node{
		DB:        db,
		Schema:    sch,
		Registry:  reg,
		ChangeLog: settings.NewSQLiteChangeLog(db.DB),
	}, nil
}

// Close closes the database.
func (n *Node) Close() error {
	return n.DB.Close()
}
