package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// InitSQLite opens the local SQLite database and creates the event log
// and device state tables.
func InitSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(db, sqliteSchemas); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

var sqliteSchemas = []string{
	`CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		target_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		tick INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_events_actor_id ON events(actor_id);`,
	`CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);`,
	`CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);`,
	`CREATE TABLE IF NOT EXISTS device_state (
		device_id TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		target_pressure REAL NOT NULL,
		last_updated DATETIME NOT NULL
	);`,
}

func createSchemas(db *sql.DB, schemas []string) error {
	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}
