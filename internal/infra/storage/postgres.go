// Package storage - postgres.go
// PostgreSQL implementation of EventRepository and DeviceStateRepository,
// for stations that share one ledger across server instances.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const postgresDriver = "pgx"

var postgresSchemas = []string{
	`CREATE TABLE IF NOT EXISTS event_log (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		timestamp TIMESTAMPTZ NOT NULL,
		event_type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		target_id TEXT,
		payload JSONB NOT NULL,
		tick BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_actor ON event_log(actor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_type ON event_log(event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_tick ON event_log(tick)`,
	`CREATE TABLE IF NOT EXISTS device_state (
		device_id TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		target_pressure DOUBLE PRECISION NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL
	)`,
}

// OpenPostgres connects through pgx and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres: empty DSN")
	}
	db, err := sql.Open(postgresDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range postgresSchemas {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return db, nil
}

// PostgresEventRepository implements EventRepository using PostgreSQL.
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository creates a new PostgreSQL event repository.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// Append inserts a new event into the immutable ledger.
func (r *PostgresEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO event_log (id, timestamp, event_type, actor_id, target_id, payload, tick)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.ActorID,
		event.TargetID,
		payloadJSON,
		event.Tick,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// GetAll retrieves the full ledger.
func (r *PostgresEventRepository) GetAll(ctx context.Context) ([]StoredEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, target_id, payload, tick
		FROM event_log
		ORDER BY seq ASC
	`

	return r.queryEvents(ctx, query)
}

// GetByActor retrieves all events raised by an entity.
func (r *PostgresEventRepository) GetByActor(ctx context.Context, actorID string) ([]StoredEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, target_id, payload, tick
		FROM event_log
		WHERE actor_id = $1
		ORDER BY seq ASC
	`

	return r.queryEvents(ctx, query, actorID)
}

// GetByEventType retrieves all events of a specific type.
func (r *PostgresEventRepository) GetByEventType(ctx context.Context, eventType string) ([]StoredEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, target_id, payload, tick
		FROM event_log
		WHERE event_type = $1
		ORDER BY seq ASC
	`

	return r.queryEvents(ctx, query, eventType)
}

// GetSinceTick retrieves events from a tick onwards.
func (r *PostgresEventRepository) GetSinceTick(ctx context.Context, tick int64) ([]StoredEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, target_id, payload, tick
		FROM event_log
		WHERE tick >= $1
		ORDER BY seq ASC
	`

	return r.queryEvents(ctx, query, tick)
}

// queryEvents is a helper to execute queries and scan results.
func (r *PostgresEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payloadJSON []byte
		var targetID sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.EventType,
			&e.ActorID,
			&targetID,
			&payloadJSON,
			&e.Tick,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if targetID.Valid {
			e.TargetID = targetID.String
		}

		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// PostgresDeviceStateRepository implements DeviceStateRepository using PostgreSQL.
type PostgresDeviceStateRepository struct {
	db *sql.DB
}

// NewPostgresDeviceStateRepository creates a device state repository.
func NewPostgresDeviceStateRepository(db *sql.DB) *PostgresDeviceStateRepository {
	return &PostgresDeviceStateRepository{db: db}
}

// Upsert writes one device's settings.
func (r *PostgresDeviceStateRepository) Upsert(ctx context.Context, snapshot DeviceSnapshot) error {
	if snapshot.LastUpdated.IsZero() {
		snapshot.LastUpdated = time.Now()
	}
	query := `
		INSERT INTO device_state (device_id, enabled, mode, target_pressure, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			mode = EXCLUDED.mode,
			target_pressure = EXCLUDED.target_pressure,
			last_updated = EXCLUDED.last_updated
	`
	_, err := r.db.ExecContext(ctx, query,
		snapshot.DeviceID, snapshot.Enabled, snapshot.Mode, snapshot.TargetPressure, snapshot.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device state: %w", err)
	}
	return nil
}

// GetByDeviceID returns nil when the device was never saved.
func (r *PostgresDeviceStateRepository) GetByDeviceID(ctx context.Context, deviceID string) (*DeviceSnapshot, error) {
	query := `SELECT device_id, enabled, mode, target_pressure, last_updated FROM device_state WHERE device_id = $1`
	var d DeviceSnapshot
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&d.DeviceID, &d.Enabled, &d.Mode, &d.TargetPressure, &d.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device state: %w", err)
	}
	return &d, nil
}

// List returns every saved device.
func (r *PostgresDeviceStateRepository) List(ctx context.Context) ([]DeviceSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id, enabled, mode, target_pressure, last_updated FROM device_state ORDER BY device_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list device state: %w", err)
	}
	defer rows.Close()

	var out []DeviceSnapshot
	for rows.Next() {
		var d DeviceSnapshot
		if err := rows.Scan(&d.DeviceID, &d.Enabled, &d.Mode, &d.TargetPressure, &d.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan device state: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Ensure the Postgres repositories implement their interfaces
var (
	_ EventRepository       = (*PostgresEventRepository)(nil)
	_ DeviceStateRepository = (*PostgresDeviceStateRepository)(nil)
)
