package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const sqliteEventColumns = `id, timestamp, event_type, actor_id, target_id, payload, tick`

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `INSERT INTO events (` + sqliteEventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Timestamp.UTC(), event.EventType, event.ActorID,
		event.TargetID, string(payloadBytes), event.Tick,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, where string, args ...interface{}) ([]StoredEvent, error) {
	query := `SELECT ` + sqliteEventColumns + ` FROM events ` + where + ` ORDER BY seq ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payloadStr string
		err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.ActorID,
			&e.TargetID, &payloadStr, &e.Tick,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetAll(ctx context.Context) ([]StoredEvent, error) {
	return r.getMany(ctx, "")
}

func (r *SQLiteEventRepository) GetByActor(ctx context.Context, actorID string) ([]StoredEvent, error) {
	return r.getMany(ctx, "WHERE actor_id = ?", actorID)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, eventType string) ([]StoredEvent, error) {
	return r.getMany(ctx, "WHERE event_type = ?", eventType)
}

func (r *SQLiteEventRepository) GetSinceTick(ctx context.Context, tick int64) ([]StoredEvent, error) {
	return r.getMany(ctx, "WHERE tick >= ?", tick)
}

// ---------------------------------------------------------
// SQLiteDeviceStateRepository
// ---------------------------------------------------------

type SQLiteDeviceStateRepository struct {
	db *sql.DB
}

func NewSQLiteDeviceStateRepository(db *sql.DB) *SQLiteDeviceStateRepository {
	return &SQLiteDeviceStateRepository{db: db}
}

func (r *SQLiteDeviceStateRepository) Upsert(ctx context.Context, snapshot DeviceSnapshot) error {
	if snapshot.LastUpdated.IsZero() {
		snapshot.LastUpdated = time.Now()
	}
	query := `
		INSERT INTO device_state (device_id, enabled, mode, target_pressure, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			enabled=excluded.enabled,
			mode=excluded.mode,
			target_pressure=excluded.target_pressure,
			last_updated=excluded.last_updated
	`
	_, err := r.db.ExecContext(ctx, query,
		snapshot.DeviceID, snapshot.Enabled, snapshot.Mode, snapshot.TargetPressure, snapshot.LastUpdated.UTC(),
	)
	return err
}

func (r *SQLiteDeviceStateRepository) GetByDeviceID(ctx context.Context, deviceID string) (*DeviceSnapshot, error) {
	query := `SELECT device_id, enabled, mode, target_pressure, last_updated FROM device_state WHERE device_id = ?`
	var d DeviceSnapshot
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&d.DeviceID, &d.Enabled, &d.Mode, &d.TargetPressure, &d.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *SQLiteDeviceStateRepository) List(ctx context.Context) ([]DeviceSnapshot, error) {
	query := `SELECT device_id, enabled, mode, target_pressure, last_updated FROM device_state ORDER BY device_id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []DeviceSnapshot
	for rows.Next() {
		var d DeviceSnapshot
		if err := rows.Scan(&d.DeviceID, &d.Enabled, &d.Mode, &d.TargetPressure, &d.LastUpdated); err != nil {
			return nil, err
		}
		snaps = append(snaps, d)
	}
	return snaps, rows.Err()
}

var (
	_ EventRepository       = (*SQLiteEventRepository)(nil)
	_ DeviceStateRepository = (*SQLiteDeviceStateRepository)(nil)
)
