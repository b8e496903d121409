// Package storage provides the persistence layer for the atmospherics server.
// It implements the repository pattern so the engine never touches SQL.
package storage

import (
	"context"
	"time"
)

// StoredEvent mirrors events.Event for persistence. Payloads are kept as
// decoded JSON so any backend can hand them back without knowing the type.
type StoredEvent struct {
	ID        string                 `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	TargetID  string                 `json:"target_id" db:"target_id"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
	Tick      int64                  `json:"tick" db:"tick"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event StoredEvent) error

	// GetAll retrieves the full history in tick order.
	GetAll(ctx context.Context) ([]StoredEvent, error)

	// GetByActor retrieves all events raised by one entity.
	GetByActor(ctx context.Context, actorID string) ([]StoredEvent, error)

	// GetByEventType retrieves all events of a specific type.
	GetByEventType(ctx context.Context, eventType string) ([]StoredEvent, error)

	// GetSinceTick retrieves events stamped at tick or later.
	GetSinceTick(ctx context.Context, tick int64) ([]StoredEvent, error)
}

// DeviceSnapshot is the operator-controlled state of one device.
type DeviceSnapshot struct {
	DeviceID       string    `json:"device_id" db:"device_id"`
	Enabled        bool      `json:"enabled" db:"enabled"`
	Mode           string    `json:"mode" db:"mode"`
	TargetPressure float64   `json:"target_pressure" db:"target_pressure"`
	LastUpdated    time.Time `json:"last_updated" db:"last_updated"`
}

// DeviceStateRepository keeps device settings across restarts.
type DeviceStateRepository interface {
	// Upsert updates or inserts one device's settings.
	Upsert(ctx context.Context, snapshot DeviceSnapshot) error

	// GetByDeviceID returns nil when nothing was saved for the device.
	GetByDeviceID(ctx context.Context, deviceID string) (*DeviceSnapshot, error)

	// List returns every saved device ordered by ID.
	List(ctx context.Context) ([]DeviceSnapshot, error)
}
