// Package events provides the append-only log of simulation events.
// Alarm edges, device toggles, wire actions and topology changes land
// here; the overlay hub polls it and storage persists it.
package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a simulation event.
type EventType string

const (
	EventTypeMapLoaded            EventType = "MAP_LOADED"
	EventTypeAlarmChanged         EventType = "ALARM_CHANGED"
	EventTypeDeviceToggled        EventType = "DEVICE_TOGGLED"
	EventTypeDeviceConfigError    EventType = "DEVICE_CONFIG_ERROR"
	EventTypeVentModeChanged      EventType = "VENT_MODE_CHANGED"
	EventTypeWireAction           EventType = "WIRE_ACTION"
	EventTypeNetworkRepartitioned EventType = "NETWORK_REPARTITIONED"
	EventTypeZoneInfo             EventType = "ZONE_INFO"
	EventTypeTileRemoved          EventType = "TILE_REMOVED"
	EventTypeGridRemoved          EventType = "GRID_REMOVED"
	EventTypeEnergyDrift          EventType = "ENERGY_DRIFT"
	EventTypeHazard               EventType = "HAZARD"
)

// SystemActor is the actor ID for events raised by the engine itself.
const SystemActor = "SYSTEM_ATMOS"

// Event is an immutable record of something the simulation did.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`  // device, monitor or SYSTEM_ATMOS
	TargetID  string      `json:"target_id"` // grid or tile (optional)
	Payload   interface{} `json:"payload"`
	Tick      int64       `json:"tick"`
}

// AlarmChangedPayload describes one alarm edge.
type AlarmChangedPayload struct {
	Entity        string `json:"entity"`
	From          string `json:"from"`
	To            string `json:"to"`
	Forced        bool   `json:"forced"`
	IgnoreNetwork bool   `json:"ignore_network"`
}

// DeviceToggledPayload describes an enable/disable change.
type DeviceToggledPayload struct {
	Device  string `json:"device"`
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`
}

// WireActionPayload records an applied wire action.
type WireActionPayload struct {
	Device string `json:"device"`
	Wire   string `json:"wire"`
	Action string `json:"action"`
}

// HazardPayload describes a station incident, random or drilled.
type HazardPayload struct {
	Kind   string `json:"kind"`
	Grid   string `json:"grid"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Device string `json:"device,omitempty"`
	Reason string `json:"reason"` // RANDOM or DRILL
}

// RepartitionPayload summarises a pipe topology change.
type RepartitionPayload struct {
	Grid        string  `json:"grid"`
	Version     uint64  `json:"version"`
	Networks    int     `json:"networks"`
	Released    int     `json:"released"`
	EnergyDrift float64 `json:"energy_drift"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event Event) error
}

// ErrorHandler is told about persistence failures and dropped events.
type ErrorHandler func(event Event, err error)

var (
	// ErrQueueFull means the persister fell behind and the event was kept
	// in memory only.
	ErrQueueFull = errors.New("events: persistence queue full")
	// ErrClosed means the event arrived after Close and was kept in memory
	// only.
	ErrClosed = errors.New("events: log closed")
)

// EventLog is the in-memory append-only log. Persistence happens on a
// single background writer so stored order matches append order. Append
// never waits for the writer: when the queue is full the event is not
// persisted.
type EventLog struct {
	mu        sync.RWMutex
	events    []Event
	persister EventPersister
	onError   ErrorHandler

	queue   chan Event
	done    chan struct{}
	once    sync.Once
	closed  bool
	dropped int64
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return NewBufferedEventLog(persister, 1024, nil)
}

// NewBufferedEventLog sets the persistence queue size and an error hook.
func NewBufferedEventLog(persister EventPersister, buffer int, onError ErrorHandler) *EventLog {
	el := &EventLog{
		events:    make([]Event, 0),
		persister: persister,
		onError:   onError,
	}
	if persister != nil {
		if buffer < 1 {
			buffer = 1
		}
		el.queue = make(chan Event, buffer)
		el.done = make(chan struct{})
		go el.writeLoop()
	}
	return el
}

// Append adds a new event to the log, filling in ID and timestamp when
// missing. Events are immutable once appended.
func (el *EventLog) Append(event Event) Event {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var lost error
	el.mu.Lock()
	el.events = append(el.events, event)
	if el.queue != nil {
		if el.closed {
			lost = ErrClosed
		} else {
			select {
			case el.queue <- event:
			default:
				lost = ErrQueueFull
			}
		}
	}
	el.mu.Unlock()

	if lost != nil {
		atomic.AddInt64(&el.dropped, 1)
		if el.onError != nil {
			el.onError(event, lost)
		}
	}
	return event
}

// Dropped returns how many events were never handed to the persister.
func (el *EventLog) Dropped() int64 {
	return atomic.LoadInt64(&el.dropped)
}

func (el *EventLog) writeLoop() {
	defer close(el.done)
	for e := range el.queue {
		if err := el.persister.Append(e); err != nil && el.onError != nil {
			el.onError(e, err)
		}
	}
}

// Close flushes pending writes. Later appends stay in memory only.
func (el *EventLog) Close() {
	el.once.Do(func() {
		if el.queue == nil {
			return
		}
		el.mu.Lock()
		el.closed = true
		close(el.queue)
		el.mu.Unlock()
		<-el.done
	})
}

// Len returns the number of events appended so far.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// Since returns a copy of the events at index offset and later.
func (el *EventLog) Since(offset int) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(el.events) {
		return nil
	}
	out := make([]Event, len(el.events)-offset)
	copy(out, el.events[offset:])
	return out
}

// GetByActor returns all events raised by a specific actor.
func (el *EventLog) GetByActor(actorID string) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of one type.
func (el *EventLog) GetByType(t EventType) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the full history.
func (el *EventLog) Replay() []Event {
	return el.Since(0)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
