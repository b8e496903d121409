package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps events and device state in process memory. It
// backs the "memory" storage driver and is handy in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	events  []StoredEvent
	devices map[string]DeviceSnapshot
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[string]DeviceSnapshot)}
}

func (r *MemoryRepository) Append(_ context.Context, event StoredEvent) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) filter(keep func(StoredEvent) bool) []StoredEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []StoredEvent
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (r *MemoryRepository) GetAll(_ context.Context) ([]StoredEvent, error) {
	return r.filter(func(StoredEvent) bool { return true }), nil
}

func (r *MemoryRepository) GetByActor(_ context.Context, actorID string) ([]StoredEvent, error) {
	return r.filter(func(e StoredEvent) bool { return e.ActorID == actorID }), nil
}

func (r *MemoryRepository) GetByEventType(_ context.Context, eventType string) ([]StoredEvent, error) {
	return r.filter(func(e StoredEvent) bool { return e.EventType == eventType }), nil
}

func (r *MemoryRepository) GetSinceTick(_ context.Context, tick int64) ([]StoredEvent, error) {
	return r.filter(func(e StoredEvent) bool { return e.Tick >= tick }), nil
}

func (r *MemoryRepository) Upsert(_ context.Context, snapshot DeviceSnapshot) error {
	if snapshot.LastUpdated.IsZero() {
		snapshot.LastUpdated = time.Now()
	}
	r.mu.Lock()
	r.devices[snapshot.DeviceID] = snapshot
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetByDeviceID(_ context.Context, deviceID string) (*DeviceSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]DeviceSnapshot, error) {
	r.mu.RLock()
	out := make([]DeviceSnapshot, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

var (
	_ EventRepository       = (*MemoryRepository)(nil)
	_ DeviceStateRepository = (*MemoryRepository)(nil)
)
