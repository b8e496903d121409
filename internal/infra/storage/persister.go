package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

// EventPersister adapts an EventRepository to events.EventPersister and
// times every write.
type EventPersister struct {
	repo    EventRepository
	metrics *metrics.Collector
	timeout time.Duration
}

// NewEventPersister wraps repo. A nil collector disables metrics.
func NewEventPersister(repo EventRepository, m *metrics.Collector) *EventPersister {
	return &EventPersister{repo: repo, metrics: m, timeout: 5 * time.Second}
}

// Append stores one event.
func (p *EventPersister) Append(event events.Event) error {
	stored, err := ToStored(event)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordEventWrite(0, err)
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	err = p.repo.Append(ctx, stored)
	if p.metrics != nil {
		p.metrics.RecordEventWrite(time.Since(start), err)
	}
	return err
}

// ToStored flattens an event payload into its JSON object form.
func ToStored(event events.Event) (StoredEvent, error) {
	s := StoredEvent{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Tick:      event.Tick,
	}
	if event.Payload == nil {
		s.Payload = map[string]interface{}{}
		return s, nil
	}
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return s, fmt.Errorf("encode payload of %s: %w", event.ID, err)
	}
	if err := json.Unmarshal(raw, &s.Payload); err != nil {
		// Scalars and arrays are wrapped so every backend stores an object.
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return s, fmt.Errorf("decode payload of %s: %w", event.ID, err)
		}
		s.Payload = map[string]interface{}{"value": v}
	}
	return s, nil
}

var _ events.EventPersister = (*EventPersister)(nil)
