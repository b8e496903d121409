// Package storage - reconstructor.go
// Alarm history rebuilt from the event log: state = f(events).
package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
)

// Reconstructor rebuilds alarm state from the event log. It serves:
// 1. The operator "what happened" recap after reconnecting
// 2. Restoring the last known alarm picture after a restart
// 3. Auditing device and wire actions
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new state reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// AlarmTransition is one stored ALARM_CHANGED edge.
type AlarmTransition struct {
	Tick      int64     `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
	Entity    string    `json:"entity"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Forced    bool      `json:"forced"`
}

// RecapEvent is a simplified event for the operator history screen.
type RecapEvent struct {
	Tick      int64  `json:"tick"`
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	ActorID   string `json:"actor_id"`
	Summary   string `json:"summary"` // Human-readable description
	Impact    string `json:"impact"`  // "NEGATIVE", "POSITIVE", "NEUTRAL"
}

// AlarmTimeline lists the transitions of one entity, or of every entity
// when entity is empty, from sinceTick onwards.
func (r *Reconstructor) AlarmTimeline(ctx context.Context, entity string, sinceTick int64) ([]AlarmTransition, error) {
	stored, err := r.eventRepo.GetByEventType(ctx, string(events.EventTypeAlarmChanged))
	if err != nil {
		return nil, fmt.Errorf("failed to get alarm events: %w", err)
	}

	var out []AlarmTransition
	for _, e := range stored {
		if e.Tick < sinceTick {
			continue
		}
		tr := AlarmTransition{
			Tick:      e.Tick,
			Timestamp: e.Timestamp,
			Entity:    payloadString(e, "entity"),
			From:      payloadString(e, "from"),
			To:        payloadString(e, "to"),
			Forced:    payloadBool(e, "forced"),
		}
		if tr.Entity == "" {
			tr.Entity = e.ActorID
		}
		if entity != "" && tr.Entity != entity {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

// RebuildAlarmLevels replays every transition and returns the last level
// reached per entity.
func (r *Reconstructor) RebuildAlarmLevels(ctx context.Context) (map[string]alarm.Level, error) {
	timeline, err := r.AlarmTimeline(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	levels := make(map[string]alarm.Level)
	for _, tr := range timeline {
		if l, ok := alarm.ParseLevel(tr.To); ok {
			levels[tr.Entity] = l
		}
	}
	return levels, nil
}

// GenerateRecap summarises everything involving actorID since a tick.
// An empty actorID returns the whole station.
func (r *Reconstructor) GenerateRecap(ctx context.Context, actorID string, sinceTick int64) ([]RecapEvent, error) {
	all, err := r.eventRepo.GetSinceTick(ctx, sinceTick)
	if err != nil {
		return nil, err
	}

	var recap []RecapEvent
	for _, e := range all {
		if actorID != "" && e.ActorID != actorID && e.TargetID != actorID && payloadString(e, "device") != actorID {
			continue
		}
		recap = append(recap, RecapEvent{
			Tick:      e.Tick,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			EventType: e.EventType,
			ActorID:   e.ActorID,
			Summary:   r.summarizeEvent(e),
			Impact:    r.determineImpact(e),
		})
	}
	sort.SliceStable(recap, func(i, j int) bool { return recap[i].Tick < recap[j].Tick })
	return recap, nil
}

// summarizeEvent creates a human-readable summary.
func (r *Reconstructor) summarizeEvent(e StoredEvent) string {
	switch events.EventType(e.EventType) {
	case events.EventTypeAlarmChanged:
		s := fmt.Sprintf("%s went from %s to %s", e.ActorID, payloadString(e, "from"), payloadString(e, "to"))
		if payloadBool(e, "forced") {
			s += " (forced)"
		}
		return s
	case events.EventTypeDeviceToggled:
		state := "disabled"
		if payloadBool(e, "enabled") {
			state = "enabled"
		}
		return fmt.Sprintf("%s %s (%s)", payloadString(e, "device"), state, payloadString(e, "reason"))
	case events.EventTypeWireAction:
		return fmt.Sprintf("%s: %s wire %s", payloadString(e, "device"), payloadString(e, "wire"), payloadString(e, "action"))
	case events.EventTypeVentModeChanged:
		return fmt.Sprintf("%s switched to %s", e.ActorID, payloadString(e, "mode"))
	case events.EventTypeDeviceConfigError:
		return fmt.Sprintf("%s misconfigured: %s", e.ActorID, payloadString(e, "error"))
	case events.EventTypeTileRemoved:
		return fmt.Sprintf("tile %s removed", e.TargetID)
	case events.EventTypeGridRemoved:
		return fmt.Sprintf("grid %s removed", e.TargetID)
	case events.EventTypeNetworkRepartitioned:
		return fmt.Sprintf("pipes on %s rebuilt", e.TargetID)
	case events.EventTypeMapLoaded:
		return fmt.Sprintf("map loaded on %s", e.TargetID)
	case events.EventTypeHazard:
		s := fmt.Sprintf("%s at %s", payloadString(e, "kind"), e.TargetID)
		if d := payloadString(e, "device"); d != "" {
			s += " (" + d + ")"
		}
		return s + " [" + payloadString(e, "reason") + "]"
	default:
		return fmt.Sprintf("%s by %s", e.EventType, e.ActorID)
	}
}

// determineImpact classifies the event impact.
func (r *Reconstructor) determineImpact(e StoredEvent) string {
	switch events.EventType(e.EventType) {
	case events.EventTypeAlarmChanged:
		from, _ := alarm.ParseLevel(payloadString(e, "from"))
		to, _ := alarm.ParseLevel(payloadString(e, "to"))
		if to > from {
			return "NEGATIVE"
		}
		if to < from {
			return "POSITIVE"
		}
		return "NEUTRAL"
	case events.EventTypeDeviceConfigError, events.EventTypeTileRemoved, events.EventTypeGridRemoved, events.EventTypeEnergyDrift, events.EventTypeHazard:
		return "NEGATIVE"
	default:
		return "NEUTRAL"
	}
}

func payloadString(e StoredEvent, key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadBool(e StoredEvent, key string) bool {
	v, _ := e.Payload[key].(bool)
	return v
}
