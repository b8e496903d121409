package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

func openTestDB(t *testing.T) (*SQLiteEventRepository, *SQLiteDeviceStateRepository) {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "nested", "atmos.db"))
	if err != nil {
		t.Fatalf("InitSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteEventRepository(db), NewSQLiteDeviceStateRepository(db)
}

func alarmEvent(id, entity, from, to string, tick int64) StoredEvent {
	return StoredEvent{
		ID:        id,
		Timestamp: time.Unix(1700000000+tick, 0).UTC(),
		EventType: string(events.EventTypeAlarmChanged),
		ActorID:   entity,
		TargetID:  "station",
		Payload:   map[string]interface{}{"entity": entity, "from": from, "to": to, "forced": false},
		Tick:      tick,
	}
}

func TestSQLite_AppendAndQuery(t *testing.T) {
	repo, _ := openTestDB(t)
	ctx := context.Background()

	seed := []StoredEvent{
		alarmEvent("e1", "mon-a", "NORMAL", "WARNING", 3),
		alarmEvent("e2", "mon-b", "NORMAL", "DANGER", 5),
		{ID: "e3", Timestamp: time.Now(), EventType: "DEVICE_TOGGLED", ActorID: "vent-1",
			Payload: map[string]interface{}{"device": "vent-1", "enabled": false}, Tick: 7},
		alarmEvent("e4", "mon-a", "WARNING", "NORMAL", 9),
	}
	for _, e := range seed {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append %s failed: %v", e.ID, err)
		}
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(all))
	}
	for i, want := range []string{"e1", "e2", "e3", "e4"} {
		if all[i].ID != want {
			t.Errorf("Expected append order at %d to be %s, got %s", i, want, all[i].ID)
		}
	}
	if all[0].Payload["to"] != "WARNING" {
		t.Errorf("Expected payload to round trip, got %v", all[0].Payload)
	}

	byActor, _ := repo.GetByActor(ctx, "mon-a")
	if len(byActor) != 2 {
		t.Errorf("Expected 2 events for mon-a, got %d", len(byActor))
	}
	byType, _ := repo.GetByEventType(ctx, "DEVICE_TOGGLED")
	if len(byType) != 1 || byType[0].ActorID != "vent-1" {
		t.Errorf("Expected the single toggle event, got %+v", byType)
	}
	since, _ := repo.GetSinceTick(ctx, 5)
	if len(since) != 3 {
		t.Errorf("Expected 3 events from tick 5, got %d", len(since))
	}
}

func TestSQLite_DuplicateIDRejected(t *testing.T) {
	repo, _ := openTestDB(t)
	ctx := context.Background()
	e := alarmEvent("dup", "mon", "NORMAL", "DANGER", 1)
	if err := repo.Append(ctx, e); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	if err := repo.Append(ctx, e); err == nil {
		t.Error("Expected the ledger to reject a duplicate event ID")
	}
}

func TestSQLite_DeviceStateUpsert(t *testing.T) {
	_, states := openTestDB(t)
	ctx := context.Background()

	missing, err := states.GetByDeviceID(ctx, "vent-1")
	if err != nil || missing != nil {
		t.Fatalf("Expected nil for an unsaved device, got %+v, %v", missing, err)
	}

	if err := states.Upsert(ctx, DeviceSnapshot{DeviceID: "vent-1", Enabled: true, Mode: "RELEASE", TargetPressure: 101.325}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := states.Upsert(ctx, DeviceSnapshot{DeviceID: "vent-1", Enabled: false, Mode: "SIPHON", TargetPressure: 50}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if err := states.Upsert(ctx, DeviceSnapshot{DeviceID: "pump-1", Enabled: true, TargetPressure: 4500}); err != nil {
		t.Fatalf("Upsert pump failed: %v", err)
	}

	got, err := states.GetByDeviceID(ctx, "vent-1")
	if err != nil || got == nil {
		t.Fatalf("GetByDeviceID failed: %v", err)
	}
	if got.Enabled || got.Mode != "SIPHON" || got.TargetPressure != 50 {
		t.Errorf("Expected the second write to win, got %+v", got)
	}

	list, err := states.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].DeviceID != "pump-1" || list[1].DeviceID != "vent-1" {
		t.Errorf("Expected pump-1 then vent-1, got %+v", list)
	}
}

func TestMemory_MatchesRepositoryContract(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	repo.Append(ctx, alarmEvent("a", "mon", "NORMAL", "WARNING", 1))
	repo.Append(ctx, alarmEvent("b", "mon", "WARNING", "DANGER", 4))

	since, _ := repo.GetSinceTick(ctx, 2)
	if len(since) != 1 || since[0].ID != "b" {
		t.Errorf("Expected only b from tick 2, got %+v", since)
	}

	repo.Upsert(ctx, DeviceSnapshot{DeviceID: "z", Enabled: true})
	repo.Upsert(ctx, DeviceSnapshot{DeviceID: "a", Enabled: true})
	list, _ := repo.List(ctx)
	if len(list) != 2 || list[0].DeviceID != "a" {
		t.Errorf("Expected sorted device list, got %+v", list)
	}
	if list[0].LastUpdated.IsZero() {
		t.Error("Expected Upsert to stamp LastUpdated")
	}
}

func TestPersister_FlattensPayloadAndRecordsMetrics(t *testing.T) {
	repo := NewMemoryRepository()
	m := metrics.NewCollector()
	p := NewEventPersister(repo, m)

	err := p.Append(events.Event{
		ID:        "x1",
		Timestamp: time.Now(),
		Type:      events.EventTypeAlarmChanged,
		ActorID:   "mon",
		Payload:   events.AlarmChangedPayload{Entity: "mon", From: "NORMAL", To: "DANGER"},
		Tick:      12,
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := p.Append(events.Event{ID: "x2", Type: events.EventTypeEnergyDrift, Payload: 0.5}); err != nil {
		t.Fatalf("scalar Append failed: %v", err)
	}

	all, _ := repo.GetAll(context.Background())
	if len(all) != 2 {
		t.Fatalf("Expected 2 stored events, got %d", len(all))
	}
	if all[0].Payload["to"] != "DANGER" || all[0].Tick != 12 {
		t.Errorf("Expected struct payload flattened to JSON keys, got %+v", all[0])
	}
	if all[1].Payload["value"] != 0.5 {
		t.Errorf("Expected scalar payload wrapped under value, got %v", all[1].Payload)
	}

	snap := m.Snapshot()["events"].(map[string]interface{})
	if snap["written"].(int64) != 2 {
		t.Errorf("Expected 2 recorded writes, got %v", snap["written"])
	}
}

func TestPersister_WorksBehindEventLog(t *testing.T) {
	repo, _ := openTestDB(t)
	el := events.NewEventLog(NewEventPersister(repo, nil))
	for i := 0; i < 20; i++ {
		el.Append(events.Event{Type: events.EventTypeZoneInfo, ActorID: "op", Tick: int64(i)})
	}
	el.Close()

	all, err := repo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 20 {
		t.Fatalf("Expected 20 persisted events, got %d", len(all))
	}
	for i, e := range all {
		if e.Tick != int64(i) {
			t.Fatalf("Expected stored order to match append order, got tick %d at %d", e.Tick, i)
		}
	}
}

func TestReconstructor_AlarmTimelineAndLevels(t *testing.T) {
	repo, _ := openTestDB(t)
	ctx := context.Background()
	for _, e := range []StoredEvent{
		alarmEvent("1", "mon-a", "NORMAL", "WARNING", 2),
		alarmEvent("2", "mon-b", "NORMAL", "DANGER", 3),
		alarmEvent("3", "mon-a", "WARNING", "DANGER", 6),
		alarmEvent("4", "mon-b", "DANGER", "NORMAL", 8),
	} {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReconstructor(repo)
	timeline, err := r.AlarmTimeline(ctx, "mon-a", 0)
	if err != nil {
		t.Fatalf("AlarmTimeline failed: %v", err)
	}
	if len(timeline) != 2 || timeline[1].To != "DANGER" {
		t.Errorf("Expected mon-a NORMAL->WARNING->DANGER, got %+v", timeline)
	}

	late, _ := r.AlarmTimeline(ctx, "", 5)
	if len(late) != 2 {
		t.Errorf("Expected 2 transitions from tick 5, got %d", len(late))
	}

	levels, err := r.RebuildAlarmLevels(ctx)
	if err != nil {
		t.Fatalf("RebuildAlarmLevels failed: %v", err)
	}
	if levels["mon-a"] != alarm.Danger || levels["mon-b"] != alarm.Normal {
		t.Errorf("Expected mon-a DANGER and mon-b NORMAL, got %v", levels)
	}
}

func TestReconstructor_RecapImpact(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	repo.Append(ctx, alarmEvent("1", "mon", "NORMAL", "DANGER", 1))
	repo.Append(ctx, alarmEvent("2", "mon", "DANGER", "NORMAL", 2))
	repo.Append(ctx, StoredEvent{ID: "3", EventType: "WIRE_ACTION", ActorID: "operator",
		Payload: map[string]interface{}{"device": "vent-1", "wire": "POWER", "action": "CUT"}, Tick: 3})

	recap, err := NewReconstructor(repo).GenerateRecap(ctx, "", 0)
	if err != nil {
		t.Fatalf("GenerateRecap failed: %v", err)
	}
	if len(recap) != 3 {
		t.Fatalf("Expected 3 recap entries, got %d", len(recap))
	}
	if recap[0].Impact != "NEGATIVE" || recap[1].Impact != "POSITIVE" || recap[2].Impact != "NEUTRAL" {
		t.Errorf("Unexpected impacts: %s %s %s", recap[0].Impact, recap[1].Impact, recap[2].Impact)
	}
	if recap[2].Summary != "vent-1: POWER wire CUT" {
		t.Errorf("Unexpected wire summary %q", recap[2].Summary)
	}

	deviceOnly, _ := NewReconstructor(repo).GenerateRecap(ctx, "vent-1", 0)
	if len(deviceOnly) != 1 {
		t.Errorf("Expected the wire action to be found through its payload device, got %d", len(deviceOnly))
	}
}

func TestReconstructor_HazardSummary(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	repo.Append(ctx, StoredEvent{ID: "h1", EventType: "HAZARD", ActorID: "SYSTEM_ATMOS", TargetID: "station(6,5)",
		Payload: map[string]interface{}{"kind": "DEVICE_FAULT", "device": "station-vent-6-5", "reason": "RANDOM"}, Tick: 4})

	recap, err := NewReconstructor(repo).GenerateRecap(ctx, "station-vent-6-5", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recap) != 1 {
		t.Fatalf("Expected the fault in the vent's recap, got %d", len(recap))
	}
	if recap[0].Summary != "DEVICE_FAULT at station(6,5) (station-vent-6-5) [RANDOM]" {
		t.Errorf("Unexpected summary %q", recap[0].Summary)
	}
	if recap[0].Impact != "NEGATIVE" {
		t.Errorf("Expected NEGATIVE, got %s", recap[0].Impact)
	}
}
