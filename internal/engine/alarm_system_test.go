package engine

import (
	"testing"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
)

func setPressure(t *testing.T, e *Engine, v tile.Vector2i, kPa float64) {
	t.Helper()
	if err := e.ModifyTile("g", v, func(tl *tile.TileAtmosphere) {
		tl.Air = airAt(gas.CellVolume, kPa)
	}); err != nil {
		t.Fatal(err)
	}
}

func alarmEvents(el *events.EventLog, entity string) []events.AlarmChangedPayload {
	var out []events.AlarmChangedPayload
	for _, ev := range el.GetByActor(entity) {
		if ev.Type == events.EventTypeAlarmChanged {
			out = append(out, ev.Payload.(events.AlarmChangedPayload))
		}
	}
	return out
}

func highest(t *testing.T, e *Engine, id string) alarm.Level {
	t.Helper()
	l, err := e.GetHighestAlert(id)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestMonitor_EdgeTriggeredOnRisingPressure(t *testing.T) {
	e, el := newTestEngine(t, nil)
	mustGrid(t, e, "g")
	mustAddTile(t, e, tile.NewFloorTile("g", at(0, 0), gas.NewStandardAir(gas.CellVolume)))
	if err := e.AddMonitor(MonitorSpec{ID: "mon", Grid: "g", Tile: at(0, 0), Interval: testDt}); err != nil {
		t.Fatal(err)
	}

	for _, p := range []float64{101.325, 200, 300, 390, 450, 560, 700, 800} {
		setPressure(t, e, at(0, 0), p)
		e.Step(testDt)
	}

	got := alarmEvents(el, "mon")
	if len(got) != 2 {
		t.Fatalf("Expected exactly 2 transitions, got %d: %+v", len(got), got)
	}
	if got[0].From != "NORMAL" || got[0].To != "WARNING" {
		t.Errorf("First transition: %s -> %s", got[0].From, got[0].To)
	}
	if got[1].From != "WARNING" || got[1].To != "DANGER" {
		t.Errorf("Second transition: %s -> %s", got[1].From, got[1].To)
	}
}

func TestMonitor_ForcedDangerOverridesUntilCleared(t *testing.T) {
	e, el := newTestEngine(t, nil)
	mustGrid(t, e, "g")
	mustAddTile(t, e, tile.NewFloorTile("g", at(0, 0), gas.NewStandardAir(gas.CellVolume)))
	if err := e.AddMonitor(MonitorSpec{ID: "mon", Grid: "g", Tile: at(0, 0), Interval: testDt}); err != nil {
		t.Fatal(err)
	}

	if err := e.Alert("mon", alarm.Danger); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		e.Step(testDt)
		if l := highest(t, e, "mon"); l != alarm.Danger {
			t.Fatalf("Tick %d: forced alarm fell back to %s", i, l)
		}
	}
	if err := e.Alert("mon", alarm.Normal); err != nil {
		t.Fatal(err)
	}
	if l := highest(t, e, "mon"); l != alarm.Normal {
		t.Errorf("Expected sampled Normal after clearing, got %s", l)
	}

	got := alarmEvents(el, "mon")
	if len(got) != 2 || !got[0].Forced || got[1].To != "NORMAL" {
		t.Errorf("Expected forced DANGER then NORMAL, got %+v", got)
	}
}

func TestMonitor_DeletedTileReadsAsVacuum(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustGrid(t, e, "g")
	mustAddTile(t, e, tile.NewFloorTile("g", at(0, 0), gas.NewStandardAir(gas.CellVolume)))
	if err := e.AddMonitor(MonitorSpec{ID: "mon", Grid: "g", Tile: at(0, 0), Interval: testDt}); err != nil {
		t.Fatal(err)
	}
	if err := e.RemoveTile("g", at(0, 0)); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)
	if l := highest(t, e, "mon"); l != alarm.Danger {
		t.Errorf("Expected DANGER over a missing floor, got %s", l)
	}
}

func TestMonitor_WatchesPipeNetwork(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewStandardAir(gas.CellVolume), 5000)
	if err := e.AddMonitor(MonitorSpec{ID: "pipe", Grid: "g", WatchPipe: true, Node: 1, Interval: testDt}); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)
	if l := highest(t, e, "pipe"); l != alarm.Warning {
		t.Errorf("Expected WARNING at 5000 kPa, got %s", l)
	}
}

func TestMonitor_PowerCutStopsSampling(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustGrid(t, e, "g")
	mustAddTile(t, e, tile.NewFloorTile("g", at(0, 0), gas.NewStandardAir(gas.CellVolume)))
	if err := e.AddMonitor(MonitorSpec{ID: "mon", Grid: "g", Tile: at(0, 0), Interval: testDt}); err != nil {
		t.Fatal(err)
	}
	if err := e.ApplyWire("tech", "mon", "POWER", "CUT"); err != nil {
		t.Fatal(err)
	}
	setPressure(t, e, at(0, 0), 800)
	e.Step(testDt)
	if l := highest(t, e, "mon"); l != alarm.Normal {
		t.Errorf("Unpowered monitor sampled %s", l)
	}
}

// roomWithAirAlarm sets up one tile, a vent on pipe node 1 and an air
// alarm in auto mode watching the tile through monitor "mon".
func roomWithAirAlarm(t *testing.T, e *Engine) {
	t.Helper()
	pipedRoom(t, e, gas.NewStandardAir(gas.CellVolume), 0)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1, Interval: testDt})
	if err := e.AddMonitor(MonitorSpec{ID: "mon", Grid: "g", Tile: at(0, 0), Interval: testDt}); err != nil {
		t.Fatal(err)
	}
	if err := e.AddAirAlarm(AirAlarmSpec{
		ID: "aa", Grid: "g", Tile: at(0, 0), Monitors: []string{"mon"}, Vents: []string{"vent"}, AutoMode: true,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestAirAlarm_IgnoreNetworkSuppressesPropagation(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	roomWithAirAlarm(t, e)

	if err := e.ApplyWire("tech", "mon", "NETWORK", "CUT"); err != nil {
		t.Fatal(err)
	}
	setPressure(t, e, at(0, 0), 600)
	e.Step(testDt)

	if l := highest(t, e, "mon"); l != alarm.Danger {
		t.Fatalf("Sampling must continue while ignoring the network, got %s", l)
	}
	if l := highest(t, e, "aa"); l != alarm.Normal {
		t.Errorf("Air alarm heard an ignored monitor: %s", l)
	}
	if mode := e.Devices()[0].Mode; mode != VentRelease {
		t.Errorf("Vent switched while the monitor was cut off: %s", mode)
	}

	if err := e.ApplyWire("tech", "mon", "NETWORK", "MEND"); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)
	if l := highest(t, e, "aa"); l != alarm.Danger {
		t.Errorf("Expected the air alarm in DANGER once mended, got %s", l)
	}
	if mode := e.Devices()[0].Mode; mode != VentSiphon {
		t.Errorf("Expected auto mode to siphon on DANGER, got %s", mode)
	}
}

func TestAirAlarm_PulseForcesDangerAndSiphon(t *testing.T) {
	e, el := newTestEngine(t, nil)
	roomWithAirAlarm(t, e)

	if err := e.ApplyWire("tech", "aa", "alarm", "pulse"); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)
	if l := highest(t, e, "aa"); l != alarm.Danger {
		t.Fatalf("Expected forced DANGER, got %s", l)
	}
	if mode := e.Devices()[0].Mode; mode != VentSiphon {
		t.Errorf("Expected siphon, got %s", mode)
	}

	if err := e.ApplyWire("tech", "aa", "alarm", "mend"); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)
	if l := highest(t, e, "aa"); l != alarm.Normal {
		t.Errorf("Expected NORMAL after mend, got %s", l)
	}
	if mode := e.Devices()[0].Mode; mode != VentRelease {
		t.Errorf("Expected release after NORMAL, got %s", mode)
	}
	if n := len(alarmEvents(el, "aa")); n != 2 {
		t.Errorf("Expected 2 air alarm transitions, got %d", n)
	}
}

func TestAirAlarm_NetworkCutStopsDrivingVents(t *testing.T) {
	e, el := newTestEngine(t, nil)
	roomWithAirAlarm(t, e)

	if err := e.ApplyWire("tech", "aa", "NETWORK", "CUT"); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)
	if err := e.ApplyWire("tech", "aa", "ALARM", "PULSE"); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)

	if l := highest(t, e, "aa"); l != alarm.Danger {
		t.Fatalf("Expected the cut air alarm to still go DANGER internally, got %s", l)
	}
	if mode := e.Devices()[0].Mode; mode != VentRelease {
		t.Errorf("Expected vent to stay in RELEASE while the network wire is cut, got %s", mode)
	}
	got := alarmEvents(el, "aa")
	if len(got) != 1 || !got[0].IgnoreNetwork {
		t.Errorf("Expected 1 transition flagged as network-ignored, got %+v", got)
	}

	if err := e.ApplyWire("tech", "aa", "NETWORK", "MEND"); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)
	if mode := e.Devices()[0].Mode; mode != VentSiphon {
		t.Errorf("Expected vent to catch up to DANGER once mended, got %s", mode)
	}
}

func TestAlarm_UnknownEntity(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	if _, err := e.GetHighestAlert("ghost"); err == nil {
		t.Error("Expected an error for an unknown entity")
	}
	if err := e.Alert("ghost", alarm.Danger); err == nil {
		t.Error("Expected an error alerting an unknown entity")
	}
}
