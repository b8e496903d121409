package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/pipenet"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/config"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

// pipedRoom builds grid g with one floor tile at (0,0) and pipe node 1
// under it, filled to pipeKPa.
func pipedRoom(t *testing.T, e *Engine, air *gas.Mixture, pipeKPa float64) {
	t.Helper()
	mustGrid(t, e, "g")
	mustAddTile(t, e, tile.NewFloorTile("g", at(0, 0), air))
	if _, err := e.ApplyPipeDelta("g", pipenet.Delta{AddNodes: []pipenet.Node{{ID: 1, Position: at(0, 0)}}}); err != nil {
		t.Fatal(err)
	}
	if pipeKPa > 0 {
		if err := e.FillNetwork("g", 1, airAt(gas.PipeVolume, pipeKPa)); err != nil {
			t.Fatal(err)
		}
	}
}

func mustDevice(t *testing.T, e *Engine, spec DeviceSpec) DeviceView {
	t.Helper()
	v, err := e.AddDevice(spec)
	if err != nil {
		t.Fatalf("AddDevice %s: %v", spec.ID, err)
	}
	if v.Broken {
		t.Fatalf("Device %s unexpectedly broken: %s", spec.ID, v.ConfigError)
	}
	return v
}

func networkMoles(t *testing.T, e *Engine, node pipenet.NodeID) float64 {
	t.Helper()
	m, err := e.NetworkMixture("g", node)
	if err != nil {
		t.Fatalf("NetworkMixture %d: %v", node, err)
	}
	return m.TotalMoles()
}

func TestVent_ReleaseNeverLowersOutlet(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewMixture(gas.CellVolume), 4500)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1, Interval: testDt})
	total := gridMoles(e, "g") + networkMoles(t, e, 1)

	prev := 0.0
	for i := 0; i < 20; i++ {
		e.Step(testDt)
		p := pressureAt(t, e, "g", at(0, 0))
		if p < prev {
			t.Fatalf("Tick %d: outlet pressure fell %.4f -> %.4f", i, prev, p)
		}
		if p > gas.OneAtmosphere+1e-6 {
			t.Fatalf("Tick %d: vent overshot its target: %.4f", i, p)
		}
		prev = p
	}
	if prev < 0.95*gas.OneAtmosphere {
		t.Errorf("Expected the room near target, got %.3f kPa", prev)
	}
	if after := gridMoles(e, "g") + networkMoles(t, e, 1); relDiff(total, after) > 1e-9 {
		t.Errorf("Moles drifted: %.9f -> %.9f", total, after)
	}
}

func TestVent_SiphonDrainsRoom(t *testing.T) {
	e, el := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewStandardAir(gas.CellVolume), 0)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1, Interval: testDt})
	e.Submit(Command{Kind: CmdSetMode, Target: "vent", Mode: VentSiphon})
	total := gridMoles(e, "g")

	e.Step(testDt)
	if p := pressureAt(t, e, "g", at(0, 0)); p >= gas.OneAtmosphere {
		t.Errorf("Expected the siphon to lower the room, got %.3f kPa", p)
	}
	if n := networkMoles(t, e, 1); n <= 0 {
		t.Errorf("Expected gas in the pipe")
	}
	if after := gridMoles(e, "g") + networkMoles(t, e, 1); relDiff(total, after) > 1e-9 {
		t.Errorf("Moles drifted: %.9f -> %.9f", total, after)
	}
	if countEvents(el, events.EventTypeVentModeChanged) != 1 {
		t.Errorf("Expected one VENT_MODE_CHANGED event")
	}
}

func TestPump_MovesGasBetweenNetworks(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewMixture(gas.CellVolume), 1000)
	if _, err := e.ApplyPipeDelta("g", pipenet.Delta{AddNodes: []pipenet.Node{{ID: 2, Position: at(1, 0)}}}); err != nil {
		t.Fatal(err)
	}
	mustDevice(t, e, DeviceSpec{ID: "pump", Kind: DevicePump, Grid: "g", Node: 1, Outlet: 2, Interval: testDt})
	inlet := networkMoles(t, e, 1)

	e.Step(testDt)
	moved := networkMoles(t, e, 2)
	if moved <= 0 {
		t.Fatalf("Expected the pump to fill the outlet network")
	}
	if relDiff(inlet, networkMoles(t, e, 1)+moved) > 1e-9 {
		t.Errorf("Pump lost gas")
	}
}

func TestScrubber_TakesOnlyFilteredGas(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	air := gas.NewStandardAir(gas.CellVolume)
	air.SetMoles(gas.CarbonDioxide, 10)
	oxygen := air.Moles(gas.Oxygen)
	pipedRoom(t, e, air, 0)
	mustDevice(t, e, DeviceSpec{ID: "scrub", Kind: DeviceScrubber, Grid: "g", Tile: at(0, 0), Node: 1, Interval: testDt})

	e.Step(testDt)
	room, _ := e.GetTileMixture("g", at(0, 0))
	pipe, _ := e.NetworkMixture("g", 1)
	ratio := e.Config().Devices.ScrubRatio
	if relDiff(pipe.Moles(gas.CarbonDioxide), 10*ratio) > 1e-9 {
		t.Errorf("Expected %.3f mol CO2 in the pipe, got %.6f", 10*ratio, pipe.Moles(gas.CarbonDioxide))
	}
	if pipe.Moles(gas.Oxygen) != 0 {
		t.Errorf("Scrubber took oxygen")
	}
	if relDiff(room.Moles(gas.Oxygen), oxygen) > 1e-12 {
		t.Errorf("Room oxygen changed")
	}
}

func TestPassthrough_DumpsPipeIntoRoom(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewMixture(gas.CellVolume), 2000)
	mustDevice(t, e, DeviceSpec{ID: "dump", Kind: DevicePassthrough, Grid: "g", Tile: at(0, 0), Node: 1, Interval: testDt})
	pipe := networkMoles(t, e, 1)

	e.Step(testDt)
	if n := networkMoles(t, e, 1); n != 0 {
		t.Errorf("Expected an empty pipe, got %.4f", n)
	}
	if relDiff(gridMoles(e, "g"), pipe) > 1e-9 {
		t.Errorf("Expected %.4f mol in the room, got %.4f", pipe, gridMoles(e, "g"))
	}
}

func TestDevice_ConfigErrorLoggedOnceAndDisabledForLife(t *testing.T) {
	var buf bytes.Buffer
	el := events.NewEventLog(nil)
	e := NewEngine(config.DefaultConfig(), el, logger.NewWriterLogger(&buf), metrics.NewCollector(), nil)
	mustGrid(t, e, "g")
	mustAddTile(t, e, tile.NewFloorTile("g", at(0, 0), gas.NewMixture(gas.CellVolume)))

	v, err := e.AddDevice(DeviceSpec{ID: "orphan", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 99})
	if err != nil {
		t.Fatalf("Miswired devices must still register: %v", err)
	}
	if !v.Broken || v.Enabled || v.ConfigError == "" {
		t.Fatalf("Expected a broken, disabled device, got %+v", v)
	}

	if err := e.ApplyWire("tech", "orphan", "power", "mend"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		e.Step(testDt)
	}
	if e.Devices()[0].Enabled {
		t.Error("Broken device was re-enabled")
	}
	if n := strings.Count(buf.String(), "no pipe node 99"); n != 1 {
		t.Errorf("Expected the config error logged once, got %d\n%s", n, buf.String())
	}
	if countEvents(el, events.EventTypeDeviceConfigError) != 1 {
		t.Errorf("Expected one DEVICE_CONFIG_ERROR event")
	}
}

func TestDevice_UnknownKindIsBroken(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewMixture(gas.CellVolume), 0)
	v, err := e.AddDevice(DeviceSpec{ID: "x", Kind: "HEATER", Grid: "g", Node: 1})
	if err != nil || !v.Broken {
		t.Errorf("Expected a broken device, got %+v, %v", v, err)
	}
	if _, err := e.AddDevice(DeviceSpec{ID: "x", Kind: DeviceVent, Grid: "g", Node: 1}); err == nil {
		t.Error("Expected duplicate ID to fail")
	}
}

func TestDevice_IDsSharedWithAlarms(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewStandardAir(gas.CellVolume), 0)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1})
	if err := e.AddMonitor(MonitorSpec{ID: "mon", Grid: "g", Tile: at(0, 0)}); err != nil {
		t.Fatal(err)
	}

	if err := e.AddMonitor(MonitorSpec{ID: "vent", Grid: "g", Tile: at(0, 0)}); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Expected a monitor reusing a device id to fail, got %v", err)
	}
	if err := e.AddAirAlarm(AirAlarmSpec{ID: "vent", Grid: "g", Tile: at(0, 0)}); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Expected an air alarm reusing a device id to fail, got %v", err)
	}
	if _, err := e.AddDevice(DeviceSpec{ID: "mon", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1}); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Expected a device reusing a monitor id to fail, got %v", err)
	}
}

func TestDevice_PowerCutKeepsTopology(t *testing.T) {
	e, el := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewMixture(gas.CellVolume), 4500)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1, Interval: testDt})

	if err := e.ApplyWire("tech", "vent", "POWER", "CUT"); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)
	if p := pressureAt(t, e, "g", at(0, 0)); p != 0 {
		t.Fatalf("Disabled vent moved gas: %.3f kPa", p)
	}
	if _, err := e.NetworkMixture("g", 1); err != nil {
		t.Fatalf("Disabling must keep the pipe: %v", err)
	}

	if err := e.ApplyWire("tech", "vent", "POWER", "MEND"); err != nil {
		t.Fatal(err)
	}
	e.Step(testDt)
	if p := pressureAt(t, e, "g", at(0, 0)); p <= 0 {
		t.Errorf("Expected the mended vent to run")
	}
	if countEvents(el, events.EventTypeDeviceToggled) != 2 || countEvents(el, events.EventTypeWireAction) != 2 {
		t.Errorf("Expected two DEVICE_TOGGLED and two WIRE_ACTION events")
	}
}

func TestDevice_UnpoweredDoesNothing(t *testing.T) {
	power := NewPowerGrid()
	e := NewEngine(config.DefaultConfig(), events.NewEventLog(nil), logger.Discard(), nil, power)
	pipedRoom(t, e, gas.NewMixture(gas.CellVolume), 4500)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1, Interval: testDt})

	power.SetPowered("vent", false)
	e.Step(testDt)
	if p := pressureAt(t, e, "g", at(0, 0)); p != 0 {
		t.Fatalf("Unpowered vent moved gas")
	}
	power.SetPowered("vent", true)
	e.Step(testDt)
	if p := pressureAt(t, e, "g", at(0, 0)); p <= 0 {
		t.Errorf("Expected the vent to run once powered")
	}
}

func TestDevice_RunsOnItsOwnCadence(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewMixture(gas.CellVolume), 4500)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1, Interval: time.Second})

	e.Step(testDt)
	if p := pressureAt(t, e, "g", at(0, 0)); p != 0 {
		t.Fatalf("Vent ran before its interval elapsed")
	}
	e.Step(testDt)
	if p := pressureAt(t, e, "g", at(0, 0)); p <= 0 {
		t.Errorf("Expected the vent to run after one interval")
	}
}

func TestDevice_StalePipeReferenceIsSkipped(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewMixture(gas.CellVolume), 4500)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1, Interval: testDt})
	pipe := networkMoles(t, e, 1)

	res, err := e.ApplyPipeDelta("g", pipenet.Delta{RemoveNodes: []pipenet.NodeID{1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Released) != 1 {
		t.Fatalf("Expected the removed node to release its gas")
	}
	if relDiff(gridMoles(e, "g"), pipe) > 1e-9 {
		t.Errorf("Released gas should vent into the tile: %.4f vs %.4f", gridMoles(e, "g"), pipe)
	}

	e.Step(testDt)
	if d := e.Devices()[0]; d.LastMoved != 0 {
		t.Errorf("Stale vent moved %.4f mol", d.LastMoved)
	}
}

func TestDevice_StatesRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, gas.NewMixture(gas.CellVolume), 0)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1})

	applied, skipped := e.RestoreDeviceStates([]DeviceState{
		{ID: "vent", Enabled: false, Mode: VentSiphon, TargetPressure: 50},
		{ID: "ghost", Enabled: true},
	})
	if applied != 1 || skipped != 1 {
		t.Fatalf("Expected 1 applied and 1 skipped, got %d/%d", applied, skipped)
	}
	got := e.DeviceStates()
	want := DeviceState{ID: "vent", Enabled: false, Mode: VentSiphon, TargetPressure: 50}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}
