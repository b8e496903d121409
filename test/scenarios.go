// Package test - scenarios.go
// End-to-end station scenarios: load the default map, break something,
// and check that the atmosphere and alarms react the way crew expect.
package test

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/layout"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/engine"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/config"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

const (
	stationGrid = tile.GridID("station")
	scenarioDt  = 500 * time.Millisecond
)

// Default map landmarks.
var (
	roomAAlarm = tile.Vector2i{X: 3, Y: 5}
	roomBAlarm = tile.Vector2i{X: 16, Y: 5}
	roomAVent  = tile.Vector2i{X: 6, Y: 5}
	window     = tile.Vector2i{X: 19, Y: 4}
	tankNode   = tile.Vector2i{X: 4, Y: 3}
	roomBNode  = tile.Vector2i{X: 12, Y: 4}
)

// Result captures the outcome of one scenario.
type Result struct {
	Name   string
	Passed bool
	Reason string
	Ticks  int64
}

// Scenario is a named station run.
type Scenario struct {
	Name string
	Run  func(ctx context.Context) Result
}

// Station is a freshly loaded default map.
type Station struct {
	Engine   *engine.Engine
	EventLog *events.EventLog
	Report   engine.LoadReport
}

// NewStation loads the default map into a new engine. tune may adjust the
// default config before the engine is built.
func NewStation(tune func(cfg *config.Config)) (*Station, error) {
	cfg := config.DefaultConfig()
	if tune != nil {
		tune(cfg)
	}
	m, err := layout.Load(layout.DefaultMap)
	if err != nil {
		return nil, err
	}
	el := events.NewEventLog(nil)
	eng := engine.NewEngine(cfg, el, logger.Discard(), metrics.NewCollector(), nil)
	rep, err := eng.LoadLayout(m, stationGrid)
	if err != nil {
		return nil, err
	}
	return &Station{Engine: eng, EventLog: el, Report: rep}, nil
}

// StepUntil steps the station until cond holds, ctx ends or limit ticks
// have passed. It reports whether cond held.
func (s *Station) StepUntil(ctx context.Context, limit int, cond func() bool) bool {
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			return false
		}
		s.Engine.Step(scenarioDt)
		if cond() {
			return true
		}
	}
	return false
}

// TotalMoles sums every tile of the grid plus both pipe networks.
func (s *Station) TotalMoles() (float64, error) {
	views, err := s.Engine.GridView(stationGrid)
	if err != nil {
		return 0, err
	}
	coords := make([]tile.Vector2i, 0, len(views))
	for _, v := range views {
		coords = append(coords, v.Indices)
	}
	snap, err := s.Engine.ZoneInfo("SCENARIO", stationGrid, coords)
	if err != nil {
		return 0, err
	}
	total := snap.TotalMoles
	for _, at := range []tile.Vector2i{tankNode, roomBNode} {
		m, err := s.Engine.NetworkMixture(stationGrid, s.Report.Nodes[at])
		if err != nil {
			return 0, err
		}
		total += m.TotalMoles()
	}
	return total, nil
}

func (s *Station) level(at tile.Vector2i) alarm.Level {
	l, err := s.Engine.GetHighestAlert(engine.DeviceID(stationGrid, "air_alarm", at))
	if err != nil {
		return alarm.Normal
	}
	return l
}

func (s *Station) device(id string) (engine.DeviceView, bool) {
	for _, d := range s.Engine.Devices() {
		if d.ID == id {
			return d, true
		}
	}
	return engine.DeviceView{}, false
}

func fail(name string, ticks int64, format string, args ...interface{}) Result {
	return Result{Name: name, Ticks: ticks, Reason: fmt.Sprintf(format, args...)}
}

// HullBreach shatters the room B window and expects the room B air alarm
// to leave NORMAL while the sealed room A stays quiet.
func HullBreach(limit int) Scenario {
	const name = "Hull breach"
	return Scenario{Name: name, Run: func(ctx context.Context) Result {
		s, err := NewStation(nil)
		if err != nil {
			return fail(name, 0, "load: %v", err)
		}
		s.StepUntil(ctx, 10, func() bool { return false })
		if l := s.level(roomBAlarm); l != alarm.Normal {
			return fail(name, s.Engine.Tick(), "room B at %s before the breach", l)
		}

		if err := s.Engine.TriggerHazard(stationGrid, engine.HazardBreach, window); err != nil {
			return fail(name, s.Engine.Tick(), "shatter window: %v", err)
		}

		if !s.StepUntil(ctx, limit, func() bool { return s.level(roomBAlarm) != alarm.Normal }) {
			return fail(name, s.Engine.Tick(), "room B alarm still NORMAL after %d ticks", limit)
		}
		if l := s.level(roomAAlarm); l != alarm.Normal {
			return fail(name, s.Engine.Tick(), "room A leaked through the door: %s", l)
		}
		return Result{Name: name, Passed: true, Ticks: s.Engine.Tick(),
			Reason: "room B alarm at " + s.level(roomBAlarm).String()}
	}}
}

// WireSabotage cuts and mends the vent power wire, then pulses and mends
// the room A alarm wire.
func WireSabotage() Scenario {
	const name = "Wire sabotage"
	return Scenario{Name: name, Run: func(ctx context.Context) Result {
		s, err := NewStation(nil)
		if err != nil {
			return fail(name, 0, "load: %v", err)
		}
		vent := engine.DeviceID(stationGrid, "vent", roomAVent)
		aa := engine.DeviceID(stationGrid, "air_alarm", roomAAlarm)

		steps := []struct {
			target, wire, action string
			check                func() error
		}{
			{vent, "POWER", "CUT", func() error {
				if d, _ := s.device(vent); d.Enabled {
					return fmt.Errorf("vent still powered after cut")
				}
				return nil
			}},
			{vent, "POWER", "MEND", func() error {
				if d, _ := s.device(vent); !d.Enabled {
					return fmt.Errorf("vent unpowered after mend")
				}
				return nil
			}},
			{aa, "ALARM", "PULSE", func() error {
				if l := s.level(roomAAlarm); l != alarm.Danger {
					return fmt.Errorf("expected DANGER after pulse, got %s", l)
				}
				if d, _ := s.device(vent); d.Mode != engine.VentSiphon {
					return fmt.Errorf("expected vent to siphon, got %s", d.Mode)
				}
				return nil
			}},
			{aa, "ALARM", "MEND", func() error {
				if l := s.level(roomAAlarm); l != alarm.Normal {
					return fmt.Errorf("expected NORMAL after mend, got %s", l)
				}
				if d, _ := s.device(vent); d.Mode != engine.VentRelease {
					return fmt.Errorf("expected vent to release, got %s", d.Mode)
				}
				return nil
			}},
		}
		for _, st := range steps {
			if ctx.Err() != nil {
				return fail(name, s.Engine.Tick(), "cancelled")
			}
			if err := s.Engine.ApplyWire("SCENARIO", st.target, st.wire, st.action); err != nil {
				return fail(name, s.Engine.Tick(), "%s %s: %v", st.wire, st.action, err)
			}
			s.Engine.Step(scenarioDt)
			if err := st.check(); err != nil {
				return fail(name, s.Engine.Tick(), "%s %s: %v", st.wire, st.action, err)
			}
		}
		return Result{Name: name, Passed: true, Ticks: s.Engine.Tick()}
	}}
}

// Conservation runs the sealed station with space venting off and checks
// that no gas appears or disappears.
func Conservation(ticks int) Scenario {
	const name = "Mole conservation"
	return Scenario{Name: name, Run: func(ctx context.Context) Result {
		s, err := NewStation(func(cfg *config.Config) { cfg.Atmos.SpaceVenting = false })
		if err != nil {
			return fail(name, 0, "load: %v", err)
		}
		before, err := s.TotalMoles()
		if err != nil {
			return fail(name, 0, "sum: %v", err)
		}
		s.StepUntil(ctx, ticks, func() bool { return false })
		after, err := s.TotalMoles()
		if err != nil {
			return fail(name, s.Engine.Tick(), "sum: %v", err)
		}
		if math.Abs(after-before) > before*1e-6 {
			return fail(name, s.Engine.Tick(), "moles drifted from %.4f to %.4f", before, after)
		}
		return Result{Name: name, Passed: true, Ticks: s.Engine.Tick(),
			Reason: fmt.Sprintf("%.4f mol held", after)}
	}}
}

// RunAll runs every scenario in order.
func RunAll(ctx context.Context, scenarios []Scenario) []Result {
	out := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, sc.Run(ctx))
	}
	return out
}
