package engine

import (
	"fmt"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/pipenet"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
)

// MonitorSpec describes a gas monitor. A monitor watches either a tile
// or, with WatchPipe, the pipe network holding Node.
type MonitorSpec struct {
	ID        string         `json:"id"`
	Grid      tile.GridID    `json:"grid"`
	Tile      tile.Vector2i  `json:"tile"`
	WatchPipe bool           `json:"watch_pipe,omitempty"`
	Node      pipenet.NodeID `json:"node,omitempty"`
	Profile   *alarm.Profile `json:"-"`
	Interval  time.Duration  `json:"interval,omitempty"`
}

// Monitor samples gas on its own cadence and raises edge-triggered alarm
// transitions.
type Monitor struct {
	ID        string
	Grid      tile.GridID
	Tile      tile.Vector2i
	WatchPipe bool
	Node      pipenet.NodeID
	Profile   alarm.Profile
	Interval  time.Duration
	Enabled   bool
	State     alarm.State

	accumulated time.Duration
}

// AirAlarmSpec links monitors and vents into one room controller.
type AirAlarmSpec struct {
	ID       string        `json:"id"`
	Grid     tile.GridID   `json:"grid"`
	Tile     tile.Vector2i `json:"tile"`
	Monitors []string      `json:"monitors"`
	Vents    []string      `json:"vents"`
	AutoMode bool          `json:"auto_mode"`
}

// AirAlarm aggregates the alerts of its monitors. In auto mode it
// switches its vents to siphon on Danger and back to release on Normal.
type AirAlarm struct {
	ID       string
	Grid     tile.GridID
	Tile     tile.Vector2i
	Monitors []string
	Vents    []string
	AutoMode bool
	Enabled  bool
	State    alarm.State
}

// AlarmView is the read-only alarm status of one entity.
type AlarmView struct {
	ID            string        `json:"id"`
	Kind          string        `json:"kind"` // MONITOR or AIR_ALARM
	Grid          tile.GridID   `json:"grid"`
	Tile          tile.Vector2i `json:"tile"`
	Level         string        `json:"level"`
	Sampled       string        `json:"sampled"`
	Forced        string        `json:"forced"`
	IgnoreNetwork bool          `json:"ignore_network"`
	Enabled       bool          `json:"enabled"`
}

// AlarmSystem owns monitors and air alarms.
type AlarmSystem struct {
	monitors     map[string]*Monitor
	monitorOrder []*Monitor
	alarms       map[string]*AirAlarm
	alarmOrder   []*AirAlarm
}

// NewAlarmSystem creates an empty alarm registry.
func NewAlarmSystem() *AlarmSystem {
	return &AlarmSystem{
		monitors: make(map[string]*Monitor),
		alarms:   make(map[string]*AirAlarm),
	}
}

func (as *AlarmSystem) taken(id string) bool {
	_, m := as.monitors[id]
	_, a := as.alarms[id]
	return m || a
}

// claimed also checks the device registry; wires route by id alone.
func (as *AlarmSystem) claimed(sc *SimContext, id string) bool {
	return as.taken(id) || (sc.Devices != nil && sc.Devices.Has(id))
}

// AddMonitor registers a monitor.
func (as *AlarmSystem) AddMonitor(sc *SimContext, spec MonitorSpec) (*Monitor, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("engine: monitor id is required")
	}
	if as.claimed(sc, spec.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, spec.ID)
	}
	if _, ok := sc.Atmos.Grid(spec.Grid); !ok {
		return nil, fmt.Errorf("%w: %s", ErrGridNotFound, spec.Grid)
	}
	m := &Monitor{
		ID:        spec.ID,
		Grid:      spec.Grid,
		Tile:      spec.Tile,
		WatchPipe: spec.WatchPipe,
		Node:      spec.Node,
		Interval:  spec.Interval,
		Enabled:   true,
	}
	switch {
	case spec.Profile != nil:
		m.Profile = *spec.Profile
	case spec.WatchPipe:
		m.Profile = alarm.PipeProfile()
	default:
		m.Profile = alarm.StationProfile()
	}
	if m.Interval <= 0 {
		m.Interval = sc.Config.Monitors.SampleInterval
	}
	as.monitors[m.ID] = m
	as.monitorOrder = append(as.monitorOrder, m)
	return m, nil
}

// AddAirAlarm registers an air alarm. Linked IDs are resolved on every
// refresh, so monitors may be added later.
func (as *AlarmSystem) AddAirAlarm(sc *SimContext, spec AirAlarmSpec) (*AirAlarm, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("engine: air alarm id is required")
	}
	if as.claimed(sc, spec.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, spec.ID)
	}
	if _, ok := sc.Atmos.Grid(spec.Grid); !ok {
		return nil, fmt.Errorf("%w: %s", ErrGridNotFound, spec.Grid)
	}
	a := &AirAlarm{
		ID:       spec.ID,
		Grid:     spec.Grid,
		Tile:     spec.Tile,
		Monitors: append([]string(nil), spec.Monitors...),
		Vents:    append([]string(nil), spec.Vents...),
		AutoMode: spec.AutoMode,
		Enabled:  true,
	}
	as.alarms[a.ID] = a
	as.alarmOrder = append(as.alarmOrder, a)
	return a, nil
}

// Remove deletes a monitor or air alarm.
func (as *AlarmSystem) Remove(id string) error {
	if m, ok := as.monitors[id]; ok {
		delete(as.monitors, id)
		for i, o := range as.monitorOrder {
			if o == m {
				as.monitorOrder = append(as.monitorOrder[:i], as.monitorOrder[i+1:]...)
				break
			}
		}
		return nil
	}
	if a, ok := as.alarms[id]; ok {
		delete(as.alarms, id)
		for i, o := range as.alarmOrder {
			if o == a {
				as.alarmOrder = append(as.alarmOrder[:i], as.alarmOrder[i+1:]...)
				break
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Has reports whether id names a monitor or air alarm.
func (as *AlarmSystem) Has(id string) bool {
	return as.taken(id)
}

func (as *AlarmSystem) state(id string) (*alarm.State, tile.GridID, bool) {
	if m, ok := as.monitors[id]; ok {
		return &m.State, m.Grid, true
	}
	if a, ok := as.alarms[id]; ok {
		return &a.State, a.Grid, true
	}
	return nil, "", false
}

// Alert forces an entity to at least level. Normal clears the override
// and sampled classification takes over again.
func (as *AlarmSystem) Alert(sc *SimContext, id string, level alarm.Level) error {
	st, grid, ok := as.state(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if tr, changed := st.Force(level); changed {
		as.report(sc, id, grid, tr, st)
		if a, ok := as.alarms[id]; ok {
			as.driveVents(sc, a, tr)
		}
	}
	return nil
}

// Highest returns the effective alert level of an entity.
func (as *AlarmSystem) Highest(id string) (alarm.Level, error) {
	st, _, ok := as.state(id)
	if !ok {
		return alarm.Normal, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return st.Highest(), nil
}

// SetIgnoreNetwork toggles outward propagation. Sampling continues. An
// air alarm reconnecting to the network brings its vents in line with its
// current level.
func (as *AlarmSystem) SetIgnoreNetwork(sc *SimContext, id string, ignore bool) error {
	st, _, ok := as.state(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	was := st.IgnoreNetwork
	st.IgnoreNetwork = ignore
	if a, ok := as.alarms[id]; ok && was && !ignore {
		level := st.Highest()
		as.driveVents(sc, a, alarm.Transition{From: level, To: level})
	}
	return nil
}

// SetEnabled stops or resumes sampling.
func (as *AlarmSystem) SetEnabled(sc *SimContext, id string, enabled bool, reason string) error {
	var grid tile.GridID
	var was bool
	switch {
	case as.monitors[id] != nil:
		m := as.monitors[id]
		grid, was, m.Enabled = m.Grid, m.Enabled, enabled
	case as.alarms[id] != nil:
		a := as.alarms[id]
		grid, was, a.Enabled = a.Grid, a.Enabled, enabled
	default:
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if was != enabled {
		sc.emit(events.EventTypeDeviceToggled, id, string(grid), events.DeviceToggledPayload{
			Device: id, Enabled: enabled, Reason: reason,
		})
	}
	return nil
}

// Enabled reports the power flag of a monitor or air alarm.
func (as *AlarmSystem) Enabled(id string) bool {
	if m, ok := as.monitors[id]; ok {
		return m.Enabled
	}
	if a, ok := as.alarms[id]; ok {
		return a.Enabled
	}
	return false
}

// Update samples due monitors and then refreshes every air alarm.
func (as *AlarmSystem) Update(sc *SimContext) {
	for _, m := range as.monitorOrder {
		m.accumulated += sc.Dt
		if m.accumulated < m.Interval {
			continue
		}
		m.accumulated %= m.Interval
		if !m.Enabled || !sc.Power.IsPowered(m.ID) {
			continue
		}
		level, ok := as.sample(sc, m)
		if !ok {
			continue
		}
		if tr, changed := m.State.Sample(level); changed {
			as.report(sc, m.ID, m.Grid, tr, &m.State)
		}
	}

	for _, a := range as.alarmOrder {
		if !a.Enabled || !sc.Power.IsPowered(a.ID) {
			continue
		}
		level := alarm.Normal
		for _, id := range a.Monitors {
			m, ok := as.monitors[id]
			if !ok || m.State.IgnoreNetwork {
				continue
			}
			level = alarm.Max(level, m.State.Highest())
		}
		if tr, changed := a.State.Sample(level); changed {
			as.report(sc, a.ID, a.Grid, tr, &a.State)
			as.driveVents(sc, a, tr)
		}
	}
}

// sample classifies the watched gas. A missing tile reads as vacuum; a
// missing grid or pipe network skips the sample.
func (as *AlarmSystem) sample(sc *SimContext, m *Monitor) (alarm.Level, bool) {
	g, ok := sc.Atmos.Grid(m.Grid)
	if !ok {
		return alarm.Normal, false
	}
	if m.WatchPipe {
		net, ok := g.Pipes.NetworkOf(m.Node)
		if !ok {
			return alarm.Normal, false
		}
		return m.Profile.Classify(net.Air), true
	}
	t, ok := g.Tiles[m.Tile]
	if !ok || t.Air == nil {
		return m.Profile.Classify(nil), true
	}
	return m.Profile.Classify(t.Air), true
}

func (as *AlarmSystem) report(sc *SimContext, id string, grid tile.GridID, tr alarm.Transition, st *alarm.State) {
	sc.emit(events.EventTypeAlarmChanged, id, string(grid), events.AlarmChangedPayload{
		Entity:        id,
		From:          tr.From.String(),
		To:            tr.To.String(),
		Forced:        st.Forced > st.Sampled,
		IgnoreNetwork: st.IgnoreNetwork,
	})
	if sc.Metrics != nil {
		sc.Metrics.RecordAlarmTransition(tr.To.String())
	}
	sc.Log.Event(string(events.EventTypeAlarmChanged), id, tr.From.String()+" -> "+tr.To.String())
}

// driveVents is silent while the alarm's network wire is cut.
func (as *AlarmSystem) driveVents(sc *SimContext, a *AirAlarm, tr alarm.Transition) {
	if !a.AutoMode || a.State.IgnoreNetwork {
		return
	}
	var mode VentMode
	switch tr.To {
	case alarm.Danger:
		mode = VentSiphon
	case alarm.Normal:
		mode = VentRelease
	default:
		return
	}
	for _, id := range a.Vents {
		if err := sc.Devices.SetMode(sc, id, mode); err != nil {
			sc.Log.Warnf("air alarm %s: %v", a.ID, err)
		}
	}
}

// Views returns the status of every monitor and air alarm in creation
// order, monitors first.
func (as *AlarmSystem) Views() []AlarmView {
	out := make([]AlarmView, 0, len(as.monitorOrder)+len(as.alarmOrder))
	for _, m := range as.monitorOrder {
		out = append(out, alarmView(m.ID, "MONITOR", m.Grid, m.Tile, &m.State, m.Enabled))
	}
	for _, a := range as.alarmOrder {
		out = append(out, alarmView(a.ID, "AIR_ALARM", a.Grid, a.Tile, &a.State, a.Enabled))
	}
	return out
}

func alarmView(id, kind string, grid tile.GridID, at tile.Vector2i, st *alarm.State, enabled bool) AlarmView {
	return AlarmView{
		ID:            id,
		Kind:          kind,
		Grid:          grid,
		Tile:          at,
		Level:         st.Highest().String(),
		Sampled:       st.Sampled.String(),
		Forced:        st.Forced.String(),
		IgnoreNetwork: st.IgnoreNetwork,
		Enabled:       enabled,
	}
}
