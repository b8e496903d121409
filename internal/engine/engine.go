package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/layout"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/pipenet"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/zone"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/config"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

// Engine is the central orchestrator. It owns the simulation context and
// serializes the tick against every public call.
type Engine struct {
	mu     sync.Mutex
	sc     *SimContext
	queue  CommandQueue
	ticker *Ticker

	hazards *HazardDirector

	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewEngine wires the atmosphere, device and alarm systems. A nil power
// provider powers everything; a nil collector disables metrics.
func NewEngine(cfg *config.Config, eventLog *events.EventLog, log *logger.Logger, m *metrics.Collector, power PowerProvider) *Engine {
	if power == nil {
		power = AlwaysPowered{}
	}
	e := &Engine{eventLog: eventLog, logger: log, hazards: NewHazardDirector(cfg.Hazards.Seed)}
	e.sc = &SimContext{
		Config:   cfg,
		Atmos:    NewAtmosphereSystem(),
		Devices:  NewDeviceSystem(),
		Monitors: NewAlarmSystem(),
		Power:    power,
		Events:   eventLog,
		Log:      log,
		Metrics:  m,
	}
	e.ticker = NewTicker(e.Step, cfg.Server.TickRate, log)
	return e
}

// Start runs the ticker until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting atmospherics engine...")
	go e.ticker.Start(ctx)
}

// Stop halts the ticker.
func (e *Engine) Stop() {
	e.ticker.Stop()
}

// Step advances the simulation by dt: queued commands first, then random
// hazards, atmosphere, devices and alarms.
func (e *Engine) Step(dt time.Duration) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	sc := e.sc
	sc.Tick++
	sc.Dt = dt
	for _, c := range e.queue.Drain() {
		if err := execute(sc, c); err != nil {
			sc.Log.Warnf("command %s on %s rejected: %v", c.Kind, c.Target, err)
		}
	}
	e.hazards.Update(sc)
	sc.Atmos.Update(sc)
	sc.Devices.Update(sc)
	sc.Monitors.Update(sc)

	if sc.Metrics != nil {
		sc.Metrics.RecordTick(time.Since(start))
	}
}

// Tick returns the number of completed steps.
func (e *Engine) Tick() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Tick
}

// Config returns the engine configuration. Treat it as read-only.
func (e *Engine) Config() *config.Config {
	return e.sc.Config
}

// GetEventLog exposes the event log to the network layer.
func (e *Engine) GetEventLog() *events.EventLog {
	return e.eventLog
}

// LoadLayout builds grid from a parsed station map.
func (e *Engine) LoadLayout(m *layout.Map, grid tile.GridID) (LoadReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return loadLayout(e.sc, m, grid)
}

// AddGrid registers an empty grid.
func (e *Engine) AddGrid(id tile.GridID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.sc.Atmos.AddGrid(id)
	return err
}

// RemoveGrid deletes a grid. Devices on it stop moving gas.
func (e *Engine) RemoveGrid(id tile.GridID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.RemoveGrid(e.sc, id)
}

// Grids lists grids in creation order.
func (e *Engine) Grids() []tile.GridID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.Grids()
}

// AddTile registers a tile. The engine takes ownership of t.
func (e *Engine) AddTile(t *tile.TileAtmosphere) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.AddTile(t)
}

// RemoveTile deletes a tile, handing its gas to an open neighbour.
func (e *Engine) RemoveTile(grid tile.GridID, at tile.Vector2i) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.RemoveTile(e.sc, grid, at)
}

// SetAirtight replaces a tile's blocked-direction mask.
func (e *Engine) SetAirtight(grid tile.GridID, at tile.Vector2i, mask tile.Direction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.SetAirtight(grid, at, mask)
}

// HeatTile adds joules of heat to a tile.
func (e *Engine) HeatTile(grid tile.GridID, at tile.Vector2i, joules float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.HeatTile(grid, at, joules)
}

// ModifyTile runs fn on the live tile under the engine lock.
func (e *Engine) ModifyTile(grid tile.GridID, at tile.Vector2i, fn func(t *tile.TileAtmosphere)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.ModifyTile(grid, at, fn)
}

// GetTileMixture returns a copy of a tile's gas; nil for solid tiles.
func (e *Engine) GetTileMixture(grid tile.GridID, at tile.Vector2i) (*gas.Mixture, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.TileMixture(grid, at)
}

// GetTile returns a read-only view of one tile.
func (e *Engine) GetTile(grid tile.GridID, at tile.Vector2i) (TileView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, err := e.sc.Atmos.Tile(grid, at)
	if err != nil {
		return TileView{}, err
	}
	return viewTile(t), nil
}

// GetNeighbors returns the existing cardinal neighbours of a coordinate
// in North, South, East, West order.
func (e *Engine) GetNeighbors(grid tile.GridID, at tile.Vector2i) ([]TileView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.sc.Atmos.Grid(grid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGridNotFound, grid)
	}
	var out []TileView
	for _, dir := range tile.Cardinals {
		if n := g.Neighbor(at, dir); n != nil {
			out = append(out, viewTile(n))
		}
	}
	return out, nil
}

// GridView returns every tile of a grid, row-major.
func (e *Engine) GridView(grid tile.GridID) ([]TileView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.sc.Atmos.Grid(grid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGridNotFound, grid)
	}
	coords := g.Coordinates()
	out := make([]TileView, 0, len(coords))
	for _, at := range coords {
		out = append(out, viewTile(g.Tiles[at]))
	}
	return out, nil
}

// ApplyPipeDelta edits a grid's pipe topology and repartitions gas.
func (e *Engine) ApplyPipeDelta(grid tile.GridID, delta pipenet.Delta) (pipenet.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.ApplyPipeDelta(e.sc, grid, delta)
}

// NetworkMixture returns a copy of the gas in the network holding node.
func (e *Engine) NetworkMixture(grid tile.GridID, node pipenet.NodeID) (*gas.Mixture, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.NetworkMixture(grid, node)
}

// FillNetwork merges m into the network holding node.
func (e *Engine) FillNetwork(grid tile.GridID, node pipenet.NodeID, m *gas.Mixture) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Atmos.FillNetwork(grid, node, m.Clone())
}

// AddDevice registers a device. Miswired devices are accepted but come
// back Broken.
func (e *Engine) AddDevice(spec DeviceSpec) (DeviceView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.sc.Devices.Register(e.sc, spec)
	if err != nil {
		return DeviceView{}, err
	}
	return d.view(), nil
}

// RemoveDevice deletes a device, monitor or air alarm.
func (e *Engine) RemoveDevice(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sc.Monitors.Has(id) {
		return e.sc.Monitors.Remove(id)
	}
	return e.sc.Devices.Remove(id)
}

// Devices returns every device in creation order.
func (e *Engine) Devices() []DeviceView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Devices.Views()
}

// AddMonitor registers a gas monitor.
func (e *Engine) AddMonitor(spec MonitorSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.sc.Monitors.AddMonitor(e.sc, spec)
	return err
}

// AddAirAlarm registers an air alarm.
func (e *Engine) AddAirAlarm(spec AirAlarmSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.sc.Monitors.AddAirAlarm(e.sc, spec)
	return err
}

// Alert forces an entity's alarm to at least level; Normal clears it.
func (e *Engine) Alert(entity string, level alarm.Level) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Monitors.Alert(e.sc, entity, level)
}

// GetHighestAlert returns an entity's effective alarm level.
func (e *Engine) GetHighestAlert(entity string) (alarm.Level, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Monitors.Highest(entity)
}

// Alarms returns every monitor and air alarm.
func (e *Engine) Alarms() []AlarmView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Monitors.Views()
}

// Submit queues a command for the next tick.
func (e *Engine) Submit(c Command) {
	e.queue.Push(c)
}

// ApplyWire validates a wire action and queues it for the next tick.
func (e *Engine) ApplyWire(actor, target, wire, action string) error {
	w, a, err := ParseWire(wire, action)
	if err != nil {
		return err
	}
	c, err := TranslateWire(target, w, a)
	if err != nil {
		return err
	}
	c.Actor = actor
	e.queue.Push(c)
	return nil
}

// ZoneInfo aggregates a set of tiles and records the request as a
// ZONE_INFO event.
func (e *Engine) ZoneInfo(actor string, grid tile.GridID, coords []tile.Vector2i) (zone.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.sc.Atmos.Grid(grid)
	if !ok {
		return zone.Snapshot{}, fmt.Errorf("%w: %s", ErrGridNotFound, grid)
	}
	snap := zone.Aggregate(grid, coords, func(v tile.Vector2i) *gas.Mixture {
		t := g.Tiles[v]
		if t == nil {
			return nil
		}
		return t.Air
	})
	if actor == "" {
		actor = events.SystemActor
	}
	e.sc.emit(events.EventTypeZoneInfo, actor, string(grid), snap)
	return snap, nil
}

// TriggerHazard runs an incident immediately as a drill. Device faults
// hit the device on the given tile.
func (e *Engine) TriggerHazard(grid tile.GridID, kind HazardKind, at tile.Vector2i) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.sc.Atmos.Tile(grid, at); err != nil {
		return err
	}
	device := ""
	if kind == HazardDeviceFault {
		d, ok := deviceAt(e.sc, grid, at)
		if !ok {
			return fmt.Errorf("%w: none at %s%s", ErrDeviceNotFound, grid, at)
		}
		device = d.ID
	}
	return applyHazard(e.sc, kind, grid, at, device, "DRILL")
}

// Appearances returns the renderer snapshot of every entity.
func (e *Engine) Appearances() []Appearance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return appearances(e.sc)
}

// DeviceStates returns the operator settings worth persisting.
func (e *Engine) DeviceStates() []DeviceState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Devices.States()
}

// RestoreDeviceStates applies persisted settings after a map load.
func (e *Engine) RestoreDeviceStates(states []DeviceState) (applied, skipped int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.Devices.Restore(states)
}
