package engine

import (
	"fmt"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/pipenet"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/rules"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
)

// DeviceSystem runs vents, pumps and scrubbers. Devices update on their
// own accumulated-time cadence, strictly in creation order.
type DeviceSystem struct {
	devices map[string]*Device
	ordered []*Device
}

// NewDeviceSystem creates an empty device registry.
func NewDeviceSystem() *DeviceSystem {
	return &DeviceSystem{devices: make(map[string]*Device)}
}

// Get returns a live device.
func (ds *DeviceSystem) Get(id string) (*Device, bool) {
	d, ok := ds.devices[id]
	if !ok || d.Deleted {
		return nil, false
	}
	return d, true
}

// Has reports whether id was ever registered, deleted devices included.
func (ds *DeviceSystem) Has(id string) bool {
	_, ok := ds.devices[id]
	return ok
}

// Register adds a device. A device whose pipe wiring is wrong is still
// registered but broken for life; the problem is logged exactly once.
func (ds *DeviceSystem) Register(sc *SimContext, spec DeviceSpec) (*Device, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("engine: device id is required")
	}
	if ds.Has(spec.ID) || (sc.Monitors != nil && sc.Monitors.Has(spec.ID)) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, spec.ID)
	}

	cfg := sc.Config.Devices
	d := &Device{
		ID:             spec.ID,
		Kind:           spec.Kind,
		Grid:           spec.Grid,
		Tile:           spec.Tile,
		Node:           spec.Node,
		Outlet:         spec.Outlet,
		Mode:           spec.Mode,
		TargetPressure: spec.TargetPressure,
		TransferRatio:  spec.TransferRatio,
		Filters:        append([]gas.Species(nil), spec.Filters...),
		Interval:       spec.Interval,
		Enabled:        !spec.Disabled,
	}
	if d.Interval <= 0 {
		d.Interval = cfg.UpdateInterval
	}
	if d.TransferRatio <= 0 {
		d.TransferRatio = cfg.TransferRatio
	}
	if d.TargetPressure <= 0 {
		switch d.Kind {
		case DevicePump:
			d.TargetPressure = cfg.PumpTargetPressure
		default:
			d.TargetPressure = cfg.DefaultTargetPressure
		}
	}
	if d.Kind == DeviceVent && d.Mode == "" {
		d.Mode = VentRelease
	}
	if d.Kind == DeviceScrubber && len(d.Filters) == 0 {
		d.Filters = []gas.Species{gas.CarbonDioxide, gas.Plasma, gas.Tritium}
	}

	if problem := ds.validate(sc, d); problem != "" {
		d.Broken = true
		d.Enabled = false
		d.ConfigError = problem
		sc.Log.Errorf("device %s disabled: %s", d.ID, problem)
		sc.emit(events.EventTypeDeviceConfigError, d.ID, string(d.Grid), map[string]string{"error": problem})
		if sc.Metrics != nil {
			sc.Metrics.RecordDeviceConfigError()
		}
	}

	ds.devices[d.ID] = d
	ds.ordered = append(ds.ordered, d)
	return d, nil
}

func (ds *DeviceSystem) validate(sc *SimContext, d *Device) string {
	switch d.Kind {
	case DeviceVent, DevicePump, DeviceScrubber, DevicePassthrough, DeviceTank:
	default:
		return fmt.Sprintf("unknown device kind %q", d.Kind)
	}
	g, ok := sc.Atmos.Grid(d.Grid)
	if !ok {
		return fmt.Sprintf("grid %s does not exist", d.Grid)
	}
	if !g.Pipes.HasNode(d.Node) {
		return fmt.Sprintf("no pipe node %d", d.Node)
	}
	if d.Kind == DevicePump {
		if !g.Pipes.HasNode(d.Outlet) {
			return fmt.Sprintf("no outlet pipe node %d", d.Outlet)
		}
		return ""
	}
	if d.Kind != DeviceTank {
		if _, ok := g.Tiles[d.Tile]; !ok {
			return fmt.Sprintf("no tile at %s", d.Tile)
		}
	}
	return ""
}

// Remove deletes a device. Topology is left alone.
func (ds *DeviceSystem) Remove(id string) error {
	d, ok := ds.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	d.Deleted = true
	delete(ds.devices, id)
	for i, o := range ds.ordered {
		if o == d {
			ds.ordered = append(ds.ordered[:i], ds.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// SetEnabled flips the device flag. Disabling stops gas movement but
// keeps the pipe topology. Broken devices stay disabled.
func (ds *DeviceSystem) SetEnabled(sc *SimContext, id string, enabled bool, reason string) error {
	d, ok := ds.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if d.Broken || d.Enabled == enabled {
		return nil
	}
	d.Enabled = enabled
	sc.emit(events.EventTypeDeviceToggled, d.ID, string(d.Grid), events.DeviceToggledPayload{
		Device:  d.ID,
		Enabled: enabled,
		Reason:  reason,
	})
	return nil
}

// SetMode switches a vent between release and siphon.
func (ds *DeviceSystem) SetMode(sc *SimContext, id string, mode VentMode) error {
	d, ok := ds.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if d.Kind != DeviceVent || d.Mode == mode {
		return nil
	}
	d.Mode = mode
	sc.emit(events.EventTypeVentModeChanged, d.ID, string(d.Grid), map[string]string{"mode": string(mode)})
	return nil
}

// SetTarget changes the target pressure in kPa.
func (ds *DeviceSystem) SetTarget(id string, kPa float64) error {
	d, ok := ds.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if kPa < 0 {
		kPa = 0
	}
	d.TargetPressure = kPa
	return nil
}

// Views returns copies of all devices in creation order.
func (ds *DeviceSystem) Views() []DeviceView {
	out := make([]DeviceView, 0, len(ds.ordered))
	for _, d := range ds.ordered {
		out = append(out, d.view())
	}
	return out
}

// States returns the persisted settings of all healthy devices.
func (ds *DeviceSystem) States() []DeviceState {
	out := make([]DeviceState, 0, len(ds.ordered))
	for _, d := range ds.ordered {
		if !d.Broken {
			out = append(out, d.State())
		}
	}
	return out
}

// Restore applies saved settings to matching devices. Unknown IDs are
// skipped and counted.
func (ds *DeviceSystem) Restore(states []DeviceState) (applied, skipped int) {
	for _, s := range states {
		d, ok := ds.Get(s.ID)
		if !ok || d.Broken {
			skipped++
			continue
		}
		d.Enabled = s.Enabled
		if d.Kind == DeviceVent && s.Mode != "" {
			d.Mode = s.Mode
		}
		if s.TargetPressure > 0 {
			d.TargetPressure = s.TargetPressure
		}
		applied++
	}
	return applied, skipped
}

// Update advances every device's cadence and runs the ones that are due,
// powered and enabled.
func (ds *DeviceSystem) Update(sc *SimContext) {
	var moved float64
	for _, d := range ds.ordered {
		if d.Deleted || d.Broken || d.Kind == DeviceTank {
			continue
		}
		d.accumulated += sc.Dt
		if d.accumulated < d.Interval {
			continue
		}
		d.accumulated %= d.Interval
		d.lastMoved = 0

		if !d.Enabled || !sc.Power.IsPowered(d.ID) {
			continue
		}
		d.lastMoved = ds.run(sc, d)
		moved += d.lastMoved
	}
	if sc.Metrics != nil {
		sc.Metrics.RecordMolesMoved(moved)
	}
}

// run performs one device update. Deleted grids, invalidated tiles and
// retired pipe networks are all treated as "nothing to do".
func (ds *DeviceSystem) run(sc *SimContext, d *Device) float64 {
	g, ok := sc.Atmos.Grid(d.Grid)
	if !ok {
		return 0
	}
	net, ok := g.Pipes.NetworkOf(d.Node)
	if !ok {
		return 0
	}

	if d.Kind == DevicePump {
		out, ok := g.Pipes.NetworkOf(d.Outlet)
		if !ok || out.ID == net.ID {
			return 0
		}
		return rules.PumpGasTo(net.Air, out.Air, d.TargetPressure, d.TransferRatio)
	}

	t, ok := g.Tiles[d.Tile]
	if !ok || t.Invalidated || t.Air == nil {
		return 0
	}

	var moved float64
	switch d.Kind {
	case DeviceVent:
		if d.Mode == VentSiphon {
			moved = siphon(t, net, d, sc.Config.Devices.PumpTargetPressure)
		} else {
			moved = rules.PumpGasTo(net.Air, t.Air, d.TargetPressure, d.TransferRatio)
		}
	case DeviceScrubber:
		moved = scrub(t, net, d.Filters, sc.Config.Devices.ScrubRatio, sc.Config.Devices.PumpTargetPressure)
	case DevicePassthrough:
		moved = net.Air.TotalMoles()
		t.Air.Merge(net.Air)
		net.Air.Clear()
	}

	if moved > 0 {
		g.wake(t)
	}
	return moved
}

// siphon drains the tile into the pipe, transferRatio of the tile's gas
// per update, until the pipe reaches its bound.
func siphon(t *tile.TileAtmosphere, net *pipenet.Network, d *Device, pipeBound float64) float64 {
	if t.Immutable || net.Air.Pressure() >= pipeBound {
		return 0
	}
	moles := t.Air.TotalMoles() * d.TransferRatio
	if moles <= gas.GasMinMoles {
		return 0
	}
	portion := t.Air.Remove(moles)
	if !mergeNoDrop(net.Air, portion) {
		t.Air.Merge(portion)
		return 0
	}
	return portion.TotalMoles()
}

// scrub moves a fraction of the filtered species from the tile into the
// pipe.
func scrub(t *tile.TileAtmosphere, net *pipenet.Network, filters []gas.Species, ratio, pipeBound float64) float64 {
	if t.Immutable || net.Air.Pressure() >= pipeBound {
		return 0
	}
	filtered := gas.NewMixture(t.Air.Volume())
	filtered.SetTemperature(t.Air.Temperature())
	for _, s := range filters {
		amount := t.Air.Moles(s) * ratio
		if amount <= gas.GasMinMoles {
			continue
		}
		filtered.SetMoles(s, amount)
		t.Air.AdjustMoles(s, -amount)
	}
	if filtered.TotalMoles() <= 0 {
		return 0
	}
	if !mergeNoDrop(net.Air, filtered) {
		t.Air.Merge(filtered)
		return 0
	}
	return filtered.TotalMoles()
}

// mergeNoDrop merges src into dst unless that would lower dst's pressure.
func mergeNoDrop(dst, src *gas.Mixture) bool {
	trial := dst.Clone()
	trial.Merge(src)
	if trial.Pressure() < dst.Pressure() {
		return false
	}
	dst.Merge(src)
	return true
}
