// Package engine - hazard.go
// Station incidents: hull breaches, heat spikes and device faults. They
// are rolled at random each tick when enabled, or triggered on demand as
// drills. Incidents only act through the atmosphere and device systems.
package engine

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
)

// HazardKind defines the category of incident.
type HazardKind string

const (
	HazardBreach      HazardKind = "HULL_BREACH"  // structure gone, tile open to its neighbours
	HazardHeatSpike   HazardKind = "HEAT_SPIKE"   // fire or explosion heat dumped into a tile
	HazardDeviceFault HazardKind = "DEVICE_FAULT" // device loses power
)

var hazardKinds = []HazardKind{HazardBreach, HazardHeatSpike, HazardDeviceFault}

// ParseHazardKind accepts a kind name case-insensitively.
func ParseHazardKind(s string) (HazardKind, error) {
	k := HazardKind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range hazardKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownHazard, s)
}

// HazardDirector rolls random incidents.
type HazardDirector struct {
	rng *rand.Rand
}

// NewHazardDirector creates a director. A zero seed seeds from the clock.
func NewHazardDirector(seed int64) *HazardDirector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &HazardDirector{rng: rand.New(rand.NewSource(seed))}
}

// Update rolls once per tick. At most one incident happens per tick.
func (hd *HazardDirector) Update(sc *SimContext) {
	cfg := sc.Config.Hazards
	if !cfg.Enabled || hd.rng.Float64() >= cfg.ChancePerTick {
		return
	}
	grids := sc.Atmos.Grids()
	if len(grids) == 0 {
		return
	}
	kind := hazardKinds[hd.rng.Intn(len(hazardKinds))]
	grid := grids[hd.rng.Intn(len(grids))]

	if kind == HazardDeviceFault {
		devices := faultCandidates(sc, grid)
		if len(devices) == 0 {
			return
		}
		d := devices[hd.rng.Intn(len(devices))]
		if err := applyHazard(sc, kind, grid, d.Tile, d.ID, "RANDOM"); err != nil {
			sc.Log.Warnf("hazard %s: %v", kind, err)
		}
		return
	}

	g, _ := sc.Atmos.Grid(grid)
	var targets []tile.Vector2i
	for _, at := range g.Coordinates() {
		if hazardTarget(g, at, kind) {
			targets = append(targets, at)
		}
	}
	if len(targets) == 0 {
		return
	}
	at := targets[hd.rng.Intn(len(targets))]
	if err := applyHazard(sc, kind, grid, at, "", "RANDOM"); err != nil {
		sc.Log.Warnf("hazard %s: %v", kind, err)
	}
}

// hazardTarget reports whether a random incident of kind may hit at.
// Breaches only punch through walls that face space.
func hazardTarget(g *GridAtmosphere, at tile.Vector2i, kind HazardKind) bool {
	t := g.Tiles[at]
	if t == nil || t.Immutable || t.Invalidated {
		return false
	}
	switch kind {
	case HazardBreach:
		if t.Air != nil {
			return false
		}
		for _, dir := range tile.Cardinals {
			if n := g.Neighbor(at, dir); n != nil && n.Immutable {
				return true
			}
		}
	case HazardHeatSpike:
		return t.HasGas()
	}
	return false
}

func faultCandidates(sc *SimContext, grid tile.GridID) []*Device {
	var out []*Device
	for _, d := range sc.Devices.ordered {
		if d.Grid == grid && !d.Deleted && !d.Broken && d.Enabled && d.Kind != DeviceTank {
			out = append(out, d)
		}
	}
	return out
}

// deviceAt finds the first live device on a tile.
func deviceAt(sc *SimContext, grid tile.GridID, at tile.Vector2i) (*Device, bool) {
	for _, d := range sc.Devices.ordered {
		if d.Grid == grid && d.Tile == at && !d.Deleted && d.Kind != DeviceTank {
			return d, true
		}
	}
	return nil, false
}

// applyHazard performs one incident and records it.
func applyHazard(sc *SimContext, kind HazardKind, grid tile.GridID, at tile.Vector2i, device, reason string) error {
	var err error
	switch kind {
	case HazardBreach:
		err = sc.Atmos.ModifyTile(grid, at, breachTile)
	case HazardHeatSpike:
		err = sc.Atmos.HeatTile(grid, at, sc.Config.Hazards.HeatSpikeJoules)
	case HazardDeviceFault:
		err = sc.Devices.SetEnabled(sc, device, false, "HAZARD")
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownHazard, kind)
	}
	if err != nil {
		return err
	}

	sc.emit(events.EventTypeHazard, events.SystemActor, string(grid)+at.String(), events.HazardPayload{
		Kind:   string(kind),
		Grid:   string(grid),
		X:      at.X,
		Y:      at.Y,
		Device: device,
		Reason: reason,
	})
	if sc.Metrics != nil {
		sc.Metrics.RecordHazard(string(kind))
	}
	sc.Log.Event(string(events.EventTypeHazard), events.SystemActor,
		string(kind)+" | "+string(grid)+at.String()+" | Reason:"+reason)
	return nil
}

// breachTile strips the structure and opens every side. Walls become
// empty floor so the room can drain through them.
func breachTile(t *tile.TileAtmosphere) {
	if t.Immutable {
		return
	}
	t.Structure = nil
	t.BlockedDirections = tile.NoDirection
	if t.Air == nil {
		t.Air = gas.NewMixture(gas.CellVolume)
	}
}
