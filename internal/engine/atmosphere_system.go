package engine

import (
	"fmt"
	"sort"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/pipenet"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/rules"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/config"
)

// AtmosphereSystem is the grid registry. Each tick it runs the
// equalization pass and then the superconduction pass on every grid, in
// grid creation order.
type AtmosphereSystem struct {
	grids map[tile.GridID]*GridAtmosphere
	order []tile.GridID
}

// NewAtmosphereSystem creates an empty registry.
func NewAtmosphereSystem() *AtmosphereSystem {
	return &AtmosphereSystem{grids: make(map[tile.GridID]*GridAtmosphere)}
}

// Grid looks up a grid.
func (as *AtmosphereSystem) Grid(id tile.GridID) (*GridAtmosphere, bool) {
	g, ok := as.grids[id]
	return g, ok
}

// Grids lists grid IDs in creation order.
func (as *AtmosphereSystem) Grids() []tile.GridID {
	return append([]tile.GridID(nil), as.order...)
}

// AddGrid registers an empty grid.
func (as *AtmosphereSystem) AddGrid(id tile.GridID) (*GridAtmosphere, error) {
	if _, ok := as.grids[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrGridExists, id)
	}
	g := newGridAtmosphere(id)
	as.grids[id] = g
	as.order = append(as.order, id)
	return g, nil
}

// RemoveGrid deletes a grid and invalidates all of its tiles so stale
// device references see them as gone.
func (as *AtmosphereSystem) RemoveGrid(sc *SimContext, id tile.GridID) error {
	g, ok := as.grids[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGridNotFound, id)
	}
	for _, t := range g.Tiles {
		t.Invalidated = true
		t.Active = false
	}
	delete(as.grids, id)
	for i, gid := range as.order {
		if gid == id {
			as.order = append(as.order[:i], as.order[i+1:]...)
			break
		}
	}
	if sc.Metrics != nil {
		sc.Metrics.ForgetGrid(string(id))
	}
	sc.emit(events.EventTypeGridRemoved, events.SystemActor, string(id), map[string]int{"tiles": len(g.Tiles)})
	sc.Log.Event(string(events.EventTypeGridRemoved), events.SystemActor, string(id))
	return nil
}

// Tile returns the live tile at (grid, at). Internal callers only.
func (as *AtmosphereSystem) Tile(grid tile.GridID, at tile.Vector2i) (*tile.TileAtmosphere, error) {
	g, ok := as.grids[grid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGridNotFound, grid)
	}
	t, ok := g.Tiles[at]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrTileNotFound, grid, at)
	}
	return t, nil
}

// AddTile registers a tile and wakes it along with its neighbours.
func (as *AtmosphereSystem) AddTile(t *tile.TileAtmosphere) error {
	g, ok := as.grids[t.Grid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGridNotFound, t.Grid)
	}
	if _, exists := g.Tiles[t.Indices]; exists {
		return fmt.Errorf("%w: %s %s", ErrTileExists, t.Grid, t.Indices)
	}
	g.Tiles[t.Indices] = t
	g.wakeAround(t.Indices)
	return nil
}

// RemoveTile deletes a tile. Its gas goes to the first open neighbour in
// North, South, East, West order; space neighbours swallow it.
func (as *AtmosphereSystem) RemoveTile(sc *SimContext, grid tile.GridID, at tile.Vector2i) error {
	t, err := as.Tile(grid, at)
	if err != nil {
		return err
	}
	g := as.grids[grid]

	receiver := "none"
	if t.HasGas() {
		for _, dir := range tile.Cardinals {
			n := g.Neighbor(at, dir)
			if n == nil || !t.OpenTo(n, dir) {
				continue
			}
			n.Air.Merge(t.Air)
			receiver = n.Indices.String()
			break
		}
	}

	t.Invalidated = true
	t.Active = false
	delete(g.Tiles, at)
	delete(g.queued, at)
	g.stopConducting(t)
	g.wakeAround(at)

	sc.emit(events.EventTypeTileRemoved, events.SystemActor, string(grid)+at.String(), map[string]string{"merged_into": receiver})
	return nil
}

// SetAirtight replaces the blocked-direction mask of a tile. Structural
// changes wake the tile and its neighbours.
func (as *AtmosphereSystem) SetAirtight(grid tile.GridID, at tile.Vector2i, mask tile.Direction) error {
	t, err := as.Tile(grid, at)
	if err != nil {
		return err
	}
	t.BlockedDirections = mask & tile.AllDirections
	as.grids[grid].wakeAround(at)
	return nil
}

// HeatTile adds (or with a negative value removes) thermal energy in
// joules. Gas tiles heat their mixture, solid tiles their structure.
func (as *AtmosphereSystem) HeatTile(grid tile.GridID, at tile.Vector2i, joules float64) error {
	t, err := as.Tile(grid, at)
	if err != nil {
		return err
	}
	switch {
	case t.HasGas():
		if hc := t.Air.HeatCapacity(); hc > gas.MinimumHeatCapacity {
			t.Air.SetTemperature(t.Air.Temperature() + joules/hc)
		}
	case t.Structure != nil:
		if hc := t.Structure.Material.HeatCapacity; hc > 0 {
			next := t.Structure.Temperature + joules/hc
			if next < 0 {
				next = 0
			}
			t.Structure.Temperature = next
		}
	}
	as.grids[grid].wakeAround(at)
	return nil
}

// ModifyTile runs fn against the live tile and wakes the area afterwards.
// Used by map loading, scenarios and admin tools.
func (as *AtmosphereSystem) ModifyTile(grid tile.GridID, at tile.Vector2i, fn func(t *tile.TileAtmosphere)) error {
	t, err := as.Tile(grid, at)
	if err != nil {
		return err
	}
	fn(t)
	as.grids[grid].wakeAround(at)
	return nil
}

// TileMixture returns a copy of a tile's gas. Solid tiles return nil.
func (as *AtmosphereSystem) TileMixture(grid tile.GridID, at tile.Vector2i) (*gas.Mixture, error) {
	t, err := as.Tile(grid, at)
	if err != nil {
		return nil, err
	}
	if t.Air == nil {
		return nil, nil
	}
	return t.Air.Clone(), nil
}

// Update runs one atmosphere tick over every grid.
func (as *AtmosphereSystem) Update(sc *SimContext) {
	activeTotal := 0
	for _, id := range as.order {
		g := as.grids[id]
		g.cycle++
		moved, dormant := as.equalize(sc, g)
		if sc.Config.Atmos.Superconduction {
			as.superconduct(sc.Config.Atmos, g)
		}
		activeTotal += g.ActiveCount()
		if sc.Metrics != nil {
			sc.Metrics.RecordMolesMoved(moved)
			sc.Metrics.RecordDormant(dormant)
			sc.Metrics.SetActiveTiles(string(id), g.ActiveCount())
		}
	}
	if sc.Metrics != nil {
		sc.Metrics.SetActiveTotal(activeTotal)
	}
}

// equalize processes this tick's share of the active queue. Each open
// neighbour pair is handled once per cycle.
func (as *AtmosphereSystem) equalize(sc *SimContext, g *GridAtmosphere) (moved float64, dormant int) {
	cfg := sc.Config.Atmos
	for _, at := range g.take(cfg.TileBudget) {
		t := g.Tiles[at]
		if t == nil || t.Invalidated || !t.HasGas() {
			continue
		}

		changed := false
		for _, dir := range tile.Cardinals {
			n := g.Neighbor(at, dir)
			if n == nil || !t.OpenTo(n, dir) {
				continue
			}
			if n.Immutable {
				if cfg.SpaceVenting {
					lost := rules.SpaceLoss(t.Air, cfg.SpaceVentShare).TotalMoles()
					if lost > cfg.MinimumMolesDelta {
						changed = true
						moved += lost
					}
				}
				continue
			}
			if n.ShareCycle == g.cycle {
				continue
			}
			if m := rules.Share(t.Air, n.Air, cfg.EqualizeShare); m > cfg.MinimumMolesDelta {
				changed = true
				moved += m
				g.wake(n)
			}
		}
		t.ShareCycle = g.cycle

		if changed {
			t.StableTicks = 0
			g.enqueue(t)
			g.markConducting(t)
			continue
		}
		t.StableTicks++
		if t.StableTicks >= cfg.DormantAfterTicks {
			t.Active = false
			dormant++
			continue
		}
		g.enqueue(t)
	}
	return moved, dormant
}

// superconduct exchanges heat across every pair touching a conducting
// tile. Tiles that exchanged nothing leave the set.
func (as *AtmosphereSystem) superconduct(cfg config.AtmosConfig, g *GridAtmosphere) {
	for _, at := range g.conductingSorted() {
		t := g.Tiles[at]
		if t == nil || t.Immutable {
			delete(g.conducting, at)
			continue
		}

		changed := false
		for _, dir := range tile.Cardinals {
			n := g.Neighbor(at, dir)
			if n == nil {
				continue
			}
			if n.Immutable {
				if t.Air == nil && rules.RadiateToSpace(t.Structure, gas.TCMB, cfg.RadiationFloor, cfg.EasyModeVenting) > 0 {
					changed = true
				}
				continue
			}
			if n.ConductCycle == g.cycle {
				continue
			}
			if conduct(t, n, dir, cfg.GasConductivity) > 0 {
				changed = true
				g.wake(n)
			}
		}
		t.ConductCycle = g.cycle

		if changed {
			g.wake(t)
		} else {
			g.stopConducting(t)
		}
	}
}

// conduct moves heat between two adjacent non-space tiles.
func conduct(t, n *tile.TileAtmosphere, dir tile.Direction, gasConductivity float64) float64 {
	switch {
	case t.HasGas() && n.HasGas():
		if !t.OpenTo(n, dir) {
			return 0
		}
		return rules.TemperatureShare(t.Air, n.Air, gasConductivity)
	case t.HasGas() && n.Structure != nil:
		return rules.StructureShare(t.Air, n.Structure)
	case t.Structure != nil && n.HasGas():
		return rules.StructureShare(n.Air, t.Structure)
	case t.Structure != nil && n.Structure != nil:
		return rules.SolidShare(t.Structure, n.Structure)
	}
	return 0
}

// ApplyPipeDelta commits a topology change on a grid's pipe forest. Gas
// released by removed nodes vents into the tile under the node.
func (as *AtmosphereSystem) ApplyPipeDelta(sc *SimContext, grid tile.GridID, delta pipenet.Delta) (pipenet.Result, error) {
	g, ok := as.grids[grid]
	if !ok {
		return pipenet.Result{}, fmt.Errorf("%w: %s", ErrGridNotFound, grid)
	}

	positions := make(map[pipenet.NodeID]tile.Vector2i, len(delta.RemoveNodes))
	for _, id := range delta.RemoveNodes {
		if n, ok := g.Pipes.Graph().Node(id); ok {
			positions[id] = n.Position
		}
	}

	res := g.Pipes.Apply(delta)
	if len(res.Networks) == 0 && len(res.Released) == 0 {
		return res, nil
	}

	for _, id := range sortedNodeIDs(res.Released) {
		released := res.Released[id]
		t := g.Tiles[positions[id]]
		if t == nil || t.Air == nil {
			if released.TotalMoles() > gas.GasMinMoles {
				sc.Log.Warnf("pipe node %d removed with no tile under it; %.3f mol lost", id, released.TotalMoles())
			}
			continue
		}
		t.Air.Merge(released)
		g.wakeAround(t.Indices)
	}

	cfg := sc.Config.Atmos
	drift := res.EnergyDrift()
	if drift > cfg.EnergyDriftEpsilon {
		sc.Log.Warnf("pipe repartition on %s drifted %.6f J", grid, drift)
		sc.emit(events.EventTypeEnergyDrift, events.SystemActor, string(grid), map[string]float64{"energy_drift": drift})
	}
	if sc.Metrics != nil {
		sc.Metrics.RecordRepartition()
	}
	sc.emit(events.EventTypeNetworkRepartitioned, events.SystemActor, string(grid), events.RepartitionPayload{
		Grid:        string(grid),
		Version:     g.Pipes.Version(),
		Networks:    len(res.Networks),
		Released:    len(res.Released),
		EnergyDrift: drift,
	})
	return res, nil
}

// NetworkMixture returns a copy of the gas in the network holding node.
func (as *AtmosphereSystem) NetworkMixture(grid tile.GridID, node pipenet.NodeID) (*gas.Mixture, error) {
	g, ok := as.grids[grid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGridNotFound, grid)
	}
	net, ok := g.Pipes.NetworkOf(node)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPipeNotFound, node)
	}
	return net.Air.Clone(), nil
}

// FillNetwork merges m into the network holding node.
func (as *AtmosphereSystem) FillNetwork(grid tile.GridID, node pipenet.NodeID, m *gas.Mixture) error {
	g, ok := as.grids[grid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGridNotFound, grid)
	}
	net, ok := g.Pipes.NetworkOf(node)
	if !ok {
		return fmt.Errorf("%w: %d", ErrPipeNotFound, node)
	}
	net.Air.Merge(m)
	return nil
}

func sortedNodeIDs(m map[pipenet.NodeID]*gas.Mixture) []pipenet.NodeID {
	ids := make([]pipenet.NodeID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
