package engine

import (
	"fmt"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/layout"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/pipenet"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
)

// LoadReport summarises what a map load created.
type LoadReport struct {
	Map       string                           `json:"map"`
	Grid      tile.GridID                      `json:"grid"`
	Tiles     int                              `json:"tiles"`
	PipeNodes int                              `json:"pipe_nodes"`
	Networks  int                              `json:"networks"`
	Devices   []string                         `json:"devices"`
	Monitors  []string                         `json:"monitors"`
	AirAlarms []string                         `json:"air_alarms"`
	Nodes     map[tile.Vector2i]pipenet.NodeID `json:"-"`
}

// DeviceID is the ID a map load gives the device at (grid, at).
func DeviceID(grid tile.GridID, kind string, at tile.Vector2i) string {
	return fmt.Sprintf("%s-%s-%d-%d", grid, kind, at.X, at.Y)
}

// airAt returns standard air filling volume at kPa.
func airAt(volume, kPa float64) *gas.Mixture {
	m := gas.NewStandardAir(volume)
	scale := kPa / gas.OneAtmosphere
	for _, s := range []gas.Species{gas.Oxygen, gas.Nitrogen} {
		m.SetMoles(s, m.Moles(s)*scale)
	}
	return m
}

// loadLayout builds a new grid from a parsed map: tiles, one pipe forest
// delta, devices in row-major order and one air alarm per 'A' glyph
// linked to the vents of its room.
func loadLayout(sc *SimContext, m *layout.Map, grid tile.GridID) (LoadReport, error) {
	rep := LoadReport{Map: m.Name, Grid: grid}
	g, err := sc.Atmos.AddGrid(grid)
	if err != nil {
		return rep, err
	}

	for _, c := range m.Cells {
		var t *tile.TileAtmosphere
		switch c.Kind {
		case layout.Space:
			t = tile.NewSpaceTile(grid, c.At)
		case layout.Wall, layout.Window:
			t = tile.NewSolidTile(grid, c.At, tile.NewStructure(c.Material, gas.T20C))
		case layout.Door:
			t = tile.NewFloorTile(grid, c.At, gas.NewStandardAir(gas.CellVolume))
			t.BlockedDirections = tile.AllDirections
		default:
			t = tile.NewFloorTile(grid, c.At, gas.NewStandardAir(gas.CellVolume))
		}
		g.Tiles[c.At] = t
		g.wake(t)
	}
	rep.Tiles = len(g.Tiles)

	nodes := make(map[tile.Vector2i]pipenet.NodeID)
	var delta pipenet.Delta
	for _, c := range m.Cells {
		if !c.Pipe {
			continue
		}
		id := pipenet.NodeID(len(nodes) + 1)
		nodes[c.At] = id
		volume := gas.PipeVolume
		if c.Device == layout.Tank {
			volume = sc.Config.Devices.TankVolume
		}
		delta.AddNodes = append(delta.AddNodes, pipenet.Node{ID: id, Volume: volume, Position: c.At})
	}
	for _, l := range m.PipeLinks() {
		delta.Link = append(delta.Link, pipenet.Link{A: nodes[l[0]], B: nodes[l[1]]})
	}
	if !delta.Empty() {
		if _, err := sc.Atmos.ApplyPipeDelta(sc, grid, delta); err != nil {
			return rep, err
		}
	}
	rep.PipeNodes = len(nodes)
	rep.Nodes = nodes
	rep.Networks = len(g.Pipes.Networks())

	var alarms []layout.Cell
	for _, c := range m.Devices() {
		spec := DeviceSpec{Grid: grid, Tile: c.At, Node: nodes[c.At]}
		switch c.Device {
		case layout.Vent:
			spec.Kind = DeviceVent
		case layout.Scrubber:
			spec.Kind = DeviceScrubber
		case layout.Passthrough:
			spec.Kind = DevicePassthrough
		case layout.Tank:
			spec.Kind = DeviceTank
		case layout.AirAlarm:
			alarms = append(alarms, c)
			continue
		default:
			continue
		}
		spec.ID = DeviceID(grid, c.Device.String(), c.At)
		if _, err := sc.Devices.Register(sc, spec); err != nil {
			return rep, err
		}
		rep.Devices = append(rep.Devices, spec.ID)
		if c.Device == layout.Tank {
			tank := airAt(sc.Config.Devices.TankVolume, sc.Config.Devices.TankPressure)
			if err := sc.Atmos.FillNetwork(grid, spec.Node, tank); err != nil {
				return rep, err
			}
		}
	}

	for _, c := range alarms {
		id := DeviceID(grid, c.Device.String(), c.At)
		monitorID := id + "-monitor"
		if _, err := sc.Monitors.AddMonitor(sc, MonitorSpec{ID: monitorID, Grid: grid, Tile: c.At}); err != nil {
			return rep, err
		}
		var vents []string
		for _, at := range room(m, c.At) {
			if cell, _ := m.At(at); cell.Device == layout.Vent {
				vents = append(vents, DeviceID(grid, cell.Device.String(), at))
			}
		}
		if _, err := sc.Monitors.AddAirAlarm(sc, AirAlarmSpec{
			ID: id, Grid: grid, Tile: c.At, Monitors: []string{monitorID}, Vents: vents, AutoMode: true,
		}); err != nil {
			return rep, err
		}
		rep.Monitors = append(rep.Monitors, monitorID)
		rep.AirAlarms = append(rep.AirAlarms, id)
	}

	sc.emit(events.EventTypeMapLoaded, events.SystemActor, string(grid), map[string]interface{}{
		"map":        m.Name,
		"width":      m.Width,
		"height":     m.Height,
		"tiles":      rep.Tiles,
		"pipe_nodes": rep.PipeNodes,
		"devices":    len(rep.Devices),
		"air_alarms": len(rep.AirAlarms),
	})
	sc.Log.Infof("map %s loaded into grid %s: %d tiles, %d pipe nodes, %d devices", m.Name, grid, rep.Tiles, rep.PipeNodes, len(rep.Devices))
	return rep, nil
}

// room flood-fills the floor cells reachable from start without crossing
// walls, windows, doors or space. Result is row-major.
func room(m *layout.Map, start tile.Vector2i) []tile.Vector2i {
	seen := map[tile.Vector2i]bool{start: true}
	queue := []tile.Vector2i{start}
	var out []tile.Vector2i
	for len(queue) > 0 {
		at := queue[0]
		queue = queue[1:]
		out = append(out, at)
		for _, dir := range tile.Cardinals {
			n := at.Add(dir.Offset())
			if seen[n] {
				continue
			}
			cell, ok := m.At(n)
			if !ok || cell.Kind != layout.Floor {
				continue
			}
			seen[n] = true
			queue = append(queue, n)
		}
	}
	sortCoords(out)
	return out
}
