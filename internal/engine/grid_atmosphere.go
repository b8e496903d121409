package engine

import (
	"sort"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/pipenet"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

// GridAtmosphere owns every tile of one grid, the active-tile work queue
// and the grid's pipe forest.
type GridAtmosphere struct {
	ID    tile.GridID
	Tiles map[tile.Vector2i]*tile.TileAtmosphere
	Pipes *pipenet.Forest

	queue      []tile.Vector2i
	queued     map[tile.Vector2i]bool
	conducting map[tile.Vector2i]bool
	cycle      uint64
}

func newGridAtmosphere(id tile.GridID) *GridAtmosphere {
	return &GridAtmosphere{
		ID:         id,
		Tiles:      make(map[tile.Vector2i]*tile.TileAtmosphere),
		Pipes:      pipenet.NewForest(),
		queued:     make(map[tile.Vector2i]bool),
		conducting: make(map[tile.Vector2i]bool),
	}
}

// ActiveCount is the number of tiles waiting for equalization.
func (g *GridAtmosphere) ActiveCount() int {
	return len(g.queue)
}

// Neighbor returns the tile next to at in direction dir.
func (g *GridAtmosphere) Neighbor(at tile.Vector2i, dir tile.Direction) *tile.TileAtmosphere {
	return g.Tiles[at.Add(dir.Offset())]
}

// Coordinates returns all tile coordinates in row-major order.
func (g *GridAtmosphere) Coordinates() []tile.Vector2i {
	out := make([]tile.Vector2i, 0, len(g.Tiles))
	for at := range g.Tiles {
		out = append(out, at)
	}
	sortCoords(out)
	return out
}

// wake resets the tile's stability counter and queues it.
func (g *GridAtmosphere) wake(t *tile.TileAtmosphere) {
	if t == nil {
		return
	}
	t.StableTicks = 0
	g.enqueue(t)
	g.markConducting(t)
}

// wakeAround wakes at and its four neighbours.
func (g *GridAtmosphere) wakeAround(at tile.Vector2i) {
	g.wake(g.Tiles[at])
	for _, dir := range tile.Cardinals {
		g.wake(g.Neighbor(at, dir))
	}
}

func (g *GridAtmosphere) enqueue(t *tile.TileAtmosphere) {
	if !t.HasGas() || t.Invalidated {
		return
	}
	t.Active = true
	if g.queued[t.Indices] {
		return
	}
	g.queued[t.Indices] = true
	g.queue = append(g.queue, t.Indices)
}

func (g *GridAtmosphere) markConducting(t *tile.TileAtmosphere) {
	if t.Immutable || t.Invalidated {
		return
	}
	t.Superconducting = true
	g.conducting[t.Indices] = true
}

func (g *GridAtmosphere) stopConducting(t *tile.TileAtmosphere) {
	t.Superconducting = false
	delete(g.conducting, t.Indices)
}

// take pops up to budget tiles off the front of the queue. The rest stay
// queued for the next tick, ahead of anything queued later.
func (g *GridAtmosphere) take(budget int) []tile.Vector2i {
	n := len(g.queue)
	if budget > 0 && n > budget {
		n = budget
	}
	work := make([]tile.Vector2i, n)
	copy(work, g.queue[:n])
	g.queue = append([]tile.Vector2i(nil), g.queue[n:]...)
	for _, at := range work {
		delete(g.queued, at)
	}
	return work
}

func (g *GridAtmosphere) conductingSorted() []tile.Vector2i {
	out := make([]tile.Vector2i, 0, len(g.conducting))
	for at := range g.conducting {
		out = append(out, at)
	}
	sortCoords(out)
	return out
}

func sortCoords(c []tile.Vector2i) {
	sort.Slice(c, func(i, j int) bool { return c[i].Less(c[j]) })
}
