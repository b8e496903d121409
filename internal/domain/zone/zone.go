// Package zone - zone.go
// On-demand aggregation of a set of tiles into one read-only snapshot for
// debug overlays.
// This package is PURE and must NOT import any infrastructure packages.
package zone

import (
	"sort"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

// Lookup returns the mixture of the tile at v. A nil mixture means the
// tile is gone or holds no gas.
type Lookup func(v tile.Vector2i) *gas.Mixture

// Snapshot is the aggregate state of a zone. It shares nothing with the
// live simulation.
type Snapshot struct {
	Grid             tile.GridID        `json:"grid"`
	Coordinates      []tile.Vector2i    `json:"coordinates"`
	Empty            int                `json:"empty_tiles"`
	Moles            map[string]float64 `json:"moles"`
	PartialPressures map[string]float64 `json:"partial_pressures"`
	TotalMoles       float64            `json:"total_moles"`
	Volume           float64            `json:"volume"`
	Pressure         float64            `json:"pressure"`
	Temperature      float64            `json:"temperature"`
}

// Aggregate sums the zone. Coordinates are deduplicated and visited in
// row-major order, so equal inputs give equal snapshots. Tiles without
// gas count as vacuum of one cell volume.
func Aggregate(grid tile.GridID, coords []tile.Vector2i, lookup Lookup) Snapshot {
	ordered := dedup(coords)

	var volume float64
	mixes := make([]*gas.Mixture, len(ordered))
	empty := 0
	for i, c := range ordered {
		m := lookup(c)
		mixes[i] = m
		if m == nil {
			empty++
			volume += gas.CellVolume
			continue
		}
		volume += m.Volume()
	}

	combined := gas.NewMixture(volume)
	for _, m := range mixes {
		if m != nil {
			combined.Merge(m)
		}
	}

	snap := Snapshot{
		Grid:             grid,
		Coordinates:      ordered,
		Empty:            empty,
		Moles:            make(map[string]float64),
		PartialPressures: make(map[string]float64),
		TotalMoles:       combined.TotalMoles(),
		Volume:           combined.Volume(),
		Pressure:         combined.Pressure(),
		Temperature:      combined.Temperature(),
	}
	if len(ordered) == 0 {
		snap.Volume = 0
		snap.Pressure = 0
	}
	for _, s := range gas.AllSpecies() {
		n := combined.Moles(s)
		if n <= gas.GasMinMoles {
			continue
		}
		snap.Moles[s.String()] = n
		snap.PartialPressures[s.String()] = combined.PartialPressure(s)
	}
	return snap
}

func dedup(coords []tile.Vector2i) []tile.Vector2i {
	seen := make(map[tile.Vector2i]struct{}, len(coords))
	out := make([]tile.Vector2i, 0, len(coords))
	for _, c := range coords {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
