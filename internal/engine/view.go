package engine

import (
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

// TileView is a read-only copy of one tile for APIs and renderers.
type TileView struct {
	Grid        tile.GridID        `json:"grid"`
	Indices     tile.Vector2i      `json:"indices"`
	Kind        tile.Kind          `json:"kind"`
	Material    string             `json:"material,omitempty"`
	Pressure    float64            `json:"pressure"`
	Temperature float64            `json:"temperature"`
	Moles       map[string]float64 `json:"moles,omitempty"`
	Blocked     string             `json:"blocked"`
	Active      bool               `json:"active"`
}

func viewTile(t *tile.TileAtmosphere) TileView {
	v := TileView{
		Grid:        t.Grid,
		Indices:     t.Indices,
		Kind:        t.Kind(),
		Pressure:    t.Pressure(),
		Temperature: t.Temperature(),
		Blocked:     t.BlockedDirections.String(),
		Active:      t.Active,
	}
	if t.Structure != nil {
		v.Material = t.Structure.Material.Name
	}
	if t.Air != nil {
		for _, s := range gas.AllSpecies() {
			if n := t.Air.Moles(s); n > gas.GasMinMoles {
				if v.Moles == nil {
					v.Moles = make(map[string]float64)
				}
				v.Moles[s.String()] = n
			}
		}
	}
	return v
}
