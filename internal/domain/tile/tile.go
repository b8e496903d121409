package tile

import "github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"

// GridID identifies the grid a tile belongs to.
type GridID string

// Kind is the coarse classification of a tile.
type Kind string

const (
	KindFloor Kind = "FLOOR" // holds gas
	KindSolid Kind = "SOLID" // structure, no gas
	KindSpace Kind = "SPACE" // immutable vacuum
)

// TileAtmosphere is the atmosphere state of one grid cell.
type TileAtmosphere struct {
	Grid    GridID   `json:"grid"`
	Indices Vector2i `json:"indices"`

	// Air is nil for solid tiles.
	Air       *gas.Mixture `json:"-"`
	Structure *Structure   `json:"structure,omitempty"`

	// BlockedDirections lists the sides sealed against gas flow.
	BlockedDirections Direction `json:"blocked_directions"`
	Immutable         bool      `json:"immutable"`
	Active            bool      `json:"active"`
	Invalidated       bool      `json:"invalidated"`

	// Bookkeeping owned by the grid atmosphere system.
	StableTicks     int    `json:"-"`
	ShareCycle      uint64 `json:"-"`
	ConductCycle    uint64 `json:"-"`
	Superconducting bool   `json:"-"`
}

// NewFloorTile returns an open tile holding air. A nil air gets an empty
// cell-sized mixture.
func NewFloorTile(grid GridID, at Vector2i, air *gas.Mixture) *TileAtmosphere {
	if air == nil {
		air = gas.NewMixture(gas.CellVolume)
	}
	return &TileAtmosphere{Grid: grid, Indices: at, Air: air}
}

// NewSpaceTile returns an immutable vacuum tile.
func NewSpaceTile(grid GridID, at Vector2i) *TileAtmosphere {
	return &TileAtmosphere{Grid: grid, Indices: at, Air: gas.NewSpace(), Immutable: true}
}

// NewSolidTile returns a fully airtight tile occupied by a structure.
func NewSolidTile(grid GridID, at Vector2i, s *Structure) *TileAtmosphere {
	return &TileAtmosphere{Grid: grid, Indices: at, Structure: s, BlockedDirections: AllDirections}
}

// Kind classifies the tile.
func (t *TileAtmosphere) Kind() Kind {
	switch {
	case t.Immutable:
		return KindSpace
	case t.Air == nil:
		return KindSolid
	default:
		return KindFloor
	}
}

// HasGas reports whether the tile carries a mutable mixture.
func (t *TileAtmosphere) HasGas() bool {
	return t.Air != nil && !t.Immutable
}

// Blocks reports whether the tile seals its side facing dir.
func (t *TileAtmosphere) Blocks(dir Direction) bool {
	return t.BlockedDirections.Has(dir)
}

// OpenTo reports whether gas may cross from t to n through side dir of t.
// Both masks are honored.
func (t *TileAtmosphere) OpenTo(n *TileAtmosphere, dir Direction) bool {
	if n == nil || t.Air == nil || n.Air == nil {
		return false
	}
	return !t.Blocks(dir) && !n.Blocks(dir.Opposite())
}

// Temperature returns the gas temperature, or the structure temperature
// for solid tiles.
func (t *TileAtmosphere) Temperature() float64 {
	if t.Air != nil {
		return t.Air.Temperature()
	}
	if t.Structure != nil {
		return t.Structure.Temperature
	}
	return 0
}

// Pressure returns the tile pressure; zero for solid tiles.
func (t *TileAtmosphere) Pressure() float64 {
	if t.Air == nil {
		return 0
	}
	return t.Air.Pressure()
}
