// Package gas defines the gas mixture value type shared by tiles, pipe
// networks and devices.
// This package is PURE and must NOT import any infrastructure packages.
package gas

import "strings"

// Species identifies one gas in the fixed species table.
type Species int

const (
	Oxygen Species = iota
	Nitrogen
	CarbonDioxide
	Plasma
	Tritium
	WaterVapor

	// SpeciesCount is the size of the species table. Must stay last.
	SpeciesCount
)

// Physical constants. Pressures are kPa, volumes litres, temperatures Kelvin.
const (
	R                   = 8.314462618
	OneAtmosphere       = 101.325
	T0C                 = 273.15
	T20C                = 293.15
	TCMB                = 2.7
	CellVolume          = 2500.0
	PipeVolume          = 200.0
	MinimumHeatCapacity = 0.0003
	// GasMinMoles is the amount below which a species is treated as absent.
	GasMinMoles = 0.00000005
)

var speciesNames = [SpeciesCount]string{
	Oxygen:        "oxygen",
	Nitrogen:      "nitrogen",
	CarbonDioxide: "carbon_dioxide",
	Plasma:        "plasma",
	Tritium:       "tritium",
	WaterVapor:    "water_vapor",
}

// Specific heats in J/(mol·K).
var specificHeats = [SpeciesCount]float64{
	Oxygen:        20,
	Nitrogen:      30,
	CarbonDioxide: 30,
	Plasma:        200,
	Tritium:       10,
	WaterVapor:    40,
}

// String returns the wire name of the species.
func (s Species) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return speciesNames[s]
}

// Valid reports whether s indexes the species table.
func (s Species) Valid() bool {
	return s >= 0 && s < SpeciesCount
}

// SpecificHeat returns the molar specific heat of the species.
func (s Species) SpecificHeat() float64 {
	if !s.Valid() {
		return 0
	}
	return specificHeats[s]
}

// ParseSpecies resolves a wire name (case-insensitive) to a species.
func ParseSpecies(name string) (Species, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range speciesNames {
		if n == name {
			return Species(i), true
		}
	}
	return 0, false
}

// AllSpecies returns the species table in canonical order.
func AllSpecies() []Species {
	out := make([]Species, SpeciesCount)
	for i := range out {
		out[i] = Species(i)
	}
	return out
}
