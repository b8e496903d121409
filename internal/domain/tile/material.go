package tile

// Material carries the thermal constants of a solid structure.
type Material struct {
	Name         string  `json:"name" yaml:"name"`
	Conductivity float64 `json:"conductivity" yaml:"conductivity"`   // fraction of the pair's delta exchanged per tick
	HeatCapacity float64 `json:"heat_capacity" yaml:"heat_capacity"` // J/K
}

var (
	Steel      = Material{Name: "steel", Conductivity: 0.05, HeatCapacity: 10000}
	Reinforced = Material{Name: "reinforced", Conductivity: 0.02, HeatCapacity: 20000}
	Plasteel   = Material{Name: "plasteel", Conductivity: 0.01, HeatCapacity: 30000}
	Glass      = Material{Name: "glass", Conductivity: 0.2, HeatCapacity: 4000}
)

// MaterialByName looks up one of the built-in materials.
func MaterialByName(name string) (Material, bool) {
	for _, m := range []Material{Steel, Reinforced, Plasteel, Glass} {
		if m.Name == name {
			return m, true
		}
	}
	return Material{}, false
}

// Structure is a solid, airtight occupant of a tile (wall, window). It
// holds heat but no gas.
type Structure struct {
	Material    Material `json:"material"`
	Temperature float64  `json:"temperature"`
	// EasyModeVenting stops radiation to space once the structure is
	// colder than the configured floor.
	EasyModeVenting bool `json:"easy_mode_venting"`
}

// NewStructure returns a structure of the given material at temperature.
func NewStructure(m Material, temperature float64) *Structure {
	if temperature < 0 {
		temperature = 0
	}
	return &Structure{Material: m, Temperature: temperature}
}

// ThermalEnergy is heat capacity times temperature.
func (s *Structure) ThermalEnergy() float64 {
	return s.Material.HeatCapacity * s.Temperature
}
