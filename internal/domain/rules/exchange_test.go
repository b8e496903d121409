package rules

import (
	"math"
	"testing"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

func TestShareClosesFractionOfDifference(t *testing.T) {
	a := gas.NewStandardAir(gas.CellVolume)
	b := gas.NewMixture(gas.CellVolume)

	before := a.Pressure() - b.Pressure()
	totalBefore := a.TotalMoles() + b.TotalMoles()

	moved := Share(a, b, 0.4)
	if moved <= 0 {
		t.Fatalf("Expected gas to move")
	}

	after := a.Pressure() - b.Pressure()
	if math.Abs(after-0.6*before) > 1e-6*before {
		t.Errorf("Expected difference %.4f, got %.4f", 0.6*before, after)
	}
	if math.Abs(a.TotalMoles()+b.TotalMoles()-totalBefore) > 1e-9*totalBefore {
		t.Errorf("Moles not conserved")
	}
}

func TestShareWorksInBothDirections(t *testing.T) {
	a := gas.NewMixture(gas.CellVolume)
	b := gas.NewStandardAir(gas.CellVolume)

	Share(a, b, 0.5)
	if a.TotalMoles() <= 0 {
		t.Errorf("Expected low side to gain gas")
	}
}

func TestShareIgnoresImmutable(t *testing.T) {
	space := gas.NewSpace()
	air := gas.NewStandardAir(gas.CellVolume)
	before := *space

	if moved := Share(air, space, 1); moved != 0 {
		t.Errorf("Expected no exchange with space, moved %.4f", moved)
	}
	if *space != before {
		t.Errorf("Space changed")
	}
}

func TestTemperatureShareConservesEnergy(t *testing.T) {
	hot := gas.NewStandardAir(gas.CellVolume)
	hot.SetTemperature(600)
	cold := gas.NewStandardAir(gas.CellVolume)
	cold.SetTemperature(200)

	before := hot.ThermalEnergy() + cold.ThermalEnergy()
	TemperatureShare(hot, cold, 0.5)
	after := hot.ThermalEnergy() + cold.ThermalEnergy()

	if math.Abs(before-after) > 1e-9*before {
		t.Errorf("Energy drifted: %.4f -> %.4f", before, after)
	}
	if hot.Temperature() >= 600 || cold.Temperature() <= 200 {
		t.Errorf("Expected temperatures to approach each other, got %.2f / %.2f", hot.Temperature(), cold.Temperature())
	}
	if hot.Temperature() < cold.Temperature() {
		t.Errorf("Exchange overshot equilibrium")
	}
}

func TestStructureShareConservesEnergy(t *testing.T) {
	air := gas.NewStandardAir(gas.CellVolume)
	air.SetTemperature(400)
	wall := tile.NewStructure(tile.Steel, 250)

	before := air.ThermalEnergy() + wall.ThermalEnergy()
	StructureShare(air, wall)
	after := air.ThermalEnergy() + wall.ThermalEnergy()

	if math.Abs(before-after) > 1e-9*before {
		t.Errorf("Energy drifted: %.4f -> %.4f", before, after)
	}
	if wall.Temperature <= 250 {
		t.Errorf("Expected wall to warm up, got %.2f", wall.Temperature)
	}
}

func TestRadiateToSpaceRespectsEasyModeFloor(t *testing.T) {
	wall := tile.NewStructure(tile.Glass, 300)
	wall.EasyModeVenting = true

	for i := 0; i < 500; i++ {
		RadiateToSpace(wall, gas.TCMB, gas.T20C, false)
	}
	if wall.Temperature < gas.T20C {
		t.Errorf("Easy-mode structure radiated below floor: %.2f", wall.Temperature)
	}

	wall.Temperature = gas.T20C - 5
	if heat := RadiateToSpace(wall, gas.TCMB, gas.T20C, false); heat != 0 {
		t.Errorf("Expected no radiation below floor, got %.2f", heat)
	}

	plain := tile.NewStructure(tile.Glass, 300)
	for i := 0; i < 500; i++ {
		RadiateToSpace(plain, gas.TCMB, gas.T20C, false)
	}
	if plain.Temperature >= gas.T20C {
		t.Errorf("Expected regular structure to keep cooling, got %.2f", plain.Temperature)
	}
}

func TestVentTarget(t *testing.T) {
	tests := []struct {
		name   string
		outlet float64
		target float64
		ratio  float64
		want   float64
		ok     bool
	}{
		{"full ratio", 50, 100, 1, 100, true},
		{"half ratio", 50, 100, 0.5, 75, true},
		{"at target", 100, 100, 1, 100, false},
		{"above target", 150, 100, 1, 150, false},
		{"zero ratio", 50, 100, 0, 50, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := VentTarget(tc.outlet, tc.target, tc.ratio)
			if ok != tc.ok || math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("VentTarget(%v,%v,%v) = %v,%v want %v,%v", tc.outlet, tc.target, tc.ratio, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestPumpGasToNeverLowersOutlet(t *testing.T) {
	src := gas.NewStandardAir(gas.PipeVolume)
	dst := gas.NewMixture(gas.CellVolume)
	before := dst.Pressure()

	moved := PumpGasTo(src, dst, gas.OneAtmosphere, 0.5)
	if moved <= 0 {
		t.Fatalf("Expected gas to move into an empty outlet")
	}
	if dst.Pressure() < before {
		t.Errorf("Outlet pressure dropped: %.3f -> %.3f", before, dst.Pressure())
	}

	full := gas.NewStandardAir(gas.CellVolume)
	if moved := PumpGasTo(src, full, gas.OneAtmosphere/2, 1); moved != 0 {
		t.Errorf("Expected no transfer into an outlet above target, moved %.4f", moved)
	}
}
