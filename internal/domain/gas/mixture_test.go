package gas

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func approx(a, b, tol float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tol*scale
}

func totals(ms ...*Mixture) (moles [SpeciesCount]float64, energy float64) {
	for _, m := range ms {
		for _, s := range AllSpecies() {
			moles[s] += m.Moles(s)
		}
		energy += m.ThermalEnergy()
	}
	return moles, energy
}

func TestStandardAirIsOneAtmosphere(t *testing.T) {
	air := NewStandardAir(CellVolume)
	if !approx(air.Pressure(), OneAtmosphere, 1e-9) {
		t.Errorf("Expected %.3f kPa, got %.3f", OneAtmosphere, air.Pressure())
	}
	if !approx(air.Moles(Oxygen)/air.TotalMoles(), 0.21, 1e-9) {
		t.Errorf("Expected 21%% oxygen, got %.4f", air.Moles(Oxygen)/air.TotalMoles())
	}
}

func TestMergeConservesMolesAndEnergy(t *testing.T) {
	a := NewMixture(CellVolume)
	a.SetMoles(Oxygen, 40)
	a.SetMoles(Plasma, 3)
	a.SetTemperature(500)

	b := NewMixture(CellVolume)
	b.SetMoles(Nitrogen, 70)
	b.SetTemperature(150)

	beforeMoles, beforeEnergy := totals(a, b)

	a.Merge(b)
	b.Clear()

	afterMoles, afterEnergy := totals(a, b)
	for _, s := range AllSpecies() {
		if !approx(beforeMoles[s], afterMoles[s], tolerance) {
			t.Errorf("%s: moles before %.6f after %.6f", s, beforeMoles[s], afterMoles[s])
		}
	}
	if !approx(beforeEnergy, afterEnergy, tolerance) {
		t.Errorf("Energy drifted: before %.6f after %.6f", beforeEnergy, afterEnergy)
	}
}

func TestTransferSequenceConserves(t *testing.T) {
	a := NewMixture(PipeVolume)
	a.SetMoles(Oxygen, 80)
	a.SetMoles(CarbonDioxide, 5)
	a.SetTemperature(330)

	b := NewStandardAir(CellVolume)
	b.SetTemperature(270)

	beforeMoles, beforeEnergy := totals(a, b)

	targets := []float64{50, 120, 90, 400, 101.325, 0, -10}
	for _, target := range targets {
		a.TransferTo(b, target)
		b.TransferTo(a, target/2)
		tmp := b.RemoveRatio(0.1)
		a.Merge(tmp)
	}

	afterMoles, afterEnergy := totals(a, b)
	for _, s := range AllSpecies() {
		if !approx(beforeMoles[s], afterMoles[s], 1e-9) {
			t.Errorf("%s: moles before %.9f after %.9f", s, beforeMoles[s], afterMoles[s])
		}
	}
	if !approx(beforeEnergy, afterEnergy, 1e-9) {
		t.Errorf("Energy drifted: before %.6f after %.6f", beforeEnergy, afterEnergy)
	}
}

func TestTransferToReachesTargetWithoutOvershootingSource(t *testing.T) {
	src := NewMixture(PipeVolume)
	src.SetMoles(Nitrogen, 500)

	dst := NewMixture(CellVolume)

	moved := src.TransferTo(dst, OneAtmosphere)
	if moved <= 0 {
		t.Fatalf("Expected gas to move")
	}
	if !approx(dst.Pressure(), OneAtmosphere, 1e-6) {
		t.Errorf("Expected outlet at %.3f kPa, got %.3f", OneAtmosphere, dst.Pressure())
	}

	// Already above target: nothing moves.
	if again := src.TransferTo(dst, OneAtmosphere/2); again != 0 {
		t.Errorf("Expected no transfer below current pressure, moved %.4f", again)
	}
}

func TestTransferToHitsTargetAfterTemperaturesBlend(t *testing.T) {
	tests := []struct {
		name   string
		outlet float64
	}{
		{"hotter outlet", 600},
		{"colder outlet", 150},
		{"same temperature", T20C},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := NewMixture(PipeVolume)
			src.SetMoles(Nitrogen, 5000)
			src.SetTemperature(T20C)

			dst := NewMixture(CellVolume)
			dst.SetMoles(Oxygen, 50)
			dst.SetTemperature(tc.outlet)

			if moved := src.TransferTo(dst, 200); moved <= 0 {
				t.Fatalf("Expected gas to move")
			}
			if !approx(dst.Pressure(), 200, 1e-6) {
				t.Errorf("Expected outlet at 200 kPa, got %.6f", dst.Pressure())
			}
		})
	}
}

func TestTransferToNeverLowersOutletPressure(t *testing.T) {
	// Very cold, high heat capacity gas into a hot, low heat capacity
	// outlet would cool it enough to drop pressure.
	src := NewMixture(PipeVolume)
	src.SetMoles(Plasma, 1000)
	src.SetTemperature(3)

	dst := NewMixture(CellVolume)
	dst.SetMoles(Oxygen, 10)
	dst.SetTemperature(1000)
	start := dst.Pressure()

	src.TransferTo(dst, start*1.5)

	if dst.Pressure() < start {
		t.Errorf("Outlet pressure dropped from %.4f to %.4f", start, dst.Pressure())
	}
}

func TestTransferToDrainsEmptySourceSafely(t *testing.T) {
	src := NewMixture(PipeVolume)
	dst := NewMixture(CellVolume)
	if moved := src.TransferTo(dst, OneAtmosphere); moved != 0 {
		t.Errorf("Expected empty source to move nothing, got %.4f", moved)
	}
}

func TestRemoveRatioClamps(t *testing.T) {
	m := NewMixture(CellVolume)
	m.SetMoles(Oxygen, 10)

	tests := []struct {
		name      string
		fraction  float64
		removed   float64
		remaining float64
	}{
		{"negative", -0.5, 0, 10},
		{"nan", math.NaN(), 0, 10},
		{"half", 0.5, 5, 5},
		{"over one", 3, 5, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := m.RemoveRatio(tc.fraction)
			if !approx(got.Moles(Oxygen), tc.removed, tolerance) {
				t.Errorf("removed %.4f, want %.4f", got.Moles(Oxygen), tc.removed)
			}
			if !approx(m.Moles(Oxygen), tc.remaining, tolerance) {
				t.Errorf("remaining %.4f, want %.4f", m.Moles(Oxygen), tc.remaining)
			}
		})
	}
}

func TestNegativeInputsClampToZero(t *testing.T) {
	m := NewMixture(CellVolume)
	m.SetMoles(Oxygen, -5)
	m.AdjustMoles(Nitrogen, -100)
	m.SetTemperature(-40)

	if m.Moles(Oxygen) != 0 || m.Moles(Nitrogen) != 0 {
		t.Errorf("Expected clamped moles, got O2=%.2f N2=%.2f", m.Moles(Oxygen), m.Moles(Nitrogen))
	}
	if m.Temperature() != 0 {
		t.Errorf("Expected clamped temperature, got %.2f", m.Temperature())
	}
	if m.Pressure() < 0 {
		t.Errorf("Negative pressure %.4f", m.Pressure())
	}
}

func TestImmutableMixtureNeverChanges(t *testing.T) {
	space := NewSpace()
	before := *space

	air := NewStandardAir(CellVolume)
	space.Merge(air)
	space.SetMoles(Oxygen, 10)
	space.AdjustMoles(Plasma, 4)
	space.SetTemperature(900)
	space.Clear()
	space.RemoveRatio(0.5)
	air.TransferTo(space, 500)

	if *space != before {
		t.Errorf("Immutable mixture changed: %+v", space.Snapshot())
	}
}

func TestParseSpecies(t *testing.T) {
	for _, s := range AllSpecies() {
		got, ok := ParseSpecies(s.String())
		if !ok || got != s {
			t.Errorf("ParseSpecies(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseSpecies("phlogiston"); ok {
		t.Errorf("Expected unknown species to fail")
	}
}
