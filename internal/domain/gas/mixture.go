package gas

import "math"

// Mixture is a fixed-volume bag of gas: moles per species plus one
// temperature. Immutable mixtures (space) ignore every mutation.
//
// Mixture values are comparable; a copy is a full snapshot.
type Mixture struct {
	moles       [SpeciesCount]float64
	temperature float64
	volume      float64
	immutable   bool
}

// NewMixture returns an empty mixture of the given volume at 20°C.
func NewMixture(volume float64) *Mixture {
	if !(volume > 0) {
		volume = CellVolume
	}
	return &Mixture{volume: volume, temperature: T20C}
}

// NewSpace returns the immutable vacuum used for space tiles.
func NewSpace() *Mixture {
	return &Mixture{volume: CellVolume, temperature: TCMB, immutable: true}
}

// NewStandardAir returns a breathable 21/79 oxygen/nitrogen mix at one
// atmosphere and 20°C.
func NewStandardAir(volume float64) *Mixture {
	m := NewMixture(volume)
	total := OneAtmosphere * m.volume / (R * T20C)
	m.moles[Oxygen] = total * 0.21
	m.moles[Nitrogen] = total * 0.79
	return m
}

// MarkImmutable freezes the mixture permanently.
func (m *Mixture) MarkImmutable() {
	m.immutable = true
}

// Immutable reports whether the mixture ignores mutation.
func (m *Mixture) Immutable() bool {
	return m.immutable
}

// Moles returns the amount of one species.
func (m *Mixture) Moles(s Species) float64 {
	if !s.Valid() {
		return 0
	}
	return m.moles[s]
}

// SetMoles overwrites the amount of one species. Negative and NaN inputs
// clamp to zero.
func (m *Mixture) SetMoles(s Species, amount float64) {
	if m.immutable || !s.Valid() {
		return
	}
	m.moles[s] = clampNonNegative(amount)
}

// AdjustMoles adds delta to one species, never going below zero.
func (m *Mixture) AdjustMoles(s Species, delta float64) {
	if m.immutable || !s.Valid() {
		return
	}
	m.moles[s] = clampNonNegative(m.moles[s] + delta)
}

// TotalMoles sums every species.
func (m *Mixture) TotalMoles() float64 {
	var total float64
	for _, n := range m.moles {
		total += n
	}
	return total
}

// Temperature returns the mixture temperature in Kelvin.
func (m *Mixture) Temperature() float64 {
	return m.temperature
}

// SetTemperature overwrites the temperature, clamped to zero.
func (m *Mixture) SetTemperature(t float64) {
	if m.immutable {
		return
	}
	m.temperature = clampNonNegative(t)
}

// Volume returns the fixed volume in litres.
func (m *Mixture) Volume() float64 {
	return m.volume
}

// Pressure derives pressure from the ideal-gas relation.
func (m *Mixture) Pressure() float64 {
	if m.volume <= 0 {
		return 0
	}
	return clampNonNegative(m.TotalMoles() * R * m.temperature / m.volume)
}

// PartialPressure returns the pressure contributed by one species.
func (m *Mixture) PartialPressure(s Species) float64 {
	if m.volume <= 0 {
		return 0
	}
	return clampNonNegative(m.Moles(s) * R * m.temperature / m.volume)
}

// HeatCapacity is Σ molesᵢ·specificHeatᵢ.
func (m *Mixture) HeatCapacity() float64 {
	var hc float64
	for i, n := range m.moles {
		hc += n * specificHeats[i]
	}
	return hc
}

// ThermalEnergy is heat capacity times temperature.
func (m *Mixture) ThermalEnergy() float64 {
	return m.HeatCapacity() * m.temperature
}

// Merge adds other's moles into m and blends temperature by energy. other
// is left untouched. No-op when m is immutable.
func (m *Mixture) Merge(other *Mixture) {
	if m.immutable || other == nil || other == m {
		return
	}

	selfHC := m.HeatCapacity()
	otherHC := other.HeatCapacity()
	combinedHC := selfHC + otherHC

	if combinedHC > MinimumHeatCapacity {
		m.temperature = clampNonNegative((selfHC*m.temperature + otherHC*other.temperature) / combinedHC)
	} else if selfHC <= 0 && otherHC > 0 {
		m.temperature = other.temperature
	}

	for i := range m.moles {
		m.moles[i] += other.moles[i]
	}
}

// RemoveRatio takes fraction (clamped to [0,1]) of every species out of m
// and returns it as a new mixture with m's temperature and volume. An
// immutable m hands out the portion without changing itself.
func (m *Mixture) RemoveRatio(fraction float64) *Mixture {
	removed := &Mixture{volume: m.volume, temperature: m.temperature}
	if !(fraction > 0) {
		return removed
	}
	if fraction > 1 {
		fraction = 1
	}

	for i, n := range m.moles {
		amount := n * fraction
		removed.moles[i] = amount
		if !m.immutable {
			m.moles[i] = clampNonNegative(n - amount)
		}
	}
	return removed
}

// Remove takes amount total moles out of m, spread across species in
// proportion to their share.
func (m *Mixture) Remove(amount float64) *Mixture {
	total := m.TotalMoles()
	if total <= 0 {
		return &Mixture{volume: m.volume, temperature: m.temperature}
	}
	return m.RemoveRatio(amount / total)
}

// TransferTo moves gas from m into other until other reaches
// targetPressure after the temperatures blend. It never lowers other's
// pressure: if the blended result would end below the starting pressure,
// nothing moves. Returns the moles moved.
func (m *Mixture) TransferTo(other *Mixture, targetPressure float64) float64 {
	if other == nil || other == m || other.immutable {
		return 0
	}

	start := other.Pressure()
	if !(targetPressure > start) {
		return 0
	}

	total := m.TotalMoles()
	if total <= 0 || m.temperature <= 0 {
		return 0
	}

	transfer := molesToReach(other, targetPressure, m.HeatCapacity()/total, m.temperature)
	if !(transfer > 0) {
		return 0
	}
	if transfer > total {
		transfer = total
	}
	ratio := transfer / total

	trial := *other
	trial.Merge(m.peekRatio(ratio))
	if trial.Pressure() < start {
		return 0
	}

	removed := m.RemoveRatio(ratio)
	other.Merge(removed)
	return removed.TotalMoles()
}

// molesToReach returns how many moles of gas with per-mole heat capacity
// k at temperature t bring dst to target once merged. With dst holding
// n0 moles, heat capacity c0 and energy e0, the blended pressure meets
// the target where
//
//	(n0+n)(e0+n·k·t) = X(c0+n·k),  X = target·V/R
//
// which is a quadratic in n with exactly one positive root while dst is
// below target.
func molesToReach(dst *Mixture, target, k, t float64) float64 {
	n0 := dst.TotalMoles()
	c0 := dst.HeatCapacity()
	e0 := c0 * dst.temperature
	x := target * dst.volume / R

	a := k * t
	b := n0*k*t + e0 - x*k
	c := n0*e0 - x*c0

	disc := b*b - 4*a*c
	if disc < 0 {
		return 0
	}
	root := math.Sqrt(disc)
	// Pick the form that avoids cancellation.
	if b > 0 {
		return -2 * c / (b + root)
	}
	if a <= 0 {
		return 0
	}
	return (-b + root) / (2 * a)
}

// Clear zeroes every species.
func (m *Mixture) Clear() {
	if m.immutable {
		return
	}
	m.moles = [SpeciesCount]float64{}
}

// Clone returns an independent copy, immutability included.
func (m *Mixture) Clone() *Mixture {
	c := *m
	return &c
}

// peekRatio returns what RemoveRatio would hand out, without mutating m.
func (m *Mixture) peekRatio(fraction float64) *Mixture {
	c := *m
	c.immutable = true
	return c.RemoveRatio(fraction)
}

func clampNonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	return v
}
