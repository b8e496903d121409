// Package rules contains the pure calculation logic for atmospherics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"math"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

// MinimumTemperatureDelta is the smallest temperature difference worth
// exchanging heat over.
const MinimumTemperatureDelta = 0.01

// Share moves gas from the higher-pressure mixture to the lower one,
// closing share (0,1] of the pressure difference. Returns the moles moved.
// Immutable mixtures never take part.
func Share(a, b *gas.Mixture, share float64) float64 {
	if a == nil || b == nil || a.Immutable() || b.Immutable() {
		return 0
	}
	if !(share > 0) {
		return 0
	}
	if share > 1 {
		share = 1
	}

	src, dst := a, b
	if b.Pressure() > a.Pressure() {
		src, dst = b, a
	}

	delta := src.Pressure() - dst.Pressure()
	if delta <= 0 || src.Temperature() <= 0 {
		return 0
	}

	// Moles that would equalize both sides if the moved gas kept the
	// source temperature.
	perMole := gas.R * src.Temperature() * (1/src.Volume() + 1/dst.Volume())
	full := delta / perMole

	moved := src.Remove(full * share)
	dst.Merge(moved)
	return moved.TotalMoles()
}

// TemperatureShare exchanges heat between two mixtures in contact.
// conductivity in (0,1] is the fraction of the way to thermal equilibrium
// covered per call. Returns the absolute energy moved.
func TemperatureShare(a, b *gas.Mixture, conductivity float64) float64 {
	if a == nil || b == nil || a.Immutable() || b.Immutable() {
		return 0
	}
	heat := exchange(a.HeatCapacity(), a.Temperature(), b.HeatCapacity(), b.Temperature(), conductivity)
	if heat == 0 {
		return 0
	}
	a.SetTemperature(a.Temperature() - heat/a.HeatCapacity())
	b.SetTemperature(b.Temperature() + heat/b.HeatCapacity())
	return math.Abs(heat)
}

// StructureShare exchanges heat between a mixture and a solid structure,
// limited by the structure's conductivity.
func StructureShare(m *gas.Mixture, s *tile.Structure) float64 {
	if m == nil || s == nil || m.Immutable() {
		return 0
	}
	hc := s.Material.HeatCapacity
	heat := exchange(m.HeatCapacity(), m.Temperature(), hc, s.Temperature, s.Material.Conductivity)
	if heat == 0 {
		return 0
	}
	m.SetTemperature(m.Temperature() - heat/m.HeatCapacity())
	s.Temperature = math.Max(0, s.Temperature+heat/hc)
	return math.Abs(heat)
}

// SolidShare exchanges heat between two adjacent structures using the
// poorer conductor of the pair.
func SolidShare(a, b *tile.Structure) float64 {
	if a == nil || b == nil {
		return 0
	}
	conductivity := math.Min(a.Material.Conductivity, b.Material.Conductivity)
	heat := exchange(a.Material.HeatCapacity, a.Temperature, b.Material.HeatCapacity, b.Temperature, conductivity)
	if heat == 0 {
		return 0
	}
	a.Temperature = math.Max(0, a.Temperature-heat/a.Material.HeatCapacity)
	b.Temperature = math.Max(0, b.Temperature+heat/b.Material.HeatCapacity)
	return math.Abs(heat)
}

// RadiateToSpace cools a structure facing space toward spaceTemperature.
// With easy-mode venting (the structure's flag or the global one) it stops
// once the structure is at or below floor. Returns the energy radiated.
func RadiateToSpace(s *tile.Structure, spaceTemperature, floor float64, easyMode bool) float64 {
	if s == nil {
		return 0
	}
	easy := easyMode || s.EasyModeVenting
	if easy && s.Temperature <= floor {
		return 0
	}
	delta := s.Temperature - spaceTemperature
	if delta <= MinimumTemperatureDelta {
		return 0
	}

	next := s.Temperature - s.Material.Conductivity*delta
	if easy && next < floor {
		next = floor
	}
	radiated := (s.Temperature - next) * s.Material.HeatCapacity
	s.Temperature = math.Max(0, next)
	return radiated
}

// SpaceLoss removes share of a mixture into space and returns the lost
// portion.
func SpaceLoss(m *gas.Mixture, share float64) *gas.Mixture {
	if m == nil || m.Immutable() {
		return gas.NewMixture(gas.CellVolume)
	}
	return m.RemoveRatio(share)
}

// exchange returns the heat flowing from side a to side b for a contact
// with the given conductivity. Positive means a loses heat.
func exchange(hcA, tA, hcB, tB, conductivity float64) float64 {
	if hcA <= gas.MinimumHeatCapacity || hcB <= gas.MinimumHeatCapacity {
		return 0
	}
	delta := tA - tB
	if math.Abs(delta) < MinimumTemperatureDelta {
		return 0
	}
	if conductivity > 1 {
		conductivity = 1
	}
	if !(conductivity > 0) {
		return 0
	}
	return conductivity * delta * (hcA * hcB / (hcA + hcB))
}
