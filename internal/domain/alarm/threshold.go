package alarm

import (
	"math"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
)

// Bound is one optional limit.
type Bound struct {
	Value   float64 `yaml:"value" json:"value"`
	Enabled bool    `yaml:"enabled" json:"enabled"`
}

// At returns an enabled bound.
func At(v float64) Bound {
	return Bound{Value: v, Enabled: true}
}

// Threshold maps a scalar to a level using up to four bounds.
type Threshold struct {
	Ignore       bool  `yaml:"ignore" json:"ignore"`
	LowerDanger  Bound `yaml:"lower_danger" json:"lower_danger"`
	LowerWarning Bound `yaml:"lower_warning" json:"lower_warning"`
	UpperWarning Bound `yaml:"upper_warning" json:"upper_warning"`
	UpperDanger  Bound `yaml:"upper_danger" json:"upper_danger"`
}

// Classify returns the level for v. Danger bounds are checked first.
func (t Threshold) Classify(v float64) Level {
	if t.Ignore || math.IsNaN(v) {
		return Normal
	}
	switch {
	case t.UpperDanger.Enabled && v >= t.UpperDanger.Value:
		return Danger
	case t.LowerDanger.Enabled && v <= t.LowerDanger.Value:
		return Danger
	case t.UpperWarning.Enabled && v >= t.UpperWarning.Value:
		return Warning
	case t.LowerWarning.Enabled && v <= t.LowerWarning.Value:
		return Warning
	}
	return Normal
}

// Profile is the full threshold set of one monitor. Gas thresholds are
// expressed as mole fractions of the total.
type Profile struct {
	Pressure    Threshold                 `yaml:"pressure" json:"pressure"`
	Temperature Threshold                 `yaml:"temperature" json:"temperature"`
	Gases       map[gas.Species]Threshold `yaml:"-" json:"-"`
}

// Classify evaluates every threshold against m and returns the most
// severe result. A nil mixture reads as vacuum.
func (p Profile) Classify(m *gas.Mixture) Level {
	if m == nil {
		return p.Pressure.Classify(0)
	}
	level := Max(p.Pressure.Classify(m.Pressure()), p.Temperature.Classify(m.Temperature()))

	total := m.TotalMoles()
	for _, s := range gas.AllSpecies() {
		th, ok := p.Gases[s]
		if !ok {
			continue
		}
		var fraction float64
		if total > 0 {
			fraction = m.Moles(s) / total
		}
		level = Max(level, th.Classify(fraction))
		if level == Danger {
			break
		}
	}
	return level
}

// StationProfile is the default set for room air monitors (kPa, K,
// mole fraction).
func StationProfile() Profile {
	return Profile{
		Pressure: Threshold{
			LowerDanger:  At(20),
			LowerWarning: At(50),
			UpperWarning: At(385),
			UpperDanger:  At(550),
		},
		Temperature: Threshold{
			LowerDanger:  At(gas.T0C),
			LowerWarning: At(gas.T0C + 10),
			UpperWarning: At(gas.T0C + 40),
			UpperDanger:  At(gas.T0C + 66),
		},
		Gases: map[gas.Species]Threshold{
			gas.Oxygen: {
				LowerDanger:  At(0.10),
				LowerWarning: At(0.16),
			},
			gas.CarbonDioxide: {
				UpperWarning: At(0.005),
				UpperDanger:  At(0.025),
			},
			gas.Plasma: {
				UpperWarning: At(0.00001),
				UpperDanger:  At(0.005),
			},
			gas.Tritium: {
				UpperWarning: At(0.00001),
				UpperDanger:  At(0.005),
			},
		},
	}
}

// PipeProfile watches pipe networks for overpressure only.
func PipeProfile() Profile {
	return Profile{
		Pressure: Threshold{
			UpperWarning: At(4500),
			UpperDanger:  At(9000),
		},
		Temperature: Threshold{Ignore: true},
	}
}
