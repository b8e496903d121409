package gas

// Snapshot is the JSON form of a mixture handed to overlays and APIs.
type Snapshot struct {
	Moles       map[string]float64 `json:"moles"`
	TotalMoles  float64            `json:"total_moles"`
	Temperature float64            `json:"temperature"`
	Pressure    float64            `json:"pressure"`
	Volume      float64            `json:"volume"`
	Immutable   bool               `json:"immutable"`
}

// Snapshot renders the mixture for read-only consumers. Species below
// GasMinMoles are omitted.
func (m *Mixture) Snapshot() Snapshot {
	s := Snapshot{
		Moles:       make(map[string]float64),
		TotalMoles:  m.TotalMoles(),
		Temperature: m.temperature,
		Pressure:    m.Pressure(),
		Volume:      m.volume,
		Immutable:   m.immutable,
	}
	for i, n := range m.moles {
		if n > GasMinMoles {
			s.Moles[Species(i).String()] = n
		}
	}
	return s
}
