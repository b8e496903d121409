package engine

import (
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

// PressureBucket is the coarse pressure reading a renderer shows.
type PressureBucket string

const (
	PressureVacuum  PressureBucket = "VACUUM"
	PressureLow     PressureBucket = "LOW"
	PressureNormal  PressureBucket = "NORMAL"
	PressureHigh    PressureBucket = "HIGH"
	PressureExtreme PressureBucket = "EXTREME"
)

// BucketFor classifies a pressure in kPa.
func BucketFor(kPa float64) PressureBucket {
	switch {
	case kPa < 10:
		return PressureVacuum
	case kPa < 80:
		return PressureLow
	case kPa <= 120:
		return PressureNormal
	case kPa <= 500:
		return PressureHigh
	}
	return PressureExtreme
}

// AppearanceKind tags an Appearance.
type AppearanceKind string

const (
	AppearanceDevice   AppearanceKind = "DEVICE"
	AppearanceMonitor  AppearanceKind = "MONITOR"
	AppearanceAirAlarm AppearanceKind = "AIR_ALARM"
)

// Appearance is what a renderer needs to draw one entity. Fields that do
// not apply to Kind are left empty.
type Appearance struct {
	Entity   string         `json:"entity"`
	Kind     AppearanceKind `json:"kind"`
	Device   DeviceKind     `json:"device,omitempty"`
	Grid     tile.GridID    `json:"grid"`
	Tile     tile.Vector2i  `json:"tile"`
	Alarm    string         `json:"alarm,omitempty"`
	Enabled  bool           `json:"enabled"`
	Mode     VentMode       `json:"mode,omitempty"`
	Pressure PressureBucket `json:"pressure"`
}

// appearances builds the snapshot: devices first, then alarms, each in
// creation order. Devices read the pressure of the tile they serve,
// pumps and tanks the pressure of their network.
func appearances(sc *SimContext) []Appearance {
	var out []Appearance
	for _, d := range sc.Devices.ordered {
		a := Appearance{
			Entity:  d.ID,
			Kind:    AppearanceDevice,
			Device:  d.Kind,
			Grid:    d.Grid,
			Tile:    d.Tile,
			Enabled: d.Enabled,
			Mode:    d.Mode,
		}
		a.Pressure = BucketFor(devicePressure(sc, d))
		out = append(out, a)
	}
	for _, v := range sc.Monitors.Views() {
		kind := AppearanceMonitor
		if v.Kind == "AIR_ALARM" {
			kind = AppearanceAirAlarm
		}
		out = append(out, Appearance{
			Entity:   v.ID,
			Kind:     kind,
			Grid:     v.Grid,
			Tile:     v.Tile,
			Alarm:    v.Level,
			Enabled:  v.Enabled,
			Pressure: BucketFor(tilePressure(sc, v.Grid, v.Tile)),
		})
	}
	return out
}

func devicePressure(sc *SimContext, d *Device) float64 {
	g, ok := sc.Atmos.Grid(d.Grid)
	if !ok {
		return 0
	}
	if d.Kind == DevicePump || d.Kind == DeviceTank {
		if net, ok := g.Pipes.NetworkOf(d.Node); ok {
			return net.Air.Pressure()
		}
		return 0
	}
	return tilePressure(sc, d.Grid, d.Tile)
}

func tilePressure(sc *SimContext, grid tile.GridID, at tile.Vector2i) float64 {
	t, err := sc.Atmos.Tile(grid, at)
	if err != nil {
		return 0
	}
	return t.Pressure()
}
