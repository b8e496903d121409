package engine

import (
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/pipenet"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

// DeviceKind identifies the behaviour of a pipe device.
type DeviceKind string

const (
	DeviceVent        DeviceKind = "VENT"        // pressure-target vent, release or siphon
	DevicePump        DeviceKind = "PUMP"        // pipe node to pipe node
	DeviceScrubber    DeviceKind = "SCRUBBER"    // filtered tile gas into the pipe
	DevicePassthrough DeviceKind = "PASSTHROUGH" // dumps the pipe into the tile
	DeviceTank        DeviceKind = "TANK"        // passive pre-filled node
)

// VentMode is the flow direction of a vent.
type VentMode string

const (
	VentRelease VentMode = "RELEASE" // pipe to tile
	VentSiphon  VentMode = "SIPHON"  // tile to pipe
)

// DeviceSpec describes a device to register. Zero values take defaults
// from the device config.
type DeviceSpec struct {
	ID             string         `json:"id"`
	Kind           DeviceKind     `json:"kind"`
	Grid           tile.GridID    `json:"grid"`
	Tile           tile.Vector2i  `json:"tile"`
	Node           pipenet.NodeID `json:"node"`
	Outlet         pipenet.NodeID `json:"outlet,omitempty"` // pumps only
	Mode           VentMode       `json:"mode,omitempty"`
	TargetPressure float64        `json:"target_pressure,omitempty"`
	TransferRatio  float64        `json:"transfer_ratio,omitempty"`
	Filters        []gas.Species  `json:"filters,omitempty"`
	Interval       time.Duration  `json:"interval,omitempty"`
	Disabled       bool           `json:"disabled,omitempty"`
}

// Device is a registered device. Only the device system mutates it.
type Device struct {
	ID             string
	Kind           DeviceKind
	Grid           tile.GridID
	Tile           tile.Vector2i
	Node           pipenet.NodeID
	Outlet         pipenet.NodeID
	Mode           VentMode
	TargetPressure float64
	TransferRatio  float64
	Filters        []gas.Species
	Interval       time.Duration

	Enabled bool
	// Broken devices failed validation at registration and never run.
	Broken      bool
	ConfigError string
	Deleted     bool

	accumulated time.Duration
	lastMoved   float64
}

// DeviceState is the persisted, operator-controlled part of a device.
type DeviceState struct {
	ID             string   `json:"id"`
	Enabled        bool     `json:"enabled"`
	Mode           VentMode `json:"mode,omitempty"`
	TargetPressure float64  `json:"target_pressure"`
}

// State extracts the persisted settings.
func (d *Device) State() DeviceState {
	return DeviceState{ID: d.ID, Enabled: d.Enabled, Mode: d.Mode, TargetPressure: d.TargetPressure}
}

// DeviceView is the read-only copy handed to APIs.
type DeviceView struct {
	ID             string         `json:"id"`
	Kind           DeviceKind     `json:"kind"`
	Grid           tile.GridID    `json:"grid"`
	Tile           tile.Vector2i  `json:"tile"`
	Node           pipenet.NodeID `json:"node"`
	Mode           VentMode       `json:"mode,omitempty"`
	Enabled        bool           `json:"enabled"`
	Broken         bool           `json:"broken"`
	ConfigError    string         `json:"config_error,omitempty"`
	TargetPressure float64        `json:"target_pressure"`
	LastMoved      float64        `json:"last_moved"`
}

func (d *Device) view() DeviceView {
	return DeviceView{
		ID:             d.ID,
		Kind:           d.Kind,
		Grid:           d.Grid,
		Tile:           d.Tile,
		Node:           d.Node,
		Mode:           d.Mode,
		Enabled:        d.Enabled,
		Broken:         d.Broken,
		ConfigError:    d.ConfigError,
		TargetPressure: d.TargetPressure,
		LastMoved:      d.lastMoved,
	}
}
