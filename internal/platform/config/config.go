// Package config holds every tunable of the server: simulation constants,
// device cadence, storage and network buffers. Presets follow the load
// profiles the server is run under (default, stress, low resource).
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Storage  StorageConfig `yaml:"storage"`
	Atmos    AtmosConfig   `yaml:"atmos"`
	Devices  DeviceConfig  `yaml:"devices"`
	Monitors MonitorConfig `yaml:"monitors"`
	Network  NetworkConfig `yaml:"network"`
	Hazards  HazardConfig  `yaml:"hazards"`
}

// ServerConfig covers process wiring.
type ServerConfig struct {
	Addr     string        `yaml:"addr"`
	TickRate time.Duration `yaml:"tick_rate"`
	Map      string        `yaml:"map"`      // embedded map name
	MapFile  string        `yaml:"map_file"` // overrides Map when set
}

// StorageConfig selects the event store.
type StorageConfig struct {
	Driver              string        `yaml:"driver"` // sqlite, postgres or memory
	DSN                 string        `yaml:"dsn"`
	MaxOpenConns        int           `yaml:"max_open_conns"`
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	StateBackupInterval time.Duration `yaml:"state_backup_interval"`
}

// AtmosConfig tunes tile equalization and heat exchange.
type AtmosConfig struct {
	// EqualizeShare is the fraction of a pressure difference closed per
	// neighbour pair per tick. Must stay in (0, 0.5].
	EqualizeShare float64 `yaml:"equalize_share"`
	// DormantAfterTicks stable ticks put a tile to sleep.
	DormantAfterTicks int `yaml:"dormant_after_ticks"`
	// TileBudget caps tiles processed per grid per tick; leftovers carry.
	TileBudget int `yaml:"tile_budget"`
	// MinimumMolesDelta below which an exchange counts as no change.
	MinimumMolesDelta float64 `yaml:"minimum_moles_delta"`

	SpaceVenting   bool    `yaml:"space_venting"`
	SpaceVentShare float64 `yaml:"space_vent_share"`

	Superconduction    bool    `yaml:"superconduction"`
	GasConductivity    float64 `yaml:"gas_conductivity"`
	EasyModeVenting    bool    `yaml:"easy_mode_venting"`
	RadiationFloor     float64 `yaml:"radiation_floor"`
	EnergyDriftEpsilon float64 `yaml:"energy_drift_epsilon"`
}

// DeviceConfig sets device defaults.
type DeviceConfig struct {
	UpdateInterval        time.Duration `yaml:"update_interval"`
	DefaultTargetPressure float64       `yaml:"default_target_pressure"`
	TransferRatio         float64       `yaml:"transfer_ratio"`
	PumpTargetPressure    float64       `yaml:"pump_target_pressure"`
	ScrubRatio            float64       `yaml:"scrub_ratio"`
	TankVolume            float64       `yaml:"tank_volume"`
	TankPressure          float64       `yaml:"tank_pressure"`
}

// MonitorConfig sets sampling cadence.
type MonitorConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// HazardConfig drives random station incidents. Off by default.
type HazardConfig struct {
	Enabled         bool    `yaml:"enabled"`
	ChancePerTick   float64 `yaml:"chance_per_tick"`
	Seed            int64   `yaml:"seed"` // 0 seeds from the clock
	HeatSpikeJoules float64 `yaml:"heat_spike_joules"`
}

// NetworkConfig tunes the overlay hub.
type NetworkConfig struct {
	EventChannelBuffer     int           `yaml:"event_channel_buffer"`
	BroadcastChannelBuffer int           `yaml:"broadcast_channel_buffer"`
	ClientSendBuffer       int           `yaml:"client_send_buffer"`
	MaxMessagesPerSecond   int           `yaml:"max_messages_per_second"`
	MaxClients             int           `yaml:"max_clients"`
	PollInterval           time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		Server: ServerConfig{
			Addr:     ":8080",
			TickRate: 500 * time.Millisecond,
			Map:      "default",
		},
		Storage: StorageConfig{
			Driver:              "sqlite",
			DSN:                 "atmos.db",
			MaxOpenConns:        numCPU * 4,
			MaxIdleConns:        numCPU * 2,
			StateBackupInterval: 30 * time.Second,
		},
		Atmos: AtmosConfig{
			EqualizeShare:      0.4,
			DormantAfterTicks:  5,
			TileBudget:         4096,
			MinimumMolesDelta:  0.0005,
			SpaceVenting:       true,
			SpaceVentShare:     0.3,
			Superconduction:    true,
			GasConductivity:    0.1,
			EasyModeVenting:    false,
			RadiationFloor:     260,
			EnergyDriftEpsilon: 1e-3,
		},
		Devices: DeviceConfig{
			UpdateInterval:        time.Second,
			DefaultTargetPressure: 101.325,
			TransferRatio:         0.5,
			PumpTargetPressure:    4500,
			ScrubRatio:            0.25,
			TankVolume:            10000,
			TankPressure:          1013.25,
		},
		Monitors: MonitorConfig{
			SampleInterval: time.Second,
		},
		Network: NetworkConfig{
			EventChannelBuffer:     1024,
			BroadcastChannelBuffer: 256,
			ClientSendBuffer:       64,
			MaxMessagesPerSecond:   100,
			MaxClients:             200,
			PollInterval:           200 * time.Millisecond,
		},
		Hazards: HazardConfig{
			ChancePerTick:   0.002,
			HeatSpikeJoules: 200000,
		},
	}
}

// StressTestConfig returns aggressive settings for load testing.
func StressTestConfig() *Config {
	cfg := DefaultConfig()
	numCPU := runtime.NumCPU()

	cfg.Server.TickRate = 100 * time.Millisecond
	cfg.Storage.MaxOpenConns = numCPU * 8
	cfg.Storage.MaxIdleConns = numCPU * 4
	cfg.Atmos.TileBudget = 16384
	cfg.Network.EventChannelBuffer = 4096
	cfg.Network.BroadcastChannelBuffer = 512
	cfg.Network.ClientSendBuffer = 128
	cfg.Network.MaxMessagesPerSecond = 500
	cfg.Network.MaxClients = 500
	return cfg
}

// LowResourceConfig returns minimal settings for development.
func LowResourceConfig() *Config {
	cfg := DefaultConfig()

	cfg.Server.TickRate = time.Second
	cfg.Storage.Driver = "memory"
	cfg.Storage.MaxOpenConns = 5
	cfg.Storage.MaxIdleConns = 2
	cfg.Atmos.TileBudget = 512
	cfg.Atmos.Superconduction = false
	cfg.Network.EventChannelBuffer = 64
	cfg.Network.BroadcastChannelBuffer = 16
	cfg.Network.ClientSendBuffer = 8
	cfg.Network.MaxMessagesPerSecond = 10
	cfg.Network.MaxClients = 20
	return cfg
}

// Preset returns a named preset.
func Preset(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return DefaultConfig(), nil
	case "stress":
		return StressTestConfig(), nil
	case "low":
		return LowResourceConfig(), nil
	}
	return nil, fmt.Errorf("config: unknown preset %q", name)
}

// Load layers a preset, an optional YAML file, an optional .env file and
// ATMOS_* environment variables, then validates the result.
func Load(preset, path, envFile string) (*Config, error) {
	cfg, err := Preset(preset)
	if err != nil {
		return nil, err
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("config: %s: %w", key, err)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = b
		}
	}

	str("ATMOS_ADDR", &c.Server.Addr)
	dur("ATMOS_TICK_RATE", &c.Server.TickRate)
	str("ATMOS_MAP", &c.Server.Map)
	str("ATMOS_MAP_FILE", &c.Server.MapFile)

	str("ATMOS_STORAGE_DRIVER", &c.Storage.Driver)
	str("DATABASE_URL", &c.Storage.DSN)
	str("ATMOS_DSN", &c.Storage.DSN)
	dur("ATMOS_STATE_BACKUP_INTERVAL", &c.Storage.StateBackupInterval)

	num("ATMOS_EQUALIZE_SHARE", &c.Atmos.EqualizeShare)
	integer("ATMOS_DORMANT_AFTER_TICKS", &c.Atmos.DormantAfterTicks)
	integer("ATMOS_TILE_BUDGET", &c.Atmos.TileBudget)
	boolean("ATMOS_SPACE_VENTING", &c.Atmos.SpaceVenting)
	boolean("ATMOS_SUPERCONDUCTION", &c.Atmos.Superconduction)
	boolean("ATMOS_EASY_MODE_VENTING", &c.Atmos.EasyModeVenting)

	dur("ATMOS_DEVICE_INTERVAL", &c.Devices.UpdateInterval)
	dur("ATMOS_MONITOR_INTERVAL", &c.Monitors.SampleInterval)
	integer("ATMOS_MAX_CLIENTS", &c.Network.MaxClients)

	boolean("ATMOS_HAZARDS", &c.Hazards.Enabled)
	num("ATMOS_HAZARD_CHANCE", &c.Hazards.ChancePerTick)

	return firstErr
}

// Validate rejects values the simulation cannot run with.
func (c *Config) Validate() error {
	var problems []string
	a := c.Atmos
	if !(a.EqualizeShare > 0 && a.EqualizeShare <= 0.5) {
		problems = append(problems, fmt.Sprintf("atmos.equalize_share %v not in (0, 0.5]", a.EqualizeShare))
	}
	if a.DormantAfterTicks < 1 {
		problems = append(problems, "atmos.dormant_after_ticks must be >= 1")
	}
	if a.TileBudget < 1 {
		problems = append(problems, "atmos.tile_budget must be >= 1")
	}
	if a.SpaceVentShare < 0 || a.SpaceVentShare > 1 {
		problems = append(problems, "atmos.space_vent_share must be in [0, 1]")
	}
	if a.GasConductivity < 0 || a.GasConductivity > 0.5 {
		problems = append(problems, "atmos.gas_conductivity must be in [0, 0.5]")
	}
	if c.Devices.TransferRatio <= 0 || c.Devices.TransferRatio > 1 {
		problems = append(problems, "devices.transfer_ratio must be in (0, 1]")
	}
	if c.Devices.UpdateInterval <= 0 || c.Monitors.SampleInterval <= 0 || c.Server.TickRate <= 0 {
		problems = append(problems, "intervals must be positive")
	}
	if c.Hazards.ChancePerTick < 0 || c.Hazards.ChancePerTick > 1 {
		problems = append(problems, "hazards.chance_per_tick must be in [0, 1]")
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q unknown", c.Storage.Driver))
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}
