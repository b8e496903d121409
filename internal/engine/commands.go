package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
)

// CommandKind selects what a queued command does.
type CommandKind string

const (
	CmdNoop          CommandKind = "NOOP"
	CmdSetEnabled    CommandKind = "SET_ENABLED"
	CmdToggle        CommandKind = "TOGGLE"
	CmdAlert         CommandKind = "ALERT"
	CmdIgnoreNetwork CommandKind = "IGNORE_NETWORK"
	CmdSetTarget     CommandKind = "SET_TARGET"
	CmdSetMode       CommandKind = "SET_MODE"
)

// Wire is one of the maintenance wires on a device panel.
type Wire string

const (
	WirePower   Wire = "POWER"
	WireAlarm   Wire = "ALARM"
	WireNetwork Wire = "NETWORK"
)

// WireAction is what a technician does to a wire.
type WireAction string

const (
	WireCut   WireAction = "CUT"
	WireMend  WireAction = "MEND"
	WirePulse WireAction = "PULSE"
)

// Command is an operator request applied at the start of the next tick.
type Command struct {
	Kind    CommandKind
	Target  string
	Actor   string
	Enabled bool
	Level   alarm.Level
	KPa     float64
	Mode    VentMode
	Reason  string

	// Set when the command came from a wire action, for the audit event.
	Wire   Wire
	Action WireAction
}

// CommandQueue buffers commands between API goroutines and the tick.
type CommandQueue struct {
	mu      sync.Mutex
	pending []Command
}

// Push appends a command.
func (q *CommandQueue) Push(c Command) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()
}

// Drain returns every pending command in push order and empties the queue.
func (q *CommandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len is the number of pending commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ParseWire accepts wire and action names case-insensitively.
func ParseWire(wire, action string) (Wire, WireAction, error) {
	w := Wire(strings.ToUpper(strings.TrimSpace(wire)))
	a := WireAction(strings.ToUpper(strings.TrimSpace(action)))
	switch w {
	case WirePower, WireAlarm, WireNetwork:
	default:
		return "", "", fmt.Errorf("%w: wire %q", ErrUnknownWire, wire)
	}
	switch a {
	case WireCut, WireMend, WirePulse:
	default:
		return "", "", fmt.Errorf("%w: action %q", ErrUnknownWire, action)
	}
	return w, a, nil
}

// TranslateWire maps a wire action onto a command.
//
//	POWER   cut: disable   mend: enable        pulse: toggle
//	ALARM   cut: nothing   mend: clear force   pulse: force Danger
//	NETWORK cut: ignore    mend: restore       pulse: nothing
func TranslateWire(target string, w Wire, a WireAction) (Command, error) {
	c := Command{Kind: CmdNoop, Target: target, Wire: w, Action: a, Reason: "wire " + string(w) + " " + string(a)}
	switch w {
	case WirePower:
		switch a {
		case WireCut:
			c.Kind, c.Enabled = CmdSetEnabled, false
		case WireMend:
			c.Kind, c.Enabled = CmdSetEnabled, true
		case WirePulse:
			c.Kind = CmdToggle
		default:
			return Command{}, fmt.Errorf("%w: action %q", ErrUnknownWire, a)
		}
	case WireAlarm:
		switch a {
		case WireCut:
		case WireMend:
			c.Kind, c.Level = CmdAlert, alarm.Normal
		case WirePulse:
			c.Kind, c.Level = CmdAlert, alarm.Danger
		default:
			return Command{}, fmt.Errorf("%w: action %q", ErrUnknownWire, a)
		}
	case WireNetwork:
		switch a {
		case WireCut:
			c.Kind, c.Enabled = CmdIgnoreNetwork, true
		case WireMend:
			c.Kind, c.Enabled = CmdIgnoreNetwork, false
		case WirePulse:
		default:
			return Command{}, fmt.Errorf("%w: action %q", ErrUnknownWire, a)
		}
	default:
		return Command{}, fmt.Errorf("%w: wire %q", ErrUnknownWire, w)
	}
	return c, nil
}

// execute applies one command. Targets may be devices, monitors or air
// alarms; commands that do not apply to the target kind fail.
func execute(sc *SimContext, c Command) error {
	if c.Wire != "" {
		sc.emit(events.EventTypeWireAction, c.actor(), c.Target, events.WireActionPayload{
			Device: c.Target, Wire: string(c.Wire), Action: string(c.Action),
		})
	}

	_, isDevice := sc.Devices.Get(c.Target)
	isAlarm := sc.Monitors.Has(c.Target)
	if !isDevice && !isAlarm {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, c.Target)
	}

	switch c.Kind {
	case CmdNoop:
		return nil
	case CmdSetEnabled, CmdToggle:
		enabled := c.Enabled
		if isDevice {
			if c.Kind == CmdToggle {
				d, _ := sc.Devices.Get(c.Target)
				enabled = !d.Enabled
			}
			return sc.Devices.SetEnabled(sc, c.Target, enabled, c.Reason)
		}
		if c.Kind == CmdToggle {
			enabled = !sc.Monitors.Enabled(c.Target)
		}
		return sc.Monitors.SetEnabled(sc, c.Target, enabled, c.Reason)
	case CmdAlert:
		if !isAlarm {
			return fmt.Errorf("engine: %s has no alarm", c.Target)
		}
		return sc.Monitors.Alert(sc, c.Target, c.Level)
	case CmdIgnoreNetwork:
		if !isAlarm {
			return fmt.Errorf("engine: %s has no network link", c.Target)
		}
		return sc.Monitors.SetIgnoreNetwork(sc, c.Target, c.Enabled)
	case CmdSetTarget:
		if !isDevice {
			return fmt.Errorf("engine: %s has no target pressure", c.Target)
		}
		return sc.Devices.SetTarget(c.Target, c.KPa)
	case CmdSetMode:
		if !isDevice {
			return fmt.Errorf("engine: %s has no vent mode", c.Target)
		}
		return sc.Devices.SetMode(sc, c.Target, c.Mode)
	}
	return fmt.Errorf("engine: unknown command %q", c.Kind)
}

func (c Command) actor() string {
	if c.Actor == "" {
		return events.SystemActor
	}
	return c.Actor
}
