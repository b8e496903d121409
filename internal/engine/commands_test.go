package engine

import (
	"errors"
	"testing"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
)

func TestTranslateWire(t *testing.T) {
	tests := []struct {
		wire    Wire
		action  WireAction
		kind    CommandKind
		enabled bool
		level   alarm.Level
	}{
		{WirePower, WireCut, CmdSetEnabled, false, alarm.Normal},
		{WirePower, WireMend, CmdSetEnabled, true, alarm.Normal},
		{WirePower, WirePulse, CmdToggle, false, alarm.Normal},
		{WireAlarm, WireCut, CmdNoop, false, alarm.Normal},
		{WireAlarm, WireMend, CmdAlert, false, alarm.Normal},
		{WireAlarm, WirePulse, CmdAlert, false, alarm.Danger},
		{WireNetwork, WireCut, CmdIgnoreNetwork, true, alarm.Normal},
		{WireNetwork, WireMend, CmdIgnoreNetwork, false, alarm.Normal},
		{WireNetwork, WirePulse, CmdNoop, false, alarm.Normal},
	}
	for _, tc := range tests {
		t.Run(string(tc.wire)+"_"+string(tc.action), func(t *testing.T) {
			c, err := TranslateWire("dev", tc.wire, tc.action)
			if err != nil {
				t.Fatal(err)
			}
			if c.Kind != tc.kind || c.Enabled != tc.enabled || c.Level != tc.level {
				t.Errorf("Got %s enabled=%v level=%s", c.Kind, c.Enabled, c.Level)
			}
			if c.Target != "dev" || c.Wire != tc.wire || c.Action != tc.action {
				t.Errorf("Wire metadata lost: %+v", c)
			}
		})
	}
}

func TestParseWire_RejectsUnknown(t *testing.T) {
	if _, _, err := ParseWire("ground", "cut"); !errors.Is(err, ErrUnknownWire) {
		t.Errorf("Expected ErrUnknownWire for a bad wire, got %v", err)
	}
	if _, _, err := ParseWire("power", "snip"); !errors.Is(err, ErrUnknownWire) {
		t.Errorf("Expected ErrUnknownWire for a bad action, got %v", err)
	}
	w, a, err := ParseWire(" Network ", "pulse")
	if err != nil || w != WireNetwork || a != WirePulse {
		t.Errorf("Expected NETWORK/PULSE, got %s/%s %v", w, a, err)
	}
}

func TestCommandQueue_DrainsInPushOrder(t *testing.T) {
	var q CommandQueue
	for _, id := range []string{"a", "b", "c"} {
		q.Push(Command{Kind: CmdToggle, Target: id})
	}
	got := q.Drain()
	if len(got) != 3 || got[0].Target != "a" || got[2].Target != "c" {
		t.Errorf("Unexpected drain order: %+v", got)
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Error("Expected an empty queue after draining")
	}
}

func TestCommands_AppliedAtNextTick(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	pipedRoom(t, e, nil, 0)
	mustDevice(t, e, DeviceSpec{ID: "vent", Kind: DeviceVent, Grid: "g", Tile: at(0, 0), Node: 1})

	e.Submit(Command{Kind: CmdSetTarget, Target: "vent", KPa: 42})
	e.Submit(Command{Kind: CmdToggle, Target: "vent"})
	e.Submit(Command{Kind: CmdAlert, Target: "vent", Level: alarm.Danger})
	e.Submit(Command{Kind: CmdToggle, Target: "ghost"})
	if d := e.Devices()[0]; d.TargetPressure == 42 || !d.Enabled {
		t.Fatal("Commands must wait for the tick")
	}

	e.Step(testDt)
	d := e.Devices()[0]
	if d.TargetPressure != 42 || d.Enabled {
		t.Errorf("Expected target 42 and disabled, got %+v", d)
	}
	if e.queue.Len() != 0 {
		t.Error("Expected the queue drained, rejected commands included")
	}
}
