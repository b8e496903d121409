package main

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/engine"
)

func TestTileCell(t *testing.T) {
	tests := []struct {
		name string
		view engine.TileView
		want rune
	}{
		{"space", engine.TileView{Kind: tile.KindSpace}, '~'},
		{"wall", engine.TileView{Kind: tile.KindSolid, Material: "steel"}, '#'},
		{"window", engine.TileView{Kind: tile.KindSolid, Material: "glass"}, 'G'},
		{"floor", engine.TileView{Kind: tile.KindFloor, Pressure: 101, Blocked: tile.NoDirection.String()}, '.'},
		{"door", engine.TileView{Kind: tile.KindFloor, Pressure: 101, Blocked: tile.AllDirections.String()}, '+'},
	}
	for _, tt := range tests {
		if got, _ := tileCell(tt.view); got != tt.want {
			t.Errorf("%s: Expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestTileCell_ColorsByPressure(t *testing.T) {
	_, vacuum := tileCell(engine.TileView{Kind: tile.KindFloor, Pressure: 1})
	_, normal := tileCell(engine.TileView{Kind: tile.KindFloor, Pressure: 101})
	if vacuum != tcell.StyleDefault.Foreground(tcell.ColorRed) {
		t.Error("Expected vacuum drawn red")
	}
	if normal != tcell.StyleDefault.Foreground(tcell.ColorGreen) {
		t.Error("Expected normal pressure drawn green")
	}
}

func TestAppearanceCell(t *testing.T) {
	r, _, ok := appearanceCell(engine.Appearance{Kind: engine.AppearanceDevice, Device: engine.DeviceVent, Enabled: true, Mode: engine.VentSiphon})
	if !ok || r != 'v' {
		t.Errorf("Expected siphoning vent as 'v', got %q", r)
	}
	r, style, ok := appearanceCell(engine.Appearance{Kind: engine.AppearanceAirAlarm, Alarm: "DANGER"})
	if !ok || r != 'A' || style != tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true) {
		t.Errorf("Expected a red air alarm, got %q", r)
	}
	if _, _, ok := appearanceCell(engine.Appearance{Kind: engine.AppearanceMonitor}); ok {
		t.Error("Expected monitors to stay hidden")
	}
}

func TestBounds(t *testing.T) {
	views := []engine.TileView{
		{Indices: tile.Vector2i{X: 2, Y: 5}},
		{Indices: tile.Vector2i{X: -1, Y: 8}},
		{Indices: tile.Vector2i{X: 7, Y: 0}},
	}
	minX, minY, maxX, maxY := bounds(views)
	if minX != -1 || minY != 0 || maxX != 7 || maxY != 8 {
		t.Errorf("Unexpected bounds %d,%d %d,%d", minX, minY, maxX, maxY)
	}
}
