package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/engine"
)

var bucketColors = map[engine.PressureBucket]tcell.Color{
	engine.PressureVacuum:  tcell.ColorRed,
	engine.PressureLow:     tcell.ColorYellow,
	engine.PressureNormal:  tcell.ColorGreen,
	engine.PressureHigh:    tcell.ColorAqua,
	engine.PressureExtreme: tcell.ColorFuchsia,
}

var levelColors = map[string]tcell.Color{
	"NORMAL":  tcell.ColorGreen,
	"WARNING": tcell.ColorYellow,
	"DANGER":  tcell.ColorRed,
}

var deviceGlyphs = map[engine.DeviceKind]rune{
	engine.DeviceVent:        'V',
	engine.DevicePump:        'P',
	engine.DeviceScrubber:    'S',
	engine.DevicePassthrough: 'D',
	engine.DeviceTank:        'T',
}

// tileCell picks the glyph for a bare tile.
func tileCell(v engine.TileView) (rune, tcell.Style) {
	switch v.Kind {
	case tile.KindSpace:
		return '~', tcell.StyleDefault.Foreground(tcell.ColorNavy)
	case tile.KindSolid:
		if v.Material == "glass" {
			return 'G', tcell.StyleDefault.Foreground(tcell.ColorSilver)
		}
		return '#', tcell.StyleDefault.Foreground(tcell.ColorGray)
	}
	style := tcell.StyleDefault.Foreground(bucketColors[engine.BucketFor(v.Pressure)])
	if v.Blocked != "" && v.Blocked != tile.NoDirection.String() {
		return '+', style
	}
	return '.', style
}

// appearanceCell picks the glyph drawn over a tile for an entity.
func appearanceCell(a engine.Appearance) (rune, tcell.Style, bool) {
	switch a.Kind {
	case engine.AppearanceDevice:
		r, ok := deviceGlyphs[a.Device]
		if !ok {
			return 0, tcell.StyleDefault, false
		}
		style := tcell.StyleDefault.Foreground(bucketColors[a.Pressure]).Bold(true)
		if !a.Enabled {
			style = tcell.StyleDefault.Foreground(tcell.ColorGray)
		}
		if a.Mode == engine.VentSiphon {
			r = 'v'
		}
		return r, style, true
	case engine.AppearanceAirAlarm:
		return 'A', tcell.StyleDefault.Foreground(levelColors[a.Alarm]).Bold(true), true
	}
	return 0, tcell.StyleDefault, false
}

// bounds returns the tile extent of a frame.
func bounds(tiles []engine.TileView) (minX, minY, maxX, maxY int) {
	for i, v := range tiles {
		if i == 0 || v.Indices.X < minX {
			minX = v.Indices.X
		}
		if i == 0 || v.Indices.Y < minY {
			minY = v.Indices.Y
		}
		if i == 0 || v.Indices.X > maxX {
			maxX = v.Indices.X
		}
		if i == 0 || v.Indices.Y > maxY {
			maxY = v.Indices.Y
		}
	}
	return
}

// Renderer draws frames onto a screen. Tile y grows upward, so the map
// is flipped when drawn.
type Renderer struct {
	screen tcell.Screen
	cursor tile.Vector2i
	status string
}

func (r *Renderer) toScreen(at tile.Vector2i, minX, maxY int) (int, int) {
	return at.X - minX, maxY - at.Y
}

// Draw renders one frame with the cursor highlighted.
func (r *Renderer) Draw(f Frame, source string) {
	s := r.screen
	s.Clear()
	minX, minY, _, maxY := bounds(f.Tiles)

	var under *engine.TileView
	cursorCh, cursorStyle := ' ', tcell.StyleDefault
	for i, v := range f.Tiles {
		x, y := r.toScreen(v.Indices, minX, maxY)
		ch, style := tileCell(v)
		s.SetContent(x, y, ch, nil, style)
		if v.Indices == r.cursor {
			under = &f.Tiles[i]
			cursorCh, cursorStyle = ch, style
		}
	}
	for _, a := range f.Appearances {
		ch, style, ok := appearanceCell(a)
		if !ok {
			continue
		}
		x, y := r.toScreen(a.Tile, minX, maxY)
		s.SetContent(x, y, ch, nil, style)
		if a.Tile == r.cursor {
			cursorCh, cursorStyle = ch, style
		}
	}
	cx, cy := r.toScreen(r.cursor, minX, maxY)
	s.SetContent(cx, cy, cursorCh, nil, cursorStyle.Reverse(true))

	row := maxY - minY + 2
	drawText(s, 0, row, tcell.StyleDefault.Bold(true), fmt.Sprintf("tick %d  source %s", f.Tick, source))
	row++
	if under != nil {
		drawText(s, 0, row, tcell.StyleDefault, fmt.Sprintf("(%d,%d) %s %.1f kPa %.1f K %s",
			under.Indices.X, under.Indices.Y, under.Kind, under.Pressure, under.Temperature, under.Material))
	}
	row++
	for _, al := range f.Alarms {
		if al.Kind != "AIR_ALARM" {
			continue
		}
		drawText(s, 0, row, tcell.StyleDefault.Foreground(levelColors[al.Level]),
			fmt.Sprintf("%-28s %-8s", al.ID, al.Level))
		row++
	}
	drawText(s, 0, row+1, tcell.StyleDefault.Foreground(tcell.ColorGray), "arrows move  x breach  q quit")
	if r.status != "" {
		drawText(s, 0, row+2, tcell.StyleDefault.Foreground(tcell.ColorRed), r.status)
	}
	s.Show()
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, ch := range text {
		s.SetContent(x+i, y, ch, nil, style)
	}
}
