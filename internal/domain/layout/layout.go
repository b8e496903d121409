// Package layout parses ASCII station maps into tile and device
// placements. The engine turns a Map into grid atmosphere state.
// This package is PURE and must NOT import any infrastructure packages.
package layout

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

//go:embed maps/*.txt
var builtin embed.FS

// DefaultMap is the name of the embedded default station.
const DefaultMap = "default"

// ErrEmptyMap is returned for input with no map rows.
var ErrEmptyMap = errors.New("layout: map has no rows")

// CellKind is the structural class of one cell.
type CellKind int

const (
	Space CellKind = iota
	Wall
	Window
	Floor
	Door
)

func (k CellKind) String() string {
	switch k {
	case Space:
		return "space"
	case Wall:
		return "wall"
	case Window:
		return "window"
	case Floor:
		return "floor"
	case Door:
		return "door"
	}
	return "unknown"
}

// DeviceKind is the device placed on a floor cell, if any.
type DeviceKind int

const (
	NoDevice DeviceKind = iota
	Vent
	Scrubber
	Passthrough
	Tank
	AirAlarm
)

func (d DeviceKind) String() string {
	switch d {
	case Vent:
		return "vent"
	case Scrubber:
		return "scrubber"
	case Passthrough:
		return "passthrough"
	case Tank:
		return "tank"
	case AirAlarm:
		return "air_alarm"
	}
	return "none"
}

// Cell is one parsed map position.
type Cell struct {
	At       tile.Vector2i
	Kind     CellKind
	Material tile.Material // walls and windows only
	Pipe     bool
	Device   DeviceKind
	Label    rune // lowercase letters mark named cells for tests and scenarios
}

// Map is a parsed station layout. Row 0 of the text is the northmost row.
type Map struct {
	Name   string
	Width  int
	Height int
	Cells  []Cell // row-major, see tile.Vector2i.Less

	index map[tile.Vector2i]int
}

type glyph struct {
	kind     CellKind
	material tile.Material
	pipe     bool
	device   DeviceKind
}

var glyphs = map[rune]glyph{
	' ': {kind: Space},
	'~': {kind: Space},
	'#': {kind: Wall, material: tile.Steel},
	'R': {kind: Wall, material: tile.Reinforced},
	'P': {kind: Wall, material: tile.Plasteel},
	'G': {kind: Window, material: tile.Glass},
	'.': {kind: Floor},
	'+': {kind: Door},
	'=': {kind: Floor, pipe: true},
	'V': {kind: Floor, pipe: true, device: Vent},
	'S': {kind: Floor, pipe: true, device: Scrubber},
	'D': {kind: Floor, pipe: true, device: Passthrough},
	'T': {kind: Floor, pipe: true, device: Tank},
	'A': {kind: Floor, device: AirAlarm},
}

// Parse reads a map. Lines starting with ';' are comments. Short rows are
// padded with space; lowercase letters are labelled floor cells.
func Parse(name string, r io.Reader) (*Map, error) {
	var rows []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, ";") {
			continue
		}
		rows = append(rows, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("layout %s: read: %w", name, err)
	}
	for len(rows) > 0 && strings.TrimSpace(rows[len(rows)-1]) == "" {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 {
		return nil, ErrEmptyMap
	}

	m := &Map{Name: name, Height: len(rows), index: make(map[tile.Vector2i]int)}
	for _, row := range rows {
		if n := len([]rune(row)); n > m.Width {
			m.Width = n
		}
	}

	for r, row := range rows {
		runes := []rune(row)
		y := m.Height - 1 - r
		for x := 0; x < m.Width; x++ {
			ch := ' '
			if x < len(runes) {
				ch = runes[x]
			}
			cell := Cell{At: tile.Vector2i{X: x, Y: y}}
			if ch >= 'a' && ch <= 'z' {
				cell.Kind = Floor
				cell.Label = ch
			} else {
				g, ok := glyphs[ch]
				if !ok {
					return nil, fmt.Errorf("layout %s:%d:%d: unknown glyph %q", name, r+1, x+1, ch)
				}
				cell.Kind = g.kind
				cell.Material = g.material
				cell.Pipe = g.pipe
				cell.Device = g.device
			}
			m.Cells = append(m.Cells, cell)
		}
	}

	sort.Slice(m.Cells, func(i, j int) bool { return m.Cells[i].At.Less(m.Cells[j].At) })
	for i, c := range m.Cells {
		m.index[c.At] = i
	}
	return m, nil
}

// Load parses one of the embedded maps by name.
func Load(name string) (*Map, error) {
	f, err := builtin.Open("maps/" + name + ".txt")
	if err != nil {
		return nil, fmt.Errorf("layout: embedded map %q: %w", name, err)
	}
	defer f.Close()
	return Parse(name, f)
}

// Builtin lists the embedded map names.
func Builtin() []string {
	entries, err := builtin.ReadDir("maps")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".txt"))
	}
	sort.Strings(names)
	return names
}

// At returns the cell at v.
func (m *Map) At(v tile.Vector2i) (Cell, bool) {
	i, ok := m.index[v]
	if !ok {
		return Cell{}, false
	}
	return m.Cells[i], true
}

// Labelled returns the coordinates of every cell carrying label.
func (m *Map) Labelled(label rune) []tile.Vector2i {
	var out []tile.Vector2i
	for _, c := range m.Cells {
		if c.Label == label {
			out = append(out, c.At)
		}
	}
	return out
}

// Devices returns the cells holding a device, row-major.
func (m *Map) Devices() []Cell {
	var out []Cell
	for _, c := range m.Cells {
		if c.Device != NoDevice {
			out = append(out, c)
		}
	}
	return out
}

// PipeLinks returns each pair of adjacent pipe-bearing cells once, the
// second cell being the north or east neighbour of the first.
func (m *Map) PipeLinks() [][2]tile.Vector2i {
	var out [][2]tile.Vector2i
	for _, c := range m.Cells {
		if !c.Pipe {
			continue
		}
		for _, dir := range []tile.Direction{tile.North, tile.East} {
			n, ok := m.At(c.At.Add(dir.Offset()))
			if ok && n.Pipe {
				out = append(out, [2]tile.Vector2i{c.At, n.At})
			}
		}
	}
	return out
}
