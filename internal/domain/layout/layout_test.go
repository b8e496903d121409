package layout

import (
	"strings"
	"testing"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

func TestParse_Coordinates(t *testing.T) {
	m, err := Parse("tiny", strings.NewReader("; comment\n#G\n.=\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Width != 2 || m.Height != 2 {
		t.Fatalf("Expected 2x2, got %dx%d", m.Width, m.Height)
	}

	top, _ := m.At(tile.Vector2i{X: 1, Y: 1})
	if top.Kind != Window || top.Material != tile.Glass {
		t.Errorf("Expected glass window at (1,1), got %v", top.Kind)
	}
	bottom, _ := m.At(tile.Vector2i{X: 1, Y: 0})
	if bottom.Kind != Floor || !bottom.Pipe {
		t.Errorf("Expected pipe floor at (1,0), got %+v", bottom)
	}
}

func TestParse_UnknownGlyph(t *testing.T) {
	_, err := Parse("bad", strings.NewReader("#.?\n"))
	if err == nil {
		t.Fatal("Expected error for unknown glyph")
	}
	if !strings.Contains(err.Error(), "1:3") {
		t.Errorf("Error should carry the position, got %v", err)
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse("empty", strings.NewReader("; only a comment\n\n")); err != ErrEmptyMap {
		t.Errorf("Expected ErrEmptyMap, got %v", err)
	}
}

func TestParse_RaggedRowsPadWithSpace(t *testing.T) {
	m, err := Parse("ragged", strings.NewReader("###\n#\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	c, ok := m.At(tile.Vector2i{X: 2, Y: 0})
	if !ok || c.Kind != Space {
		t.Errorf("Expected padded space at (2,0), got %+v", c)
	}
}

func TestLoad_Default(t *testing.T) {
	m, err := Load(DefaultMap)
	if err != nil {
		t.Fatalf("Load default failed: %v", err)
	}

	counts := map[DeviceKind]int{}
	for _, d := range m.Devices() {
		counts[d.Device]++
	}
	if counts[Vent] != 1 || counts[Scrubber] != 1 || counts[Passthrough] != 1 || counts[Tank] != 1 || counts[AirAlarm] != 2 {
		t.Errorf("Unexpected device counts %v", counts)
	}

	for _, link := range m.PipeLinks() {
		a, _ := m.At(link[0])
		b, _ := m.At(link[1])
		if !a.Pipe || !b.Pipe {
			t.Errorf("Link %v joins a non-pipe cell", link)
		}
	}
	if len(m.PipeLinks()) == 0 {
		t.Error("Default map should have pipe links")
	}
}

func TestLoad_Labels(t *testing.T) {
	m, err := Load("ab_vacuum")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := len(m.Labelled('a')); got != 9 {
		t.Errorf("Expected 9 cells in room a, got %d", got)
	}
	if got := len(m.Labelled('b')); got != 9 {
		t.Errorf("Expected 9 cells in room b, got %d", got)
	}
	if names := Builtin(); len(names) < 2 {
		t.Errorf("Expected at least 2 builtin maps, got %v", names)
	}
}
