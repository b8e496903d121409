package tile

import "testing"

func TestDirectionOpposites(t *testing.T) {
	for _, d := range Cardinals {
		if d.Opposite().Opposite() != d {
			t.Errorf("Opposite of opposite of %s is %s", d, d.Opposite().Opposite())
		}
		back := d.Offset().Add(d.Opposite().Offset())
		if back != (Vector2i{}) {
			t.Errorf("Offsets of %s and its opposite do not cancel: %v", d, back)
		}
	}
}

func TestOpenToHonorsBothMasks(t *testing.T) {
	a := NewFloorTile("g", Vector2i{0, 0}, nil)
	b := NewFloorTile("g", Vector2i{1, 0}, nil)

	if !a.OpenTo(b, East) {
		t.Fatalf("Expected open floor tiles to connect")
	}

	a.BlockedDirections = East
	if a.OpenTo(b, East) {
		t.Errorf("Expected a's east seal to block")
	}

	a.BlockedDirections = NoDirection
	b.BlockedDirections = West
	if a.OpenTo(b, East) {
		t.Errorf("Expected b's west seal to block")
	}
}

func TestSolidTilesNeverOpen(t *testing.T) {
	wall := NewSolidTile("g", Vector2i{0, 0}, NewStructure(Steel, 293))
	floor := NewFloorTile("g", Vector2i{0, 1}, nil)

	if floor.OpenTo(wall, South) || wall.OpenTo(floor, North) {
		t.Errorf("Expected walls to block gas flow")
	}
	if wall.Kind() != KindSolid {
		t.Errorf("Expected SOLID, got %s", wall.Kind())
	}
	if wall.Temperature() != 293 {
		t.Errorf("Expected wall temperature 293, got %.1f", wall.Temperature())
	}
}

func TestDirectionString(t *testing.T) {
	if got := (North | West).String(); got != "NW" {
		t.Errorf("Expected NW, got %s", got)
	}
	if !AllDirections.Has(South | East) {
		t.Errorf("Expected AllDirections to contain SE")
	}
	if NoDirection.Has(NoDirection) {
		t.Errorf("Expected empty mask to contain nothing")
	}
}
