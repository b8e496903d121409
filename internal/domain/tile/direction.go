// Package tile defines the per-cell atmosphere state of a station grid.
// This package is PURE and must NOT import any infrastructure packages.
package tile

import "fmt"

// Vector2i is an integer grid coordinate. North is +Y.
type Vector2i struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns the component-wise sum.
func (v Vector2i) Add(o Vector2i) Vector2i {
	return Vector2i{X: v.X + o.X, Y: v.Y + o.Y}
}

// Less orders coordinates row-major (Y, then X). Used wherever output order
// must be deterministic.
func (v Vector2i) Less(o Vector2i) bool {
	if v.Y != o.Y {
		return v.Y < o.Y
	}
	return v.X < o.X
}

func (v Vector2i) String() string {
	return fmt.Sprintf("(%d,%d)", v.X, v.Y)
}

// Direction is a bitmask of cardinal directions.
type Direction uint8

const (
	North Direction = 1 << iota
	South
	East
	West

	NoDirection   Direction = 0
	AllDirections           = North | South | East | West
)

// Cardinals is the fixed neighbor enumeration order.
var Cardinals = [4]Direction{North, South, East, West}

// Offset returns the unit step for a single direction.
func (d Direction) Offset() Vector2i {
	switch d {
	case North:
		return Vector2i{Y: 1}
	case South:
		return Vector2i{Y: -1}
	case East:
		return Vector2i{X: 1}
	case West:
		return Vector2i{X: -1}
	}
	return Vector2i{}
}

// Opposite flips a single direction.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	}
	return NoDirection
}

// Has reports whether every bit of o is set in d.
func (d Direction) Has(o Direction) bool {
	return o != NoDirection && d&o == o
}

func (d Direction) String() string {
	switch d {
	case North:
		return "N"
	case South:
		return "S"
	case East:
		return "E"
	case West:
		return "W"
	case NoDirection:
		return "-"
	}
	s := ""
	for _, c := range Cardinals {
		if d.Has(c) {
			s += c.String()
		}
	}
	return s
}
