// Package alarm - alarm.go
// Alarm levels, threshold bands and the per-entity alert state machine.
// This package is PURE and must NOT import any infrastructure packages.
package alarm

import "strings"

// Level is a totally ordered alarm classification.
type Level int

const (
	Normal Level = iota
	Warning
	Danger
)

func (l Level) String() string {
	switch l {
	case Normal:
		return "NORMAL"
	case Warning:
		return "WARNING"
	case Danger:
		return "DANGER"
	}
	return "UNKNOWN"
}

// ParseLevel accepts level names case-insensitively.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NORMAL":
		return Normal, true
	case "WARNING":
		return Warning, true
	case "DANGER":
		return Danger, true
	}
	return Normal, false
}

// Max returns the more severe level.
func Max(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// Transition is one edge of the state machine.
type Transition struct {
	From Level `json:"from"`
	To   Level `json:"to"`
}

// State tracks one monitored entity. Sampled comes from thresholds,
// Forced from external pulses; the reported level is the higher of the two.
type State struct {
	Sampled       Level
	Forced        Level
	IgnoreNetwork bool

	reported Level
}

// Highest returns the effective alert level.
func (s *State) Highest() Level {
	return Max(s.Sampled, s.Forced)
}

// Reported is the last level that produced a transition.
func (s *State) Reported() Level {
	return s.reported
}

// Sample records a new threshold classification. ok is true only when
// the effective level changed.
func (s *State) Sample(l Level) (Transition, bool) {
	s.Sampled = l
	return s.settle()
}

// Force overrides sampling with at least l. Forcing Normal clears the
// override and the sampled classification takes over again.
func (s *State) Force(l Level) (Transition, bool) {
	s.Forced = l
	return s.settle()
}

func (s *State) settle() (Transition, bool) {
	next := s.Highest()
	if next == s.reported {
		return Transition{}, false
	}
	t := Transition{From: s.reported, To: next}
	s.reported = next
	return t, true
}
