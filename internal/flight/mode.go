package flight

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Ground Mode = iota
	Takeoff
	Hold
	Heading
	Land

	// NumModes is the size of the closed mode set, used to size per-mode tables
	NumModes = int(Land) + 1
)

// ErrUnknownMode is returned when a mode name cannot be parsed
var ErrUnknownMode = errors.New("unknown flight mode")

// Mode is one of the closed set of flight modes the bridge can be in
type Mode uint8

var modeNames = [NumModes]string{
	Ground:  "ground",
	Takeoff: "takeoff",
	Hold:    "hold",
	Heading: "heading",
	Land:    "land",
}

// transitions lists every legal requested transition, keyed by the current mode
var transitions = [NumModes][]Mode{
	Ground:  {Takeoff},
	Takeoff: {Hold},
	Hold:    {Land, Heading},
	Heading: {Hold},
	Land:    {Ground},
}

// successors holds the mode entered automatically once the key mode completes.
// Ground and Hold never complete.
var successors = map[Mode]Mode{
	Takeoff: Hold,
	Heading: Hold,
	Land:    Ground,
}

// Modes returns every mode in declaration order
func Modes() []Mode {
	return []Mode{Ground, Takeoff, Hold, Heading, Land}
}

// Valid reports whether m belongs to the closed mode set
func (m Mode) Valid() bool {
	return int(m) < NumModes
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
	return modeNames[m]
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode converts a mode name into a Mode. Ground-station mode names are
// accepted as well, so "mission" parses as Heading and "ready" as Ground.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	for m, gs := range groundStationModes {
		if strings.EqualFold(gs.String(), name) {
			return Mode(m), nil
		}
	}
	return Ground, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// CanTransition reports whether a requested change from one mode to another is
// an edge of the transition table
func CanTransition(from, to Mode) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	for _, m := range transitions[from] {
		if m == to {
			return true
		}
	}
	return false
}

// Successor returns the mode entered once m reports completion. The second
// return value is false for modes that never complete on their own.
func Successor(m Mode) (Mode, bool) {
	next, ok := successors[m]
	return next, ok
}
