package flight

import "fmt"

const (
	StationUnknown GroundStationMode = iota
	StationReady
	StationTakeoff
	StationHold
	StationMission
	StationReturnToLaunch
	StationLand
	StationOffboard
)

const (
	LandedUnknown LandedState = iota
	OnGround
	InAir
	TakingOff
	Landing
)

// GroundStationMode is the flight mode vocabulary spoken on the ground-control link
type GroundStationMode uint8

var groundStationNames = map[GroundStationMode]string{
	StationUnknown:        "unknown",
	StationReady:          "ready",
	StationTakeoff:        "takeoff",
	StationHold:           "hold",
	StationMission:        "mission",
	StationReturnToLaunch: "rtl",
	StationLand:           "land",
	StationOffboard:       "offboard",
}

var groundStationModes = [NumModes]GroundStationMode{
	Ground:  StationReady,
	Takeoff: StationTakeoff,
	Hold:    StationHold,
	Heading: StationMission,
	Land:    StationLand,
}

func (g GroundStationMode) String() string {
	if s, ok := groundStationNames[g]; ok {
		return s
	}
	return fmt.Sprintf("station(%d)", uint8(g))
}

// MarshalText implements encoding.TextMarshaler
func (g GroundStationMode) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// GroundStation maps an internal mode onto the ground-control vocabulary
func (m Mode) GroundStation() GroundStationMode {
	if !m.Valid() {
		return StationUnknown
	}
	return groundStationModes[m]
}

// FromGroundStation maps a ground-control mode back onto an internal mode.
// Modes with no internal counterpart (rtl, offboard) are rejected.
func FromGroundStation(g GroundStationMode) (Mode, error) {
	for m, gs := range groundStationModes {
		if gs == g {
			return Mode(m), nil
		}
	}
	return Ground, fmt.Errorf("%w: ground station mode %s", ErrUnknownMode, g)
}

// LandedState describes whether the vehicle is on the ground, in the air or in between
type LandedState uint8

var landedStateNames = map[LandedState]string{
	LandedUnknown: "unknown",
	OnGround:      "on_ground",
	InAir:         "in_air",
	TakingOff:     "taking_off",
	Landing:       "landing",
}

func (l LandedState) String() string {
	if s, ok := landedStateNames[l]; ok {
		return s
	}
	return fmt.Sprintf("landed(%d)", uint8(l))
}

// MarshalText implements encoding.TextMarshaler
func (l LandedState) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// LandedState returns the landed state reported while m is the current mode
func (m Mode) LandedState() LandedState {
	switch m {
	case Ground:
		return OnGround
	case Takeoff:
		return TakingOff
	case Land:
		return Landing
	case Hold, Heading:
		return InAir
	default:
		return LandedUnknown
	}
}
