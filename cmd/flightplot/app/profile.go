package app

import (
	"math"
	"time"

	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/storage"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

const maxDuration = time.Duration(math.MaxInt64)

// Sample is one altitude reading of the profile
type Sample struct {
	Time     time.Duration
	Altitude float64
}

// Band is a time span spent in a single flight mode
type Band struct {
	From time.Duration
	To   time.Duration
	Mode flight.Mode
}

// Profile accumulates the recorded telemetry of a session into the series the
// renderer draws: altitude over virtual time and the flight mode bands.
type Profile struct {
	Session     *storage.Session
	Samples     []Sample
	Bands       []Band
	Transitions []storage.Transition

	Start time.Duration
	End   time.Duration

	MinAltitude float64
	MaxAltitude float64
}

func NewProfile(session *storage.Session) *Profile {
	return &Profile{
		Session:     session,
		MinAltitude: math.Inf(1),
		MaxAltitude: math.Inf(-1),
	}
}

// Update adds a snapshot. Snapshots must arrive in virtual time order.
func (p *Profile) Update(t *telemetry.Telemetry) {
	if len(p.Samples) == 0 {
		p.Start = t.Timestamp
	}
	p.End = t.Timestamp

	p.Samples = append(p.Samples, Sample{Time: t.Timestamp, Altitude: t.Altitude})
	p.MinAltitude = math.Min(p.MinAltitude, t.Altitude)
	p.MaxAltitude = math.Max(p.MaxAltitude, t.Altitude)

	if n := len(p.Bands); n > 0 {
		p.Bands[n-1].To = t.Timestamp
		if p.Bands[n-1].Mode == t.Mode {
			return
		}
	}

	p.Bands = append(p.Bands, Band{From: t.Timestamp, To: t.Timestamp, Mode: t.Mode})
}

// SetTransitions keeps the transitions that fall within the sampled span
func (p *Profile) SetTransitions(transitions []storage.Transition) {
	p.Transitions = p.Transitions[:0]
	for _, tr := range transitions {
		if tr.Time >= p.Start && tr.Time <= p.End {
			p.Transitions = append(p.Transitions, tr)
		}
	}
}

// Empty reports whether the profile has no samples
func (p *Profile) Empty() bool {
	return len(p.Samples) == 0
}

// Duration returns the sampled span of virtual time
func (p *Profile) Duration() time.Duration {
	return p.End - p.Start
}
