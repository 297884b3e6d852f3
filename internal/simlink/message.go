package simlink

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roman-kulish/flight-bridge/internal/flight"
)

// Kind identifies the payload of a simulator message
type Kind uint8

const (
	KindClock Kind = iota + 1 // simulation time update
	KindPose                  // vehicle position update
)

var ErrInvalidMessage = errors.New("invalid simulator message")

func (k Kind) String() string {
	switch k {
	case KindClock:
		return "clock"
	case KindPose:
		return "pose"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Clock is the simulation time as seconds and nanoseconds
type Clock struct {
	Sec  int64 `msgpack:"sec"`
	Nsec int64 `msgpack:"nsec"`
}

// Micros converts the simulation time to microseconds
func (c Clock) Micros() uint64 {
	return uint64(c.Sec)*1_000_000 + uint64(c.Nsec)/1_000
}

// Message is one datagram from the simulator
type Message struct {
	Kind  Kind             `msgpack:"kind"`
	Clock *Clock           `msgpack:"clock,omitempty"`
	Pose  *flight.Position `msgpack:"pose,omitempty"`
}

// Validate checks that the payload matches the kind
func (m *Message) Validate() error {
	switch m.Kind {
	case KindClock:
		if m.Clock == nil {
			return fmt.Errorf("%w: clock message without clock", ErrInvalidMessage)
		}
		if m.Clock.Sec < 0 || m.Clock.Nsec < 0 || m.Clock.Nsec >= 1_000_000_000 {
			return fmt.Errorf("%w: clock %d.%09d out of range", ErrInvalidMessage, m.Clock.Sec, m.Clock.Nsec)
		}

	case KindPose:
		if m.Pose == nil {
			return fmt.Errorf("%w: pose message without pose", ErrInvalidMessage)
		}

	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidMessage, m.Kind)
	}

	return nil
}

// Encode serializes m for the wire
func Encode(m *Message) ([]byte, error) {
	p, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Kind, err)
	}
	return p, nil
}

// Decode parses and validates one datagram
func Decode(p []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(p, &m); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
