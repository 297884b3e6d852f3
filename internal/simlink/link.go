package simlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-bridge/internal/bus"
	"github.com/roman-kulish/flight-bridge/internal/clock"
	"github.com/roman-kulish/flight-bridge/internal/flight"
)

const (
	// DecodeErrorsThreshold defines the number of consecutive undecodable datagrams allowed
	DecodeErrorsThreshold = 5

	maxDatagramSize = 64 * 1024
)

var (
	// ErrTooManyDecodeErrors is returned when the number of consecutive decode errors exceeds the threshold
	ErrTooManyDecodeErrors = errors.New("too many consecutive decode errors")

	// ErrAlreadyRunning is returned when Serve is called on a running link
	ErrAlreadyRunning = errors.New("simulator link is already running")
)

// WithLogger sets the logger for the link
func WithLogger(logger *slog.Logger) func(*Link) {
	return func(l *Link) {
		l.logger = logger.With(slog.String("component", "simlink"))
	}
}

// WithDecodeErrorsThreshold sets the threshold for consecutive decode errors
func WithDecodeErrorsThreshold(threshold uint8) func(*Link) {
	return func(l *Link) {
		if threshold > 0 {
			l.decodeErrorsThreshold = threshold
		}
	}
}

// Link receives the simulator's datagrams. Clock messages advance the virtual
// clock and pose messages are published on flight.TopicVehiclePosition.
type Link struct {
	clock *clock.Clock
	bus   *bus.Bus

	isRunning atomic.Bool
	clocks    atomic.Uint64
	poses     atomic.Uint64

	decodeErrorsThreshold uint8
	logger                *slog.Logger
}

// New creates a link driving c and publishing on b
func New(c *clock.Clock, b *bus.Bus, options ...func(*Link)) *Link {
	l := Link{
		clock:                 c,
		bus:                   b,
		decodeErrorsThreshold: DecodeErrorsThreshold,
		logger:                slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// ListenAndServe listens on the UDP address and serves until ctx is done
func (l *Link) ListenAndServe(ctx context.Context, addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	return l.Serve(ctx, conn)
}

// Serve reads datagrams from conn until ctx is done or too many consecutive
// datagrams fail to decode. It closes conn before returning.
func (l *Link) Serve(ctx context.Context, conn net.PacketConn) (err error) {
	if !l.isRunning.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.isRunning.Store(false)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer func() {
		if stop() {
			if cErr := conn.Close(); cErr != nil && err == nil {
				err = cErr
			}
		}
	}()

	l.logger.Info("receiving simulator messages", slog.String("addr", conn.LocalAddr().String()))

	var decodeErrors uint8
	buf := make([]byte, maxDatagramSize)

	for {
		n, from, rErr := conn.ReadFrom(buf)
		if rErr != nil {
			if ctx.Err() != nil {
				l.logger.Info("simulator link stopped",
					slog.String("clocks", humanize.Comma(int64(l.clocks.Load()))),
					slog.String("poses", humanize.Comma(int64(l.poses.Load()))))
				return nil
			}
			return fmt.Errorf("reading datagram: %w", rErr)
		}

		if hErr := l.handle(buf[:n]); hErr != nil {
			decodeErrors++
			l.logger.Warn(fmt.Sprintf("error decoding datagram: %s", hErr.Error()),
				slog.String("from", from.String()),
				slog.Int("size", n))

			if decodeErrors >= l.decodeErrorsThreshold {
				return ErrTooManyDecodeErrors
			}

			continue
		}

		decodeErrors = 0 // reset counter
	}
}

// handle applies one datagram. Only decode failures are reported; a clock
// regression is logged by the clock and otherwise ignored.
func (l *Link) handle(p []byte) error {
	m, err := Decode(p)
	if err != nil {
		return err
	}

	switch m.Kind {
	case KindClock:
		l.clocks.Add(1)
		_ = l.clock.SetTime(m.Clock.Micros())

	case KindPose:
		l.poses.Add(1)
		bus.Publish(l.bus, flight.TopicVehiclePosition, *m.Pose)
	}

	return nil
}

// IsRunning returns true while the link serves
func (l *Link) IsRunning() bool {
	return l.isRunning.Load()
}

// Received returns the number of clock and pose messages applied so far
func (l *Link) Received() (clocks, poses uint64) {
	return l.clocks.Load(), l.poses.Load()
}
