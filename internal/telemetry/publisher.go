package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-bridge/internal/clock"
)

const defaultRate = 1.0 // Hz

// ErrAlreadyRunning is returned when Run is called on a running publisher
var ErrAlreadyRunning = errors.New("telemetry publisher is already running")

// WithLogger sets the logger for the publisher
func WithLogger(logger *slog.Logger) func(*Publisher) {
	return func(p *Publisher) {
		p.logger = logger.With(slog.String("component", "telemetry"))
	}
}

// WithRate sets the publish rate in Hz
func WithRate(hz float64) func(*Publisher) {
	return func(p *Publisher) {
		if hz > 0 {
			p.period = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithSink adds a receiver of every published snapshot
func WithSink(s Sink) func(*Publisher) {
	return func(p *Publisher) {
		p.sinks = append(p.sinks, s)
	}
}

// Publisher takes a snapshot from a Provider at a fixed rate and fans it out
// to its sinks. Snapshots never overlap: PublishOnce is serialized.
type Publisher struct {
	provider Provider
	pacer    clock.Pacer
	sinks    []Sink
	period   time.Duration

	mu        sync.Mutex
	isRunning atomic.Bool
	published atomic.Uint64

	logger *slog.Logger
}

// NewPublisher creates a publisher paced by pacer, at 1 Hz unless WithRate is given
func NewPublisher(provider Provider, pacer clock.Pacer, options ...func(*Publisher)) *Publisher {
	p := Publisher{
		provider: provider,
		pacer:    pacer,
		period:   time.Duration(float64(time.Second) / defaultRate),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Run publishes until ctx is done
func (p *Publisher) Run(ctx context.Context) error {
	if !p.isRunning.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.isRunning.Store(false)

	p.logger.Info("publishing telemetry", slog.Duration("period", p.period))

	for ctx.Err() == nil {
		begin := p.pacer.Now()
		p.PublishOnce()

		p.pacer.Wait(ctx, p.period-(p.pacer.Now()-begin))
	}

	p.logger.Info("telemetry publisher stopped",
		slog.String("published", humanize.Comma(int64(p.published.Load()))))

	return nil
}

// PublishOnce takes one snapshot and hands it to every sink
func (p *Publisher) PublishOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.provider.Get()
	if t == nil {
		return
	}

	for _, s := range p.sinks {
		s.Publish(t)
	}
	p.published.Add(1)
}

// Published returns the number of snapshots published so far
func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

// IsRunning returns true while Run is active
func (p *Publisher) IsRunning() bool {
	return p.isRunning.Load()
}
