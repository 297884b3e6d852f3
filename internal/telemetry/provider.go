package telemetry

// Provider returns the latest telemetry snapshot
type Provider interface {
	Get() *Telemetry
}

// Sink receives every snapshot taken by a Publisher. Sinks are called in
// order on the publisher goroutine and must not block for long.
type Sink interface {
	Publish(t *Telemetry)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(t *Telemetry)

func (f SinkFunc) Publish(t *Telemetry) {
	f(t)
}
