package bus

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
)

// ErrTypeMismatch is raised in strict mode when a publisher and the subscriber
// of a topic disagree on the payload type
var ErrTypeMismatch = errors.New("bus: payload type mismatch")

type handler struct {
	payload reflect.Type
	fn      func(any)
}

// WithLogger sets the logger for the bus
func WithLogger(logger *slog.Logger) func(*Bus) {
	return func(b *Bus) {
		b.logger = logger.With(slog.String("component", "bus"))
	}
}

// WithStrictTypes makes Publish panic on a payload type mismatch instead of
// logging and dropping the message. Meant for tests.
func WithStrictTypes() func(*Bus) {
	return func(b *Bus) {
		b.strict = true
	}
}

// Bus routes typed messages by topic name. Every topic has at most one
// handler and the last Subscribe wins. Subscriptions are expected to be set up
// before producers start.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]handler

	strict bool
	logger *slog.Logger
}

// New creates an empty bus with a discard logger
func New(options ...func(*Bus)) *Bus {
	b := Bus{
		handlers: make(map[string]handler),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&b)
	}

	return &b
}

// Subscribe registers fn as the only receiver of topic, replacing any earlier
// handler. The payload type T becomes the type tag of the topic.
func Subscribe[T any](b *Bus, topic string, fn func(T)) {
	payload := reflect.TypeFor[T]()

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.handlers[topic]; ok {
		b.logger.Debug("replacing topic handler",
			slog.String("topic", topic),
			slog.String("previous", prev.payload.String()),
			slog.String("payload", payload.String()))
	}

	b.handlers[topic] = handler{
		payload: payload,
		fn: func(v any) {
			fn(v.(T))
		},
	}
}

// Publish hands v to the handler of topic, synchronously. Publishing to a
// topic nobody subscribed to does nothing.
func Publish[T any](b *Bus, topic string, v T) {
	b.mu.RLock()
	h, ok := b.handlers[topic]
	b.mu.RUnlock()

	if !ok {
		return
	}

	if payload := reflect.TypeFor[T](); payload != h.payload {
		err := fmt.Errorf("%w: topic %q carries %s, published %s", ErrTypeMismatch, topic, h.payload, payload)
		if b.strict {
			panic(err)
		}
		b.logger.Error(err.Error())
		return
	}

	h.fn(v)
}
