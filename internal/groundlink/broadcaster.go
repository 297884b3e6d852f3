package groundlink

import (
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/net/websocket"

	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

const (
	messageQueueSize = 64
	writeTimeout     = time.Second
)

// Broadcaster pushes telemetry snapshots as JSON to every connected websocket.
// Sockets that cannot be written within a second are dropped.
type Broadcaster struct {
	sockets   []*websocket.Conn
	socketsMu deadlock.Mutex
	messages  chan []byte

	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster and starts its writer
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger
	}

	b := &Broadcaster{
		messages: make(chan []byte, messageQueueSize),
		done:     make(chan struct{}),
		logger:   logger,
	}

	b.wg.Add(1)
	go b.writer()

	return b
}

// Publish implements telemetry.Sink. It never blocks: when the queue is full
// the snapshot is dropped.
func (b *Broadcaster) Publish(t *telemetry.Telemetry) {
	if t == nil {
		return
	}

	p, err := json.Marshal(t)
	if err != nil {
		b.logger.Error("marshaling telemetry", slog.String("error", err.Error()))
		return
	}

	select {
	case <-b.done:
	case b.messages <- p:
	default:
		b.dropped.Add(1)
	}
}

// AddSocket subscribes a websocket to the stream
func (b *Broadcaster) AddSocket(sock *websocket.Conn) {
	b.socketsMu.Lock()
	b.sockets = append(b.sockets, sock)
	b.socketsMu.Unlock()

	b.logger.Debug("stream client connected", slog.String("remote", sock.Request().RemoteAddr))
}

// RemoveSocket unsubscribes a websocket
func (b *Broadcaster) RemoveSocket(sock *websocket.Conn) {
	b.socketsMu.Lock()
	b.sockets = slices.DeleteFunc(b.sockets, func(s *websocket.Conn) bool { return s == sock })
	b.socketsMu.Unlock()
}

// Count returns the number of connected sockets
func (b *Broadcaster) Count() int {
	b.socketsMu.Lock()
	defer b.socketsMu.Unlock()

	return len(b.sockets)
}

// Dropped returns the number of snapshots lost to a full queue
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops the writer and closes every socket
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()

		b.socketsMu.Lock()
		for _, sock := range b.sockets {
			_ = sock.Close()
		}
		b.sockets = nil
		b.socketsMu.Unlock()
	})
}

func (b *Broadcaster) writer() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return

		case msg := <-b.messages:
			b.socketsMu.Lock()
			writable := b.sockets[:0] // keep the list of writable sockets
			for _, sock := range b.sockets {
				err := sock.SetWriteDeadline(time.Now().Add(writeTimeout))
				if _, wErr := sock.Write(msg); err == nil && wErr == nil {
					writable = append(writable, sock)
					continue
				}
				_ = sock.Close()
			}
			clear(b.sockets[len(writable):])
			b.sockets = writable
			b.socketsMu.Unlock()
		}
	}
}

func (b *Broadcaster) serveSocket(sock *websocket.Conn) {
	b.AddSocket(sock)
	defer b.RemoveSocket(sock)

	// the stream is one-way, reads only detect the client going away
	buf := make([]byte, 512)
	for {
		if _, err := sock.Read(buf); err != nil {
			return
		}
	}
}
