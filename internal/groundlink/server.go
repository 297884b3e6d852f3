package groundlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/manager"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
	"github.com/roman-kulish/flight-bridge/internal/vehicle"
)

const shutdownTimeout = 5 * time.Second

// Controller accepts flight mode commands
type Controller interface {
	ChangeMode(m flight.Mode) error
	ActivateTakeoff() error
	ActivateLand() error
	Disarm() error
	CurrentMode() flight.Mode
}

// Vehicle is the arming surface and telemetry source of the ground link
type Vehicle interface {
	telemetry.Provider
	Arm()
	IsArmed() bool
	IsArming() bool
}

// WaypointSetter receives uploaded Heading targets
type WaypointSetter interface {
	SetWaypoint(p flight.Position)
	ClearWaypoint()
	Waypoint() *flight.Position
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "groundlink"))
	}
}

// Server is the ground-control command surface: JSON commands over HTTP and a
// websocket telemetry stream
type Server struct {
	ctrl      Controller
	vehicle   Vehicle
	waypoints WaypointSetter
	stream    *Broadcaster

	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates a server. Close releases the stream.
func NewServer(ctrl Controller, v Vehicle, waypoints WaypointSetter, options ...func(*Server)) *Server {
	s := &Server{
		ctrl:      ctrl,
		vehicle:   v,
		waypoints: waypoints,
		mux:       http.NewServeMux(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(s)
	}

	s.stream = NewBroadcaster(s.logger)
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Stream returns the telemetry sink feeding the websocket clients
func (s *Server) Stream() *Broadcaster { return s.stream }

// Close disconnects every stream client
func (s *Server) Close() {
	s.stream.Close()
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.stream.Close() // hijacked websockets are not tracked by Shutdown
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Warn("shutting down ground link", slog.String("error", err.Error()))
		}
	})
	defer stop()

	s.logger.Info("ground link listening", slog.String("addr", ln.Addr().String()))

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving ground link: %w", err)
	}
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.health)
	s.mux.HandleFunc("/state", s.state)

	s.mux.HandleFunc("/command/arm", s.armCmd)
	s.mux.HandleFunc("/command/disarm", s.disarmCmd)
	s.mux.HandleFunc("/command/takeoff", s.takeoffCmd)
	s.mux.HandleFunc("/command/land", s.landCmd)
	s.mux.HandleFunc("/command/mode", s.modeCmd)
	s.mux.HandleFunc("/command/waypoint", s.waypointCmd)

	s.mux.HandleFunc("/stream", s.streamWS)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":      s.ctrl.CurrentMode(),
		"arming":    s.vehicle.IsArming(),
		"telemetry": s.vehicle.Get(),
		"waypoint":  s.waypoints.Waypoint(),
		"clients":   s.stream.Count(),
	})
}

func (s *Server) armCmd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	s.vehicle.Arm()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "accepted",
		"type":   "arm",
		"armed":  s.vehicle.IsArmed(),
		"arming": s.vehicle.IsArming(),
	})
}

func (s *Server) disarmCmd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	if err := s.ctrl.Disarm(); err != nil {
		s.commandError(w, "disarm", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "type": "disarm"})
}

func (s *Server) takeoffCmd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	if err := s.ctrl.ActivateTakeoff(); err != nil {
		s.commandError(w, "takeoff", err)
		return
	}
	s.accepted(w, "takeoff")
}

func (s *Server) landCmd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	if err := s.ctrl.ActivateLand(); err != nil {
		s.commandError(w, "land", err)
		return
	}
	s.accepted(w, "land")
}

func (s *Server) modeCmd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	m, err := flight.ParseMode(body.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err = s.ctrl.ChangeMode(m); err != nil {
		s.commandError(w, "mode", err)
		return
	}
	s.accepted(w, "mode")
}

func (s *Server) waypointCmd(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodDelete:
		s.waypoints.ClearWaypoint()
		writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "type": "clear_waypoint"})
		return
	default:
		http.Error(w, "POST or DELETE only", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
		Alt float64 `json:"alt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.Lat < -90 || body.Lat > 90 || body.Lon < -180 || body.Lon > 180 {
		http.Error(w, "coordinates out of range", http.StatusBadRequest)
		return
	}

	s.waypoints.SetWaypoint(flight.Position{Lat: body.Lat, Lon: body.Lon, Alt: float32(body.Alt)})
	writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "type": "waypoint"})
}

func (s *Server) streamWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	ws := websocket.Server{Handler: websocket.Handler(s.stream.serveSocket)}
	ws.ServeHTTP(w, r)
}

func (s *Server) accepted(w http.ResponseWriter, kind string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "accepted",
		"type":   kind,
		"mode":   s.ctrl.CurrentMode(),
	})
}

// commandError maps a rejected command onto a status code. A takeoff waiting
// for arming is not a failure and is reported as 202.
func (s *Server) commandError(w http.ResponseWriter, kind string, err error) {
	switch {
	case errors.Is(err, manager.ErrArmingDeferred):
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "deferred",
			"type":   kind,
			"reason": err.Error(),
		})
		return

	case errors.Is(err, manager.ErrInvalidTransition),
		errors.Is(err, manager.ErrDisarmInFlight),
		errors.Is(err, vehicle.ErrDisarmInFlight):
		s.logger.Info("command rejected", slog.String("type", kind), slog.String("reason", err.Error()))
		writeJSON(w, http.StatusConflict, map[string]any{
			"status": "rejected",
			"type":   kind,
			"reason": err.Error(),
			"mode":   s.ctrl.CurrentMode(),
		})
		return

	case errors.Is(err, manager.ErrNotInitialized):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return

	default:
		s.logger.Error("command failed", slog.String("type", kind), slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
