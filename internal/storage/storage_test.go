package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "flight.sqlite"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func snapshot(ts time.Duration, m flight.Mode, alt float64) *telemetry.Telemetry {
	return &telemetry.Telemetry{
		Timestamp:   ts,
		Latitude:    47.3977,
		Longitude:   8.5456,
		Altitude:    alt,
		Mode:        m,
		StationMode: m.GroundStation(),
		LandedState: m.LandedState(),
		Armed:       m != flight.Ground,
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	config := map[string]any{"rateHz": 50}
	first, err := s.CreateSession(ctx, "first", config)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	second, err := s.CreateSession(ctx, "second", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sess, err := s.Session(ctx, first)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.Name != "first" || sess.Config == nil || *sess.Config != `{"rateHz":50}` {
		t.Errorf("unexpected session %+v", sess)
	}
	if _, err := uuid.Parse(sess.RunID); err != nil {
		t.Errorf("RunID %q is not a UUID: %v", sess.RunID, err)
	}
	if sess.StartTime.IsZero() {
		t.Errorf("StartTime is zero")
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != first || sessions[1].ID != second {
		t.Fatalf("Sessions returned %d sessions", len(sessions))
	}
	if sessions[1].Config != nil {
		t.Errorf("nil config stored as %q", *sessions[1].Config)
	}
	if sessions[0].RunID == sessions[1].RunID {
		t.Errorf("sessions share run id %s", sessions[0].RunID)
	}
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "flight", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	changes := []flight.ModeChange{
		{From: flight.Ground, To: flight.Takeoff, Time: 1_000_000},
		{From: flight.Takeoff, To: flight.Hold, Auto: true, Time: 21_000_000},
	}
	for _, mc := range changes {
		if err := s.StoreTransition(ctx, id, mc); err != nil {
			t.Fatalf("StoreTransition: %v", err)
		}
	}

	got, err := s.ReadTransitions(ctx, id)
	if err != nil {
		t.Fatalf("ReadTransitions: %v", err)
	}

	want := []Transition{
		{Time: time.Second, From: flight.Ground, To: flight.Takeoff},
		{Time: 21 * time.Second, From: flight.Takeoff, To: flight.Hold, Auto: true},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d transitions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTelemetryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "flight", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	withSetpoint := snapshot(2*time.Second, flight.Takeoff, 492)
	withSetpoint.Setpoint = &flight.Position{Lat: 47.3977, Lon: 8.5456, Alt: 498}

	batch := []*telemetry.Telemetry{
		snapshot(time.Second, flight.Ground, 488),
		withSetpoint,
		snapshot(3*time.Second, flight.Hold, 498),
	}
	if err := s.StoreTelemetryBatch(ctx, id, batch); err != nil {
		t.Fatalf("StoreTelemetryBatch: %v", err)
	}
	if err := s.StoreTelemetryBatch(ctx, id, nil); err != nil {
		t.Fatalf("StoreTelemetryBatch(nil): %v", err)
	}

	r, err := s.ReadTelemetry(ctx, id)
	if err != nil {
		t.Fatalf("ReadTelemetry: %v", err)
	}
	defer r.Close()

	if r.Session().ID != id {
		t.Errorf("reader session = %d, want %d", r.Session().ID, id)
	}

	var got []*telemetry.Telemetry
	for r.Next(ctx) {
		got = append(got, r.Current())
	}
	if err := r.Error(); err != nil {
		t.Fatalf("reader error: %v", err)
	}
	if len(got) != len(batch) {
		t.Fatalf("read %d snapshots, want %d", len(got), len(batch))
	}

	for i, want := range batch {
		g := got[i]
		if g.Timestamp != want.Timestamp || g.Mode != want.Mode || g.Altitude != want.Altitude || g.Armed != want.Armed {
			t.Errorf("snapshot %d = %+v, want %+v", i, g, want)
		}
		if g.StationMode != want.StationMode || g.LandedState != want.LandedState {
			t.Errorf("snapshot %d station/landed = %s/%s", i, g.StationMode, g.LandedState)
		}
	}
	if got[0].Setpoint != nil {
		t.Errorf("snapshot 0 setpoint = %+v, want nil", got[0].Setpoint)
	}
	if sp := got[1].Setpoint; sp == nil || sp.Alt != 498 {
		t.Errorf("snapshot 1 setpoint = %+v, want altitude 498", sp)
	}
}

func TestReadTelemetryTimeRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "flight", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var batch []*telemetry.Telemetry
	for i := range 10 {
		batch = append(batch, snapshot(time.Duration(i)*time.Second, flight.Hold, 500))
	}
	if err := s.StoreTelemetryBatch(ctx, id, batch); err != nil {
		t.Fatalf("StoreTelemetryBatch: %v", err)
	}

	r, err := s.ReadTelemetry(ctx, id, WithTimeRange(3*time.Second, 5*time.Second))
	if err != nil {
		t.Fatalf("ReadTelemetry: %v", err)
	}
	defer r.Close()

	var stamps []time.Duration
	for r.Next(ctx) {
		stamps = append(stamps, r.Current().Timestamp)
	}
	if len(stamps) != 3 || stamps[0] != 3*time.Second || stamps[2] != 5*time.Second {
		t.Errorf("timestamps = %v, want 3s..5s", stamps)
	}

	if _, err := s.ReadTelemetry(ctx, id, WithTimeRange(5*time.Second, time.Second)); err == nil {
		t.Errorf("inverted time range accepted")
	}
	if _, err := s.ReadTelemetry(ctx, id+100); err == nil {
		t.Errorf("reader for a missing session created")
	}
}

// memStore is an in-memory Store for recorder tests
type memStore struct {
	Store

	mu          sync.Mutex
	batches     [][]*telemetry.Telemetry
	transitions []flight.ModeChange
	order       []string
	fail        bool
}

func (m *memStore) StoreTelemetryBatch(_ context.Context, _ int64, batch []*telemetry.Telemetry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return errors.New("disk full")
	}
	m.batches = append(m.batches, append([]*telemetry.Telemetry(nil), batch...))
	m.order = append(m.order, "telemetry")
	return nil
}

func (m *memStore) StoreTransition(_ context.Context, _ int64, mc flight.ModeChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transitions = append(m.transitions, mc)
	m.order = append(m.order, "transition")
	return nil
}

func TestRecorderBatchesAndDrains(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 1, WithMaxBatchSize(2), WithFlushInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	for i := range 5 {
		r.Publish(snapshot(time.Duration(i)*time.Second, flight.Hold, 500))
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Written() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("recorder wrote %d snapshots, want 4 before shutdown", r.Written())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done

	if r.Written() != 5 {
		t.Errorf("Written() = %d after drain, want 5", r.Written())
	}
	for _, b := range store.batches {
		if len(b) > 2 {
			t.Errorf("batch of %d exceeds the maximum of 2", len(b))
		}
	}
}

func TestRecorderFlushesBeforeTransition(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 1, WithFlushInterval(time.Hour))

	r.Publish(snapshot(time.Second, flight.Takeoff, 495))
	r.RecordTransition(flight.ModeChange{From: flight.Takeoff, To: flight.Hold, Auto: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	if len(store.order) != 2 || store.order[0] != "telemetry" || store.order[1] != "transition" {
		t.Errorf("store order = %v, want [telemetry transition]", store.order)
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 1, WithBufferSize(2))

	for i := range 5 {
		r.Publish(snapshot(time.Duration(i)*time.Second, flight.Hold, 500))
	}
	for range 3 {
		r.RecordTransition(flight.ModeChange{From: flight.Hold, To: flight.Land})
	}

	if r.Dropped() != 6 {
		t.Errorf("Dropped() = %d, want 6", r.Dropped())
	}
}

func TestRecorderKeepsRunningOnStoreError(t *testing.T) {
	store := &memStore{fail: true}
	r := NewRecorder(store, 1)

	r.Publish(snapshot(time.Second, flight.Hold, 500))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	if r.Written() != 0 {
		t.Errorf("Written() = %d with a failing store, want 0", r.Written())
	}
}
