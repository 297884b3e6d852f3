package app

import (
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/storage"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

// flightSnapshots is a short flight: two seconds on the ground, a climb of
// ten meters, a hold and a descent
func flightSnapshots() []*telemetry.Telemetry {
	var out []*telemetry.Telemetry
	add := func(sec int, alt float64, m flight.Mode) {
		out = append(out, &telemetry.Telemetry{
			Timestamp: time.Duration(sec) * time.Second,
			Latitude:  47.3977,
			Longitude: 8.5456,
			Altitude:  alt,
			Mode:      m,
		})
	}

	add(0, 488, flight.Ground)
	add(1, 488, flight.Ground)
	for i := range 10 {
		add(2+i, 488+float64(i+1), flight.Takeoff)
	}
	for i := range 5 {
		add(12+i, 498, flight.Hold)
	}
	for i := range 10 {
		add(17+i, 497-float64(i), flight.Land)
	}
	return out
}

func TestProfileBands(t *testing.T) {
	p := NewProfile(nil)
	for _, s := range flightSnapshots() {
		p.Update(s)
	}

	if len(p.Samples) != 27 {
		t.Fatalf("samples = %d, want 27", len(p.Samples))
	}
	if p.MinAltitude != 488 || p.MaxAltitude != 498 {
		t.Errorf("altitude range = %g..%g, want 488..498", p.MinAltitude, p.MaxAltitude)
	}
	if p.Duration() != 26*time.Second {
		t.Errorf("Duration() = %s, want 26s", p.Duration())
	}

	want := []Band{
		{From: 0, To: 2 * time.Second, Mode: flight.Ground},
		{From: 2 * time.Second, To: 12 * time.Second, Mode: flight.Takeoff},
		{From: 12 * time.Second, To: 17 * time.Second, Mode: flight.Hold},
		{From: 17 * time.Second, To: 26 * time.Second, Mode: flight.Land},
	}
	if len(p.Bands) != len(want) {
		t.Fatalf("bands = %+v, want %+v", p.Bands, want)
	}
	for i := range want {
		if p.Bands[i] != want[i] {
			t.Errorf("band %d = %+v, want %+v", i, p.Bands[i], want[i])
		}
	}

	p.SetTransitions([]storage.Transition{
		{Time: 2 * time.Second, From: flight.Ground, To: flight.Takeoff},
		{Time: 30 * time.Second, From: flight.Land, To: flight.Ground, Auto: true},
	})
	if len(p.Transitions) != 1 {
		t.Errorf("transitions = %+v, want only the one within the sampled span", p.Transitions)
	}
}

func TestNiceSteps(t *testing.T) {
	timeTests := []struct {
		span  time.Duration
		width int
		want  time.Duration
	}{
		{span: 5 * time.Second, width: 1200, want: time.Second},
		{span: 10 * time.Minute, width: 1200, want: time.Minute},
		{span: 90 * time.Second, width: 600, want: 30 * time.Second},
		{span: 48 * time.Hour, width: 120, want: 2 * time.Hour},
	}
	for _, tt := range timeTests {
		if got := calculateNiceTimeStep(tt.span, tt.width); got != tt.want {
			t.Errorf("calculateNiceTimeStep(%s, %d) = %s, want %s", tt.span, tt.width, got, tt.want)
		}
	}

	if got := calculateNiceAltitudeStep(12, 8); got != 2 {
		t.Errorf("calculateNiceAltitudeStep(12, 8) = %g, want 2", got)
	}
	if got := calculateNiceAltitudeStep(2, 8); got != 0.5 {
		t.Errorf("calculateNiceAltitudeStep(2, 8) = %g, want 0.5", got)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 0, want: "0:00"},
		{d: 65 * time.Second, want: "1:05"},
		{d: 3723 * time.Second, want: "1:02:03"},
		{d: 1499 * time.Millisecond, want: "0:01"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	p := NewProfile(&storage.Session{ID: 1, Name: "bridge"})
	for _, s := range flightSnapshots() {
		p.Update(s)
	}

	r, err := NewProfileRenderer(RenderConfig{Width: 520, Height: 200})
	if err != nil {
		t.Fatalf("NewProfileRenderer: %v", err)
	}

	img, err := r.Render(p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	size := img.Bounds().Size()
	if size.X != 520+defaultLeftBorder+defaultRightBorder || size.Y != 200+defaultTopBorder+defaultBottomBorder {
		t.Errorf("image size = %v", size)
	}

	// middle of the hold band, halfway up the plot area, is band background
	sc := newScale(p, image.Rect(defaultLeftBorder, defaultTopBorder, defaultLeftBorder+520, defaultTopBorder+200))
	x := sc.x(14*time.Second + 500*time.Millisecond)
	y := defaultTopBorder + 100
	if got, want := img.RGBAAt(x, y), bandColor(flight.Hold); got != want {
		t.Errorf("pixel (%d, %d) = %v, want hold band %v", x, y, got, want)
	}

	if _, err = r.Render(NewProfile(nil)); err != ErrNoTelemetry {
		t.Errorf("Render of an empty profile = %v, want ErrNoTelemetry", err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "flight.sqlite")
	ctx := context.Background()

	store := storage.NewSqliteStore(dbPath)
	sessionID, err := store.CreateSession(ctx, "bridge", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err = store.StoreTelemetryBatch(ctx, sessionID, flightSnapshots()); err != nil {
		t.Fatalf("StoreTelemetryBatch: %v", err)
	}
	if err = store.StoreTransition(ctx, sessionID, flight.ModeChange{From: flight.Ground, To: flight.Takeoff, Time: 2_000_000}); err != nil {
		t.Fatalf("StoreTransition: %v", err)
	}
	if err = store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	config := NewConfig()
	config.DBPath = dbPath
	config.SessionID = sessionID
	config.OutputFile = filepath.Join(dir, "profile.png")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err = Run(ctx, config, logger); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f, err := os.Open(config.OutputFile)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if got := img.Bounds().Dx(); got != defaultWidth+defaultLeftBorder+defaultRightBorder {
		t.Errorf("output width = %d", got)
	}

	config.DBPath = filepath.Join(dir, "missing.sqlite")
	if err = Run(ctx, config, logger); err == nil {
		t.Errorf("Run with a missing database succeeded")
	}
}
