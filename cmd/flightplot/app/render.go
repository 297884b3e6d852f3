package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi             = 96.0
	fontSize        = 10.0
	tickMarkSize    = 5
	markerDash      = 4
	lineThickness   = 2
	minPlotSize     = 100
	altitudeMargin  = 1.0 // meters kept above and below the recorded range
	pixelsPerLabelX = 120.0
	pixelsPerLabelY = 50.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 90
	defaultBottomBorder = 70
	defaultRightBorder  = 40
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for the mode legend
	Left   int // Space for the altitude scale
	Bottom int // Space for the time scale and the information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for profile rendering
type RenderConfig struct {
	Width    int     // Width of the plot area in pixels
	Height   int     // Height of the plot area in pixels
	FontSize float64 // Font size in points
	NoLegend bool

	BorderConfig BorderConfig
}

// ProfileRenderer draws a flight profile: altitude over virtual time on top
// of one background band per flight mode, with a marker at every transition
type ProfileRenderer struct {
	config RenderConfig
	font   *truetype.Font
}

// NewProfileRenderer creates a new profile renderer with the given configuration
func NewProfileRenderer(config RenderConfig) (*ProfileRenderer, error) {
	// Set defaults for zero values
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.Width < minPlotSize || config.Height < minPlotSize {
		return nil, fmt.Errorf("plot area %dx%d is smaller than %dx%d", config.Width, config.Height, minPlotSize, minPlotSize)
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &ProfileRenderer{config: config, font: parsedFont}, nil
}

// Render creates an image of the profile with annotations
func (r *ProfileRenderer) Render(p *Profile) (*image.RGBA, error) {
	if p.Empty() {
		return nil, ErrNoTelemetry
	}

	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width+b.Left+b.Right, r.config.Height+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+r.config.Width, b.Top+r.config.Height)
	sc := newScale(p, area)

	r.renderBands(img, sc, p)
	r.renderTransitions(img, sc, p)
	r.renderAltitude(img, sc, p)
	drawFrame(img, area, color.Black)

	ann := newAnnotator(r.font, r.config)
	defer ann.Close()

	if err := ann.annotate(img, sc, p); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

func (r *ProfileRenderer) renderBands(img *image.RGBA, sc scale, p *Profile) {
	for _, band := range p.Bands {
		rect := image.Rect(sc.x(band.From), sc.area.Min.Y, sc.x(band.To)+1, sc.area.Max.Y)
		draw.Draw(img, rect, &image.Uniform{C: bandColor(band.Mode)}, image.Point{}, draw.Src)
	}
}

func (r *ProfileRenderer) renderTransitions(img *image.RGBA, sc scale, p *Profile) {
	for _, tr := range p.Transitions {
		x := sc.x(tr.Time)
		c := markerColor(tr.To)

		for y := sc.area.Min.Y; y < sc.area.Max.Y; y++ {
			if (y/markerDash)%2 == 0 {
				img.Set(x, y, c)
			}
		}
	}
}

func (r *ProfileRenderer) renderAltitude(img *image.RGBA, sc scale, p *Profile) {
	prev := p.Samples[0]
	for _, s := range p.Samples {
		drawLine(img, sc.x(prev.Time), sc.y(prev.Altitude), sc.x(s.Time), sc.y(s.Altitude), altitudeColor)
		prev = s
	}
}

// scale maps virtual time and altitude onto plot area pixels
type scale struct {
	area   image.Rectangle
	start  time.Duration
	span   time.Duration
	minAlt float64
	maxAlt float64
}

func newScale(p *Profile, area image.Rectangle) scale {
	span := p.Duration()
	if span <= 0 {
		span = time.Second
	}

	return scale{
		area:   area,
		start:  p.Start,
		span:   span,
		minAlt: math.Floor(p.MinAltitude - altitudeMargin),
		maxAlt: math.Ceil(p.MaxAltitude + altitudeMargin),
	}
}

func (s scale) x(t time.Duration) int {
	ratio := float64(t-s.start) / float64(s.span)
	return s.area.Min.X + int(math.Round(ratio*float64(s.area.Dx()-1)))
}

func (s scale) y(alt float64) int {
	ratio := (alt - s.minAlt) / (s.maxAlt - s.minAlt)
	return s.area.Max.Y - 1 - int(math.Round(ratio*float64(s.area.Dy()-1)))
}

// drawLine draws a line lineThickness pixels tall from (x0, y0) to (x1, y1)
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := x1-x0, y1-y0
	steps := max(abs(dx), abs(dy), 1)

	for i := 0; i <= steps; i++ {
		x := x0 + int(math.Round(float64(i*dx)/float64(steps)))
		y := y0 + int(math.Round(float64(i*dy)/float64(steps)))
		for t := range lineThickness {
			img.Set(x, y-t, c)
		}
	}
}

func drawFrame(img *image.RGBA, area image.Rectangle, c color.Color) {
	for x := area.Min.X - 1; x <= area.Max.X; x++ {
		img.Set(x, area.Min.Y-1, c)
		img.Set(x, area.Max.Y, c)
	}
	for y := area.Min.Y - 1; y <= area.Max.Y; y++ {
		img.Set(area.Min.X-1, y, c)
		img.Set(area.Max.X, y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
