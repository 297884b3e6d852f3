package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/roman-kulish/flight-bridge/internal/flight"
)

const (
	legendSwatch  = 12
	legendSpacing = 24
)

type annotation struct {
	msg string
	fn  func(*image.RGBA, scale, *Profile) error
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	config   RenderConfig
}

func newAnnotator(f *truetype.Font, config RenderConfig) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(f)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(f, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, sc scale, p *Profile) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []annotation{
		{"drawing altitude scale", a.drawAltitudeScale},
		{"drawing time scale", a.drawTimeScale},
		{"drawing transition labels", a.drawTransitionLabels},
		{"drawing info bar", a.drawInfoBar},
	}
	if !a.config.NoLegend {
		ops = append(ops, annotation{"drawing legend", a.drawLegend})
	}

	for _, op := range ops {
		if err := op.fn(img, sc, p); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) fontHeight() (height, descent int) {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round(), metrics.Descent.Round()
}

func (a *annotator) drawAltitudeScale(img *image.RGBA, sc scale, _ *Profile) error {
	labels := float64(sc.area.Dy()) / pixelsPerLabelY
	step := calculateNiceAltitudeStep(sc.maxAlt-sc.minAlt, labels)
	height, descent := a.fontHeight()

	for alt := math.Ceil(sc.minAlt/step) * step; alt <= sc.maxAlt; alt += step {
		y := sc.y(alt)

		// Draw tick mark
		for x := sc.area.Min.X - tickMarkSize; x < sc.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := humanize.FtoaWithDigits(alt, 1) + " m"
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(sc.area.Min.X-tickMarkSize-4-width, y+height/2-descent)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing altitude label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, sc scale, _ *Profile) error {
	step := calculateNiceTimeStep(sc.span, sc.area.Dx())
	height, _ := a.fontHeight()

	first := (sc.start + step - 1) / step * step
	for t := first; t <= sc.start+sc.span; t += step {
		x := sc.x(t)

		// Draw tick mark
		for y := sc.area.Max.Y; y < sc.area.Max.Y+tickMarkSize; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatElapsed(t)
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(x-width/2, sc.area.Max.Y+tickMarkSize+height)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTransitionLabels(_ *image.RGBA, sc scale, p *Profile) error {
	height, _ := a.fontHeight()

	for _, tr := range p.Transitions {
		label := tr.To.String()
		if tr.Auto {
			label += " (auto)"
		}

		a.context.SetSrc(image.NewUniform(markerColor(tr.To)))
		pt := freetype.Pt(sc.x(tr.Time)+3, sc.area.Min.Y+height)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing transition label: %w", err)
		}
	}

	a.context.SetSrc(image.Black)
	return nil
}

func (a *annotator) drawLegend(img *image.RGBA, sc scale, _ *Profile) error {
	height, descent := a.fontHeight()
	x := sc.area.Min.X
	top := (sc.area.Min.Y - legendSwatch) / 2

	for _, m := range flight.Modes() {
		swatch := image.Rect(x, top, x+legendSwatch, top+legendSwatch)
		draw.Draw(img, swatch, &image.Uniform{C: bandColor(m)}, image.Point{}, draw.Src)
		drawFrame(img, swatch, markerColor(m))

		label := m.String()
		pt := freetype.Pt(x+legendSwatch+6, top+legendSwatch/2+height/2-descent)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing legend label: %w", err)
		}

		x += legendSwatch + 6 + font.MeasureString(a.fontFace, label).Round() + legendSpacing
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, _ scale, p *Profile) error {
	var sb strings.Builder

	if s := p.Session; s != nil {
		sb.WriteString(fmt.Sprintf("Session %d (%s), started %s; ", s.ID, s.Name, s.StartTime.UTC().Format(time.DateTime)))
	}
	sb.WriteString(fmt.Sprintf("Duration: %s; ", formatElapsed(p.Duration())))
	sb.WriteString(fmt.Sprintf("Samples: %s; ", humanize.Comma(int64(len(p.Samples)))))
	sb.WriteString(fmt.Sprintf("Transitions: %d; ", len(p.Transitions)))
	sb.WriteString(fmt.Sprintf("Altitude: %s - %s m",
		humanize.FtoaWithDigits(p.MinAltitude, 2),
		humanize.FtoaWithDigits(p.MaxAltitude, 2)))

	height, descent := a.fontHeight()
	textY := img.Bounds().Max.Y - (a.config.BorderConfig.Bottom/2-height)/2 - descent

	pt := freetype.Pt(a.config.BorderConfig.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

func calculateNiceAltitudeStep(span, labels float64) float64 {
	// Standard step sizes in meters
	steps := []float64{0.5, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000}

	target := span / math.Max(labels, 1)
	for _, step := range steps {
		if step >= target {
			return step
		}
	}
	return steps[len(steps)-1]
}

func calculateNiceTimeStep(span time.Duration, width int) time.Duration {
	niceIntervals := []time.Duration{
		time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		30 * time.Second,
		time.Minute,
		2 * time.Minute,
		5 * time.Minute,
		10 * time.Minute,
		15 * time.Minute,
		30 * time.Minute,
		time.Hour,
	}

	labels := max(int(float64(width)/pixelsPerLabelX), 1)
	target := span / time.Duration(labels)

	// Find the first interval larger than the rough step
	for _, interval := range niceIntervals {
		if target <= interval {
			return interval
		}
	}

	return 2 * time.Hour // Default for very long flights
}

// formatElapsed renders a virtual time as m:ss or h:mm:ss
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
