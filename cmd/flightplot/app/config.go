package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	defaultWidth  = 1200
	defaultHeight = 400
)

type ImageFormat string

type Config struct {
	DBPath     string
	SessionID  int64
	OutputFile string
	Format     ImageFormat
	Width      int
	Height     int
	From       *time.Duration
	To         *time.Duration
	NoLegend   bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Width:  defaultWidth,
		Height: defaultHeight,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat string
	var from, to time.Duration
	flag.StringVar(&c.DBPath, "db", "", "Path to the flight session database file")
	flag.Int64Var(&c.SessionID, "s", 1, "Session ID")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.IntVar(&c.Width, "width", defaultWidth, "Width of the plot area in pixels")
	flag.IntVar(&c.Height, "height", defaultHeight, "Height of the plot area in pixels")
	flag.DurationVar(&from, "from", 0, "Plot from this simulation time, e.g. 30s")
	flag.DurationVar(&to, "to", 0, "Plot up to this simulation time, e.g. 2m")
	flag.BoolVar(&c.NoLegend, "no-legend", false, "Do not draw the flight mode legend")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "from" {
			c.From = &from
		}
		if f.Name == "to" {
			c.To = &to
		}
	})

	err := c.validate(ImageFormat(imageFormat))
	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func (c *Config) validate(format ImageFormat) error {
	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case c.SessionID <= 0:
		return errors.New("session id is required")
	case c.OutputFile == "":
		return errors.New("output file is required")
	case c.Width < minPlotSize || c.Height < minPlotSize:
		return fmt.Errorf("plot area must be at least %dx%d pixels", minPlotSize, minPlotSize)
	case c.From != nil && c.To != nil && *c.To <= *c.From:
		return errors.New("-to must be after -from")
	}

	if _, ok := validImageFormats[format]; !ok {
		return fmt.Errorf("invalid image format: %s", format)
	}
	return nil
}
