// Package chart renders a normalized batch as a PNG: altitude, latitude and
// longitude as lines against normalized sample time, plus acceleration
// magnitude as dots colored with each record's vector color.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/ghalamif/SensorLens/internal/domain"
)

var ErrTooFewRecords = errors.New("chart: need at least two records")

type Options struct {
	Width  int
	Height int
	Title  string
}

func (o *Options) applyDefaults() {
	if o.Width <= 0 {
		o.Width = 1024
	}
	if o.Height <= 0 {
		o.Height = 512
	}
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 2,
		StrokeColor: col,
	}
}

// ToDrawingColor maps a [0,1] RGBA color onto 8-bit channels.
func ToDrawingColor(c domain.Color) drawing.Color {
	return drawing.Color{R: channel(c.R), G: channel(c.G), B: channel(c.B), A: channel(c.A)}
}

func channel(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

// Build assembles the chart without rendering it.
func Build(batch *domain.Batch, opts Options) (*chart.Chart, error) {
	if batch.Len() < 2 {
		return nil, ErrTooFewRecords
	}
	opts.applyDefaults()

	n := batch.Len()
	xs := make([]float64, n)
	alt := make([]float64, n)
	lat := make([]float64, n)
	lon := make([]float64, n)
	mag := make([]float64, n)
	colors := make([]drawing.Color, n)
	for i, r := range batch.Records {
		xs[i] = r.TimestampSecondsN
		alt[i] = r.AltitudeN
		lat[i] = r.LatitudeN
		lon[i] = r.LongitudeN
		mag[i] = r.AccelMagN
		colors[i] = ToDrawingColor(r.AccelColorVecN)
	}

	ch := &chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "time (normalized)", Range: &chart.ContinuousRange{Min: 0, Max: 1}},
		YAxis:      chart.YAxis{Name: "value (normalized)", Range: &chart.ContinuousRange{Min: 0, Max: 1}},
		Series: []chart.Series{
			chart.ContinuousSeries{Name: "Altitude", XValues: xs, YValues: alt, Style: lineStyle(chart.ColorBlue)},
			chart.ContinuousSeries{Name: "Latitude", XValues: xs, YValues: lat, Style: lineStyle(chart.ColorGreen)},
			chart.ContinuousSeries{Name: "Longitude", XValues: xs, YValues: lon, Style: lineStyle(chart.ColorRed)},
			chart.ContinuousSeries{
				Name:    "Acceleration",
				XValues: xs,
				YValues: mag,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    4,
					DotColorProvider: func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
						return colors[index]
					},
				},
			},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(ch)}
	return ch, nil
}

// RenderPNG writes the batch chart to w.
func RenderPNG(w io.Writer, batch *domain.Batch, opts Options) error {
	ch, err := Build(batch, opts)
	if err != nil {
		return err
	}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
