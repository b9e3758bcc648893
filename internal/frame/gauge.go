// internal/frame/gauge.go
package frame

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/telemetry"
)

// GaugeStyle describes the radial gauge.
// Angles are degrees with 0 at the top, growing clockwise.
type GaugeStyle struct {
	StartColor      string  `yaml:"start_color"`
	EndColor        string  `yaml:"end_color"`
	BackgroundColor string  `yaml:"background_color"`
	Radius          float64 `yaml:"radius"`
	Thickness       float64 `yaml:"thickness"`
	StartAngle      float64 `yaml:"start_angle"`
	SweepAngle      float64 `yaml:"sweep_angle"`
	Min             float64 `yaml:"min"`
	Max             float64 `yaml:"max"`
	// Interpolation is the colour space of the gradient: rgb, lab, hcl or luv.
	Interpolation string `yaml:"interpolation"`
	ShowValue     bool   `yaml:"show_value"`
	// TrackDim scales the colour of the unfilled part of the arc (0-1).
	TrackDim float64 `yaml:"track_dim"`
}

// DefaultGaugeStyle is the stock red-orange liquid gauge.
func DefaultGaugeStyle() GaugeStyle {
	return GaugeStyle{
		StartColor:      "#FF0000",
		EndColor:        "#FF5000",
		BackgroundColor: "#000000",
		Radius:          152.5,
		Thickness:       22.5,
		StartAngle:      -136,
		SweepAngle:      273.1,
		Min:             0,
		Max:             100,
		Interpolation:   "rgb",
		ShowValue:       true,
		TrackDim:        0.35,
	}
}

// indicatorGap is the angular distance kept free on each side of the ball.
const indicatorGap = 2*7 + 4

// Gauge renders values with a fixed style. Safe for sequential use only.
type Gauge struct {
	style  GaugeStyle
	start  colorful.Color
	end    colorful.Color
	bg     colorful.Color
	blend  func(a, b colorful.Color, t float64) colorful.Color
	orient int
}

// NewGauge validates the style and prepares colours.
func NewGauge(style GaugeStyle, orientation int) (*Gauge, error) {
	if style.Max <= style.Min {
		return nil, fmt.Errorf("gauge: max %.1f must exceed min %.1f", style.Max, style.Min)
	}
	if style.Thickness <= 0 || style.Radius <= style.Thickness {
		return nil, fmt.Errorf("gauge: radius %.1f / thickness %.1f invalid", style.Radius, style.Thickness)
	}
	if style.SweepAngle <= 0 || style.SweepAngle > 360 {
		return nil, fmt.Errorf("gauge: sweep %.1f out of range", style.SweepAngle)
	}

	g := &Gauge{style: style, orient: orientation}

	var err error
	if g.start, err = colorful.Hex(style.StartColor); err != nil {
		return nil, fmt.Errorf("gauge: start colour: %w", err)
	}
	if g.end, err = colorful.Hex(style.EndColor); err != nil {
		return nil, fmt.Errorf("gauge: end colour: %w", err)
	}
	if g.bg, err = colorful.Hex(style.BackgroundColor); err != nil {
		return nil, fmt.Errorf("gauge: background colour: %w", err)
	}

	switch strings.ToLower(style.Interpolation) {
	case "", "rgb":
		g.blend = colorful.Color.BlendRgb
	case "lab":
		g.blend = colorful.Color.BlendLab
	case "hcl":
		g.blend = colorful.Color.BlendHcl
	case "luv":
		g.blend = colorful.Color.BlendLuv
	default:
		return nil, fmt.Errorf("gauge: unknown interpolation %q", style.Interpolation)
	}
	return g, nil
}

// Fraction maps a value onto [0,1] of the gauge range.
func (g *Gauge) Fraction(v float64) float64 {
	t := (v - g.style.Min) / (g.style.Max - g.style.Min)
	return math.Max(0, math.Min(1, t))
}

// colorAt is the gradient colour at fraction t of the sweep.
func (g *Gauge) colorAt(t float64) colorful.Color {
	return g.blend(g.start, g.end, t).Clamped()
}

// Render draws value (with an optional caption) into a device raster.
func (g *Gauge) Render(value float64, caption string) Raster {
	const w, h = protocol.LCDWidth, protocol.LCDHeight
	s := g.style

	dc := gg.NewContext(w, h)
	dc.SetColor(g.bg)
	dc.Clear()

	cx, cy := float64(w)/2, float64(h)/2
	mid := s.Radius - s.Thickness/2
	capR := s.Thickness / 2

	frac := g.Fraction(value)
	at := s.StartAngle + frac*s.SweepAngle
	end := s.StartAngle + s.SweepAngle

	// filled body, up to the gap before the ball
	bodyEnd := math.Max(s.StartAngle, at-indicatorGap)
	if bodyEnd > s.StartAngle {
		g.arc(dc, cx, cy, mid, s.StartAngle, bodyEnd, 1)
		g.cap(dc, cx, cy, mid, capR, s.StartAngle, 1)
		g.cap(dc, cx, cy, mid, capR, bodyEnd, 1)
	}

	// remaining track, after the gap
	trackStart := at + indicatorGap
	if trackStart < end {
		g.arc(dc, cx, cy, mid, trackStart, end, s.TrackDim)
		g.cap(dc, cx, cy, mid, capR, trackStart, s.TrackDim)
		g.cap(dc, cx, cy, mid, capR, end, s.TrackDim)
	}

	// indicator ball
	g.cap(dc, cx, cy, mid, capR, at, 1)

	if s.ShowValue {
		dc.SetColor(color.White)
		dc.SetFontFace(face(96))
		dc.DrawStringAnchored(fmt.Sprintf("%.0f", value), cx, cy-8, 0.5, 0.5)
		if caption != "" {
			dc.SetFontFace(face(24))
			dc.DrawStringAnchored(strings.ToUpper(caption), cx, cy+64, 0.5, 0.5)
		}
	}

	return canvasRaster(dc.Image(), g.orient)
}

func (g *Gauge) arc(dc *gg.Context, cx, cy, r, from, to, dim float64) {
	dc.SetLineWidth(g.style.Thickness)
	dc.SetLineCapButt()
	for a := from; a < to; a++ {
		b := math.Min(a+1.5, to)
		t := (a - g.style.StartAngle) / g.style.SweepAngle
		dc.SetColor(g.shade(g.colorAt(t), dim))
		dc.DrawArc(cx, cy, r, screenAngle(a), screenAngle(b))
		dc.Stroke()
	}
}

func (g *Gauge) cap(dc *gg.Context, cx, cy, r, capR, angle, dim float64) {
	t := (angle - g.style.StartAngle) / g.style.SweepAngle
	rad := screenAngle(angle)
	dc.SetColor(g.shade(g.colorAt(math.Max(0, math.Min(1, t))), dim))
	dc.DrawCircle(cx+r*math.Cos(rad), cy+r*math.Sin(rad), capR)
	dc.Fill()
}

// shade mixes c toward the background.
func (g *Gauge) shade(c colorful.Color, dim float64) colorful.Color {
	if dim >= 1 {
		return c
	}
	return g.bg.BlendRgb(c, math.Max(0, dim)).Clamped()
}

// screenAngle converts top-zero clockwise degrees to gg radians
// (x-axis zero, clockwise on screen).
func screenAngle(deg float64) float64 {
	return gg.Radians(deg - 90)
}

var (
	fontOnce sync.Once
	goFont   *truetype.Font
	facesMu  sync.Mutex
	faces    = map[float64]font.Face{}
)

func face(size float64) font.Face {
	fontOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			panic(fmt.Sprintf("gauge: embedded font: %v", err))
		}
		goFont = f
	})

	facesMu.Lock()
	defer facesMu.Unlock()
	if f, ok := faces[size]; ok {
		return f
	}
	f := truetype.NewFace(goFont, &truetype.Options{Size: size})
	faces[size] = f
	return f
}

// canvasRaster copies a 320x320 drawing into a raster without resampling.
func canvasRaster(img image.Image, orientation int) Raster {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Bounds() != image.Rect(0, 0, protocol.LCDWidth, protocol.LCDHeight) {
		return Normalize(img, Options{Orientation: orientation})
	}

	out := rotate(rgba, orientation)
	pix := make([]byte, len(out.Pix))
	copy(pix, out.Pix)
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xFF
	}
	return Raster(pix)
}

// ------------------------------------------------------------
// GaugeStream
// ------------------------------------------------------------

// GaugeStream is an endless source: every Next reads one sample and renders it.
type GaugeStream struct {
	gauge    *Gauge
	src      telemetry.Source
	tag      telemetry.Tag
	interval time.Duration
}

// NewGaugeStream binds a gauge to a telemetry tag. Interval is the frame delay.
func NewGaugeStream(g *Gauge, src telemetry.Source, tag telemetry.Tag, interval time.Duration) *GaugeStream {
	if interval <= 0 {
		interval = time.Second
	}
	return &GaugeStream{gauge: g, src: src, tag: tag, interval: interval}
}

// Next never returns io.EOF. Sensor failures wrap fault.ErrSensor.
func (s *GaugeStream) Next(ctx context.Context) (Frame, error) {
	sample, err := s.src.Read(ctx, s.tag)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Raster: s.gauge.Render(sample.Celsius, s.tag.String()),
		Delay:  s.interval,
	}, nil
}
