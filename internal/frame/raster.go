// internal/frame/raster.go
package frame

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"

	"github.com/tamzrod/krakenctl/internal/protocol"
)

// Raster is one device-native frame: 320x320 RGBA, alpha always 0xFF.
type Raster []byte

// Frame is a raster plus how long it stays on screen.
type Frame struct {
	Raster Raster
	Delay  time.Duration
}

// Source yields frames lazily. io.EOF marks the end of a finite source.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// Fit is the resize policy.
type Fit int

const (
	// FitStretch scales each axis independently to 320x320.
	FitStretch Fit = iota
	// FitLetterbox keeps the aspect ratio and pads with the background.
	FitLetterbox
)

// ParseFit accepts "stretch" (default for "") or "letterbox".
func ParseFit(s string) (Fit, error) {
	switch s {
	case "", "stretch":
		return FitStretch, nil
	case "letterbox":
		return FitLetterbox, nil
	default:
		return 0, fmt.Errorf("frame: unknown fit %q", s)
	}
}

// Options control normalization of decoded images.
type Options struct {
	Fit Fit
	// Orientation is the LCD rotation in quarter turns clockwise (0-3).
	Orientation int
	// Background fills letterbox bars and replaces transparency.
	Background color.RGBA
}

// Normalize renders any image into the device raster format.
//
// Policy (fixed, deterministic): flatten onto an opaque background,
// Catmull-Rom resample to 320x320 per Fit, then rotate by Orientation.
func Normalize(src image.Image, opts Options) Raster {
	bg := opts.Background
	bg.A = 0xFF

	canvas := image.NewRGBA(image.Rect(0, 0, protocol.LCDWidth, protocol.LCDHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	dst := canvas.Bounds()
	if opts.Fit == FitLetterbox {
		dst = letterbox(src.Bounds(), dst)
	}
	draw.CatmullRom.Scale(canvas, dst, src, src.Bounds(), draw.Over, nil)

	out := rotate(canvas, opts.Orientation)

	// the static asset type does not composite alpha
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xFF
	}
	return Raster(out.Pix)
}

// Image views a raster as an image (shares memory).
func (r Raster) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    r,
		Stride: protocol.LCDWidth * protocol.BytesPerPixel,
		Rect:   image.Rect(0, 0, protocol.LCDWidth, protocol.LCDHeight),
	}
}

func letterbox(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 {
		return dst
	}
	dw, dh := dst.Dx(), dst.Dy()

	w, h := dw, sh*dw/sw
	if h > dh {
		w, h = sw*dh/sh, dh
	}
	x := dst.Min.X + (dw-w)/2
	y := dst.Min.Y + (dh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// rotate turns a square canvas by quarter turns clockwise.
func rotate(src *image.RGBA, quarters int) *image.RGBA {
	quarters = ((quarters % 4) + 4) % 4
	if quarters == 0 {
		return src
	}

	n := src.Bounds().Dx()
	dst := image.NewRGBA(src.Bounds())
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			var dx, dy int
			switch quarters {
			case 1:
				dx, dy = n-1-y, x
			case 2:
				dx, dy = n-1-x, n-1-y
			case 3:
				dx, dy = y, n-1-x
			}
			si := src.PixOffset(x, y)
			di := dst.PixOffset(dx, dy)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
