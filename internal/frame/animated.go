// internal/frame/animated.go
package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"io"
	"os"
	"time"

	"golang.org/x/image/draw"

	"github.com/tamzrod/krakenctl/internal/fault"
)

// MaxFrames caps an animation; longer ones are evenly decimated.
const MaxFrames = 50

// ---- DELAY QUANTIZATION ----

const (
	// DelayQuantum is the timing resolution of animated playback (GIF centiseconds).
	DelayQuantum = 10 * time.Millisecond

	// MinDelay is the shortest honoured delay; anything below plays at DefaultDelay,
	// as browsers do for 0/1cs GIF frames.
	MinDelay     = 20 * time.Millisecond
	DefaultDelay = 100 * time.Millisecond
)

// QuantizeDelay rounds to the nearest DelayQuantum and replaces too-short delays.
func QuantizeDelay(d time.Duration) time.Duration {
	q := d.Round(DelayQuantum)
	if q < MinDelay {
		return DefaultDelay
	}
	return q
}

// Animated replays a fixed frame sequence.
// Repeat 0 loops forever; Repeat n plays the sequence n times then ends.
type Animated struct {
	frames []Frame
	repeat int

	pos   int
	plays int
}

var errNoFrames = errors.New("frame: animation has no frames")

// NewAnimated builds a sequence from ready rasters. Delays are quantized.
func NewAnimated(frames []Frame, repeat int) (*Animated, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%v: %w", errNoFrames, fault.ErrAssetDecode)
	}
	out := make([]Frame, len(frames))
	for i, f := range frames {
		out[i] = Frame{Raster: f.Raster, Delay: QuantizeDelay(f.Delay)}
	}
	return &Animated{frames: out, repeat: repeat}, nil
}

// LoadAnimated decodes an animated GIF file.
func LoadAnimated(path string, opts Options, repeat int) (*Animated, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("frame: open %s: %v: %w", path, err, fault.ErrAssetDecode)
	}
	defer f.Close()

	return DecodeAnimated(f, opts, repeat)
}

// DecodeAnimated composites every GIF frame (honouring disposal), normalizes it,
// and decimates to MaxFrames. Delays of dropped frames are folded into the
// previous kept frame so total duration is preserved.
func DecodeAnimated(r io.Reader, opts Options, repeat int) (*Animated, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, fmt.Errorf("frame: decode gif: %v: %w", err, fault.ErrAssetDecode)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("%v: %w", errNoFrames, fault.ErrAssetDecode)
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}

	composites := composite(g, bounds)

	step := 1
	if len(composites) > MaxFrames {
		step = (len(composites) + MaxFrames - 1) / MaxFrames
	}

	var frames []Frame
	for i, c := range composites {
		delay := centis(g, i)
		if i%step != 0 || len(frames) == MaxFrames {
			if len(frames) > 0 {
				frames[len(frames)-1].Delay += delay
			}
			continue
		}
		frames = append(frames, Frame{Raster: Normalize(c, opts), Delay: delay})
	}

	return NewAnimated(frames, repeat)
}

func centis(g *gif.GIF, i int) time.Duration {
	if i >= len(g.Delay) {
		return 0
	}
	return time.Duration(g.Delay[i]) * DelayQuantum
}

// composite renders each GIF frame onto the logical screen.
func composite(g *gif.GIF, bounds image.Rectangle) []*image.RGBA {
	canvas := image.NewRGBA(bounds)
	out := make([]*image.RGBA, 0, len(g.Image))

	for i, pm := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var saved *image.RGBA
		if disposal == gif.DisposalPrevious {
			saved = cloneRGBA(canvas)
		}

		draw.Draw(canvas, pm.Bounds(), pm, pm.Bounds().Min, draw.Over)
		out = append(out, cloneRGBA(canvas))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, pm.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = saved
		}
	}
	return out
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// Next yields frames in order, looping per Repeat.
func (a *Animated) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if a.pos == len(a.frames) {
		a.plays++
		if a.repeat > 0 && a.plays >= a.repeat {
			return Frame{}, io.EOF
		}
		a.pos = 0
	}
	f := a.frames[a.pos]
	a.pos++
	return f, nil
}

// Reset restarts playback from frame zero.
func (a *Animated) Reset() {
	a.pos = 0
	a.plays = 0
}

// Len is the number of frames in one pass.
func (a *Animated) Len() int { return len(a.frames) }

// Frames returns one pass of the sequence.
func (a *Animated) Frames() []Frame {
	out := make([]Frame, len(a.frames))
	copy(out, a.frames)
	return out
}

// EncodeGIF re-encodes the normalized sequence as a GIF, the form the device
// plays natively from a single bucket. It loops forever unless a finite
// repeat count was given.
func (a *Animated) EncodeGIF() ([]byte, error) {
	g := &gif.GIF{LoopCount: loopCount(a.repeat)}

	for _, f := range a.frames {
		src := f.Raster.Image()
		pm := image.NewPaletted(src.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(pm, pm.Bounds(), src, image.Point{})

		g.Image = append(g.Image, pm)
		g.Delay = append(g.Delay, int(f.Delay/DelayQuantum))
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, fmt.Errorf("frame: encode gif: %w", err)
	}
	return buf.Bytes(), nil
}

// loopCount maps plays to the NETSCAPE loop field: 0 loops forever, -1 plays
// once, n replays n times after the first pass.
func loopCount(repeat int) int {
	switch {
	case repeat <= 0:
		return 0
	case repeat == 1:
		return -1
	default:
		return repeat - 1
	}
}
