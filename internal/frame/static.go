// internal/frame/static.go
package frame

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"

	// decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/tamzrod/krakenctl/internal/fault"
)

// Static yields exactly one frame.
type Static struct {
	frame Frame
	done  bool
}

// LoadStatic decodes and normalizes an image file.
// A GIF contributes its first frame only.
func LoadStatic(path string, opts Options) (*Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("frame: open %s: %v: %w", path, err, fault.ErrAssetDecode)
	}
	defer f.Close()

	return DecodeStatic(f, opts)
}

// DecodeStatic is LoadStatic over a reader.
func DecodeStatic(r io.Reader, opts Options) (*Static, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("frame: decode: %v: %w", err, fault.ErrAssetDecode)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("frame: %s image is empty: %w", format, fault.ErrAssetDecode)
	}
	return NewStatic(img, opts), nil
}

// NewStatic normalizes an already decoded image.
func NewStatic(img image.Image, opts Options) *Static {
	return &Static{frame: Frame{Raster: Normalize(img, opts)}}
}

// Next returns the frame once, then io.EOF.
func (s *Static) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.done {
		return Frame{}, io.EOF
	}
	s.done = true
	return s.frame, nil
}

// Reset makes the frame available again.
func (s *Static) Reset() { s.done = false }

// Raster returns the single frame without consuming it.
func (s *Static) Raster() Raster { return s.frame.Raster }
