// internal/lcd/presenter_test.go
package lcd

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tamzrod/krakenctl/internal/bucket"
	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/frame"
	"github.com/tamzrod/krakenctl/internal/kraken"
	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/transport"
	"github.com/tamzrod/krakenctl/internal/transport/transporttest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rig struct {
	link  *transporttest.Link
	alloc *bucket.Allocator
	p     *Presenter

	mu     sync.Mutex
	sleeps []time.Duration
}

func newRig(t *testing.T, mode Mode) *rig {
	t.Helper()

	link := transporttest.New()
	dev, err := transport.New(link, transport.Config{AckTimeout: 20 * time.Millisecond, Retries: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	cooler, err := kraken.New(dev, nil)
	require.NoError(t, err)
	alloc, err := bucket.New(dev, nil)
	require.NoError(t, err)

	p, err := New(Config{Mode: mode}, alloc, cooler, nil)
	require.NoError(t, err)

	r := &rig{link: link, alloc: alloc, p: p}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		r.mu.Lock()
		r.sleeps = append(r.sleeps, d)
		r.mu.Unlock()
		return ctx.Err()
	}
	return r
}

// fillAllBut occupies every bucket except free.
func (r *rig) fillAllBut(free int) {
	for i := 0; i < bucket.Count; i++ {
		if i == free {
			continue
		}
		r.link.SetRegion(protocol.Region{Index: i, Exists: true, StartPage: uint16(i) * 401, SizePages: 401})
	}
}

func raster(c color.RGBA) frame.Raster {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, c)
	return frame.Normalize(img, frame.Options{})
}

func shownBuckets(link *transporttest.Link) []int {
	var out []int
	for _, e := range link.Commands(protocol.OpVisualMode) {
		out = append(out, int(e.Bytes[3]))
	}
	return out
}

func TestShow_AnimationWithOneFreeBucket(t *testing.T) {
	r := newRig(t, HostPlayback)
	r.fillAllBut(7)
	require.NoError(t, r.p.Prepare(context.Background(), false))

	anim, err := frame.NewAnimated([]frame.Frame{
		{Raster: raster(color.RGBA{R: 0xFF, A: 0xFF}), Delay: 100 * time.Millisecond},
		{Raster: raster(color.RGBA{G: 0xFF, A: 0xFF}), Delay: 150 * time.Millisecond},
		{Raster: raster(color.RGBA{B: 0xFF, A: 0xFF}), Delay: 100 * time.Millisecond},
	}, 1)
	require.NoError(t, err)

	require.NoError(t, r.p.Show(context.Background(), anim))

	triplets := r.link.Triplets()
	require.Len(t, triplets, 3)
	for _, tr := range triplets {
		assert.Equal(t, protocol.AssetStatic, tr.Type)
		assert.Equal(t, protocol.FrameSize, tr.Length)
	}
	assert.Empty(t, r.link.Violations())

	// first frame takes the free bucket; later frames never touch the one on screen
	assert.Equal(t, 7, triplets[0].Bucket)
	assert.NotEqual(t, triplets[0].Bucket, triplets[1].Bucket)
	assert.NotEqual(t, triplets[1].Bucket, triplets[2].Bucket)
	assert.Equal(t, []int{triplets[0].Bucket, triplets[1].Bucket, triplets[2].Bucket}, shownBuckets(r.link))

	// each frame stays at most its own delay, in order
	require.Len(t, r.sleeps, 3)
	for i, want := range []time.Duration{100, 150, 100} {
		assert.LessOrEqual(t, r.sleeps[i], want*time.Millisecond)
	}

	pr := r.p.Progress()
	assert.Equal(t, Committed, pr.Phase)
	assert.Equal(t, 2, pr.Frame)
	assert.Equal(t, triplets[2].Bucket, r.p.Shown())
	assert.True(t, r.alloc.Snapshot()[pr.Bucket].Protected)
}

func TestShow_StaticImage(t *testing.T) {
	r := newRig(t, HostPlayback)
	require.NoError(t, r.p.Prepare(context.Background(), true))

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	require.NoError(t, r.p.Show(context.Background(), frame.NewStatic(img, frame.Options{})))

	triplets := r.link.Triplets()
	require.Len(t, triplets, 1)
	assert.Equal(t, 0, triplets[0].Bucket)
	assert.Equal(t, []int{0}, shownBuckets(r.link))
	assert.Empty(t, r.sleeps)

	var shown []int
	r.p.cfg.OnShow = func(b int) { shown = append(shown, b) }
	require.NoError(t, r.p.Show(context.Background(), frame.NewStatic(img, frame.Options{})))
	assert.Equal(t, []int{1}, shown)
}

func TestShow_UploadFailureAbortsAsset(t *testing.T) {
	r := newRig(t, HostPlayback)
	require.NoError(t, r.p.Prepare(context.Background(), true))
	r.link.FailBulkAt(2) // payload of the first upload
	var reported []error
	r.p.cfg.OnFail = func(err error) { reported = append(reported, err) }

	anim, err := frame.NewAnimated([]frame.Frame{
		{Raster: raster(color.RGBA{A: 0xFF}), Delay: 100 * time.Millisecond},
		{Raster: raster(color.RGBA{A: 0xFF}), Delay: 100 * time.Millisecond},
	}, 1)
	require.NoError(t, err)

	err = r.p.Show(context.Background(), anim)
	assert.ErrorIs(t, err, fault.ErrShortWrite)
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], fault.ErrShortWrite)

	pr := r.p.Progress()
	assert.Equal(t, Failed, pr.Phase)
	assert.Equal(t, -1, pr.Bucket)
	assert.Empty(t, shownBuckets(r.link))
	assert.Empty(t, r.link.Triplets())
	for _, st := range r.alloc.Snapshot() {
		assert.False(t, st.Occupied)
	}
}

type flakySource struct {
	calls int
	r     frame.Raster
}

func (s *flakySource) Next(ctx context.Context) (frame.Frame, error) {
	s.calls++
	switch s.calls {
	case 1:
		return frame.Frame{}, fault.ErrSensor
	case 2:
		return frame.Frame{Raster: s.r, Delay: time.Second}, nil
	default:
		return frame.Frame{}, io.EOF
	}
}

func TestShow_SensorErrorSkipsFrame(t *testing.T) {
	r := newRig(t, HostPlayback)
	require.NoError(t, r.p.Prepare(context.Background(), true))

	src := &flakySource{r: raster(color.RGBA{A: 0xFF})}
	require.NoError(t, r.p.Show(context.Background(), src))

	assert.Len(t, r.link.Triplets(), 1)
	require.Len(t, r.sleeps, 2)
	assert.Equal(t, time.Second, r.sleeps[0]) // SensorRetry default
}

func TestPlay_DeviceNativeGIF(t *testing.T) {
	r := newRig(t, DeviceNative)
	require.NoError(t, r.p.Prepare(context.Background(), true))

	anim, err := frame.NewAnimated([]frame.Frame{
		{Raster: raster(color.RGBA{R: 0xFF, A: 0xFF}), Delay: 100 * time.Millisecond},
		{Raster: raster(color.RGBA{G: 0xFF, A: 0xFF}), Delay: 150 * time.Millisecond},
	}, 0)
	require.NoError(t, err)

	require.NoError(t, r.p.Play(context.Background(), anim))

	triplets := r.link.Triplets()
	require.Len(t, triplets, 1)
	assert.Equal(t, protocol.AssetGIF, triplets[0].Type)
	assert.Less(t, triplets[0].Length, protocol.FrameSize*2)
	assert.Equal(t, protocol.AssetGIF, r.alloc.Snapshot()[triplets[0].Bucket].Asset)
	assert.Empty(t, r.sleeps)
}

func TestShow_CancelStopsBetweenFrames(t *testing.T) {
	r := newRig(t, HostPlayback)
	require.NoError(t, r.p.Prepare(context.Background(), true))

	ctx, cancel := context.WithCancel(context.Background())
	r.p.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	anim, err := frame.NewAnimated([]frame.Frame{{Raster: raster(color.RGBA{A: 0xFF}), Delay: 100 * time.Millisecond}}, 0)
	require.NoError(t, err)

	err = r.p.Show(ctx, anim)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, r.link.Triplets(), 1)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("device")
	require.NoError(t, err)
	assert.Equal(t, DeviceNative, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, HostPlayback, m)

	_, err = ParseMode("stream")
	assert.Error(t, err)
}

type closedSource struct{ calls int }

func (s *closedSource) Next(ctx context.Context) (frame.Frame, error) {
	s.calls++
	return frame.Frame{}, fmt.Errorf("telemetry: read liquid: %w: %w", fault.ErrSensor, fault.ErrDeviceClosed)
}

func TestShow_ClosedDeviceSensorErrorFails(t *testing.T) {
	r := newRig(t, HostPlayback)
	require.NoError(t, r.p.Prepare(context.Background(), true))

	src := &closedSource{}
	err := r.p.Show(context.Background(), src)
	assert.ErrorIs(t, err, fault.ErrDeviceClosed)
	assert.Equal(t, 1, src.calls)
	assert.Empty(t, r.sleeps)
	assert.Equal(t, Failed, r.p.Progress().Phase)
}
