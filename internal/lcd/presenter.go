// internal/lcd/presenter.go
package lcd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/bucket"
	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/frame"
	"github.com/tamzrod/krakenctl/internal/protocol"
)

// Mode selects how multi-frame assets reach the screen.
type Mode int

const (
	// HostPlayback uploads every frame as a static asset and switches the
	// display to it, paced by the host.
	HostPlayback Mode = iota
	// DeviceNative re-encodes an animation as one GIF asset the device loops itself.
	DeviceNative
)

// ParseMode accepts "host" (default for "") or "device".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "host":
		return HostPlayback, nil
	case "device":
		return DeviceNative, nil
	default:
		return 0, fmt.Errorf("lcd: unknown animation mode %q", s)
	}
}

// Allocator is the bucket store the presenter writes into (bucket.Allocator).
type Allocator interface {
	List(ctx context.Context) ([bucket.Count]bucket.State, error)
	Acquire(hint *int) (int, error)
	UploadAsset(ctx context.Context, index int, t protocol.AssetType, payload []byte) error
	Protect(index int, on bool)
	ClearAll(ctx context.Context) error
}

// Display switches the screen to a bucket (kraken.Cooler).
type Display interface {
	ShowBucket(ctx context.Context, index int) error
}

// ---- per-asset state machine ----

// Phase is where the current asset is: Pending -> Uploading(i) -> Committed.
type Phase int

const (
	Pending Phase = iota
	Uploading
	Committed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Uploading:
		return "uploading"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Progress is a snapshot of the presenter.
type Progress struct {
	Phase  Phase
	Frame  int // frame being uploaded or last committed
	Bucket int // bucket on screen, -1 when unknown
	Err    error
}

// Config is the presenter configuration.
type Config struct {
	Mode Mode
	// SensorRetry is the wait after a failed telemetry read before the next frame.
	SensorRetry time.Duration
	// OnShow is called after the display switched to a bucket.
	OnShow func(bucket int)
	// OnFail is called when an asset is aborted.
	OnFail func(err error)
}

// Presenter delivers frame sources to the LCD.
type Presenter struct {
	cfg   Config
	alloc Allocator
	disp  Display
	log   *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	progress Progress
	spare    int // previously shown bucket, preferred for the next upload
}

// New builds a presenter.
func New(cfg Config, alloc Allocator, disp Display, log *zap.Logger) (*Presenter, error) {
	if alloc == nil {
		return nil, errors.New("lcd: allocator required")
	}
	if disp == nil {
		return nil, errors.New("lcd: display required")
	}
	if cfg.SensorRetry <= 0 {
		cfg.SensorRetry = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Presenter{
		cfg:      cfg,
		alloc:    alloc,
		disp:     disp,
		log:      log,
		sleep:    sleepCtx,
		progress: Progress{Bucket: -1},
		spare:    -1,
	}, nil
}

// Progress returns the current snapshot.
func (p *Presenter) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Shown is the bucket on screen, -1 when none was set by this presenter.
func (p *Presenter) Shown() int {
	return p.Progress().Bucket
}

func (p *Presenter) set(fn func(pr *Progress)) {
	p.mu.Lock()
	fn(&p.progress)
	p.mu.Unlock()
}

// Prepare refreshes the bucket mirror, or deletes every bucket when wipe is set.
func (p *Presenter) Prepare(ctx context.Context, wipe bool) error {
	if wipe {
		return p.alloc.ClearAll(ctx)
	}
	_, err := p.alloc.List(ctx)
	return err
}

// Show plays src until it ends (io.EOF) or ctx is done.
//
// Each frame is uploaded to a bucket that is not on screen, then the display
// switches to it and the frame stays for its delay. An upload failure aborts
// the asset; the previous frame stays visible. Sensor failures of live sources
// skip one frame.
func (p *Presenter) Show(ctx context.Context, src frame.Source) error {
	p.set(func(pr *Progress) { pr.Phase, pr.Frame, pr.Err = Pending, 0, nil })

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !fault.Recoverable(err) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return p.fail(i, err)
		}
		if errors.Is(err, fault.ErrSensor) {
			p.log.Warn("frame skipped", zap.Error(err))
			if err := p.sleep(ctx, p.cfg.SensorRetry); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return p.fail(i, err)
		}

		started := time.Now()
		if err := p.present(ctx, i, protocol.AssetStatic, f.Raster); err != nil {
			return p.fail(i, err)
		}

		if f.Delay > 0 {
			if err := p.sleep(ctx, f.Delay-time.Since(started)); err != nil {
				return err
			}
		}
	}
}

// Play picks the delivery for src: in DeviceNative mode animations go out as
// one GIF asset, everything else is host-paced.
func (p *Presenter) Play(ctx context.Context, src frame.Source) error {
	if a, ok := src.(*frame.Animated); ok && p.cfg.Mode == DeviceNative {
		return p.ShowNative(ctx, a)
	}
	return p.Show(ctx, src)
}

// ShowNative uploads the whole animation as one device-played GIF.
func (p *Presenter) ShowNative(ctx context.Context, a *frame.Animated) error {
	p.set(func(pr *Progress) { pr.Phase, pr.Frame, pr.Err = Pending, 0, nil })

	data, err := a.EncodeGIF()
	if err != nil {
		return p.fail(0, fmt.Errorf("%v: %w", err, fault.ErrAssetDecode))
	}
	if err := p.present(ctx, 0, protocol.AssetGIF, data); err != nil {
		return p.fail(0, err)
	}
	return nil
}

// present uploads one asset and switches the display to it.
func (p *Presenter) present(ctx context.Context, i int, t protocol.AssetType, payload []byte) error {
	p.mu.Lock()
	hint := p.spare
	p.mu.Unlock()

	var hp *int
	if hint >= 0 {
		hp = &hint
	}
	idx, err := p.alloc.Acquire(hp)
	if err != nil {
		return err
	}

	p.set(func(pr *Progress) { pr.Phase, pr.Frame = Uploading, i })

	if err := p.alloc.UploadAsset(ctx, idx, t, payload); err != nil {
		return err
	}
	if err := p.disp.ShowBucket(ctx, idx); err != nil {
		return fmt.Errorf("lcd: show bucket %d: %w", idx, err)
	}

	p.mu.Lock()
	prev := p.progress.Bucket
	p.alloc.Protect(idx, true)
	if prev >= 0 && prev != idx {
		p.alloc.Protect(prev, false)
		p.spare = prev
	}
	p.progress.Phase = Committed
	p.progress.Bucket = idx
	p.mu.Unlock()

	p.log.Debug("frame shown", zap.Int("frame", i), zap.Int("bucket", idx), zap.Stringer("asset", t))
	if p.cfg.OnShow != nil {
		p.cfg.OnShow(idx)
	}
	return nil
}

func (p *Presenter) fail(i int, err error) error {
	p.set(func(pr *Progress) { pr.Phase, pr.Frame, pr.Err = Failed, i, err })
	err = fmt.Errorf("lcd: frame %d: %w", i, err)
	if p.cfg.OnFail != nil {
		p.cfg.OnFail(err)
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
