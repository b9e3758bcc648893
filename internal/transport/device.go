// internal/transport/device.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/protocol"
)

// Link is the raw I/O seam to one physical device.
// Implementations do not serialize; Device does.
type Link interface {
	// WriteReport sends one control-channel report.
	WriteReport(ctx context.Context, report []byte) error
	// ReadReport blocks for the next control-channel report or until ctx ends.
	ReadReport(ctx context.Context, buf []byte) (int, error)
	// WriteBulk writes on the bulk channel and reports how much was accepted.
	WriteBulk(ctx context.Context, data []byte) (int, error)
	Close() error
}

// Config is the exchange policy of a Device.
type Config struct {
	// AckTimeout bounds one wait for a reply.
	AckTimeout time.Duration
	// Retries is the number of re-sends after the first attempt.
	Retries int
	// BulkTimeout bounds one bulk write.
	BulkTimeout time.Duration
}

// DefaultConfig mirrors the 200ms reply window the device is known to honour.
func DefaultConfig() Config {
	return Config{
		AckTimeout:  200 * time.Millisecond,
		Retries:     2,
		BulkTimeout: 5 * time.Second,
	}
}

// Device is the exclusive handle to one cooler.
// All device-bound operations are totally ordered by a single-writer guard.
type Device struct {
	link Link
	cfg  Config
	log  *zap.Logger

	guard     chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New wraps a link. The device owns the link from here on.
func New(link Link, cfg Config, log *zap.Logger) (*Device, error) {
	if link == nil {
		return nil, errors.New("transport: link required")
	}
	if cfg.AckTimeout <= 0 {
		return nil, errors.New("transport: ack timeout must be > 0")
	}
	if cfg.Retries < 0 {
		return nil, errors.New("transport: retries must be >= 0")
	}
	if cfg.BulkTimeout <= 0 {
		cfg.BulkTimeout = DefaultConfig().BulkTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Device{
		link:  link,
		cfg:   cfg,
		log:   log,
		guard: make(chan struct{}, 1),
	}, nil
}

// Exclusive runs fn while holding the single-writer guard.
// Nothing else reaches the device until fn returns; bulk start/payload/end
// sequences MUST run inside one Exclusive call.
func (d *Device) Exclusive(ctx context.Context, fn func(tx *Tx) error) error {
	if d.closed.Load() {
		return fault.ErrDeviceClosed
	}

	select {
	case d.guard <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.guard }()

	// re-check: Close may have won the race while we waited
	if d.closed.Load() {
		return fault.ErrDeviceClosed
	}

	tx := &Tx{d: d}
	defer tx.finish()

	return fn(tx)
}

// SendCommand runs one command exchange under the guard.
func (d *Device) SendCommand(ctx context.Context, cmd protocol.Command) ([]byte, error) {
	var reply []byte
	err := d.Exclusive(ctx, func(tx *Tx) error {
		var err error
		reply, err = tx.SendCommand(ctx, cmd)
		return err
	})
	return reply, err
}

// WriteBulk runs one bulk write under the guard.
func (d *Device) WriteBulk(ctx context.Context, data []byte) error {
	return d.Exclusive(ctx, func(tx *Tx) error {
		return tx.WriteBulk(ctx, data)
	})
}

// Close releases the link. Every later operation fails with ErrDeviceClosed.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.closeErr = d.link.Close()
	})
	return d.closeErr
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	return d.closed.Load()
}

// ------------------------------------------------------------
// Tx: operations valid only inside Exclusive
// ------------------------------------------------------------

// Tx is the guard-holder's view of the device.
type Tx struct {
	d    *Device
	done bool
}

var errTxDone = errors.New("transport: transaction used after release")

func (tx *Tx) finish() { tx.done = true }

func (tx *Tx) check() error {
	if tx.done {
		return errTxDone
	}
	if tx.d.closed.Load() {
		return fault.ErrDeviceClosed
	}
	return nil
}

// SendCommand writes cmd and, if it expects a reply, waits for the matching
// ack. Unrelated reports are skipped. A silent device is re-sent the command
// up to Retries times before ErrAckTimeout.
func (tx *Tx) SendCommand(ctx context.Context, cmd protocol.Command) ([]byte, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}

	report, err := cmd.Encode()
	if err != nil {
		return nil, err
	}

	d := tx.d
	attempts := d.cfg.Retries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := d.link.WriteReport(ctx, report); err != nil {
			return nil, d.linkErr(fmt.Sprintf("write %s", cmd), err)
		}

		if !cmd.ExpectsAck() {
			return nil, nil
		}

		reply, err := tx.awaitAck(ctx, cmd)
		if err == nil {
			return reply, nil
		}
		if !errors.Is(err, fault.ErrAckTimeout) {
			return nil, err
		}

		d.log.Debug("ack timeout",
			zap.Stringer("cmd", cmd),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
		)
	}

	return nil, fmt.Errorf("transport: %s: no reply after %d attempts: %w", cmd, attempts, fault.ErrAckTimeout)
}

func (tx *Tx) awaitAck(ctx context.Context, cmd protocol.Command) ([]byte, error) {
	d := tx.d

	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.AckTimeout)
	defer cancel()

	buf := make([]byte, protocol.ReportLength)
	for {
		n, err := d.link.ReadReport(waitCtx, buf)
		if err != nil {
			// parent cancellation wins over the ack window
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if waitCtx.Err() != nil {
				return nil, fault.ErrAckTimeout
			}
			return nil, d.linkErr(fmt.Sprintf("read reply to %s", cmd), err)
		}

		if cmd.Matches(buf[:n]) {
			out := make([]byte, n)
			copy(out, buf[:n])
			return out, nil
		}

		if n >= 2 {
			d.log.Debug("skipping unrelated report",
				zap.Stringer("cmd", cmd),
				zap.Uint8("op", buf[0]),
				zap.Uint8("sub", buf[1]),
			)
		}
	}
}

// WriteBulk performs one full blocking write. Partial writes are fatal.
func (tx *Tx) WriteBulk(ctx context.Context, data []byte) error {
	if err := tx.check(); err != nil {
		return err
	}

	d := tx.d
	wctx, cancel := context.WithTimeout(ctx, d.cfg.BulkTimeout)
	defer cancel()

	n, err := d.link.WriteBulk(wctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return d.linkErr("bulk write", err)
	}
	if n != len(data) {
		return fmt.Errorf("transport: bulk wrote %d of %d bytes: %w", n, len(data), fault.ErrShortWrite)
	}
	return nil
}

// MaxDrain bounds the reports one Drain discards.
const MaxDrain = 64

// Drain discards queued reports until the channel is quiet or MaxDrain
// reports have been read.
func (tx *Tx) Drain(ctx context.Context, quiet time.Duration) error {
	if err := tx.check(); err != nil {
		return err
	}

	buf := make([]byte, protocol.ReportLength)
	for i := 0; i < MaxDrain; i++ {
		rctx, cancel := context.WithTimeout(ctx, quiet)
		_, err := tx.d.link.ReadReport(rctx, buf)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}
	tx.d.log.Debug("drain stopped at report limit", zap.Int("reports", MaxDrain))
	return nil
}

// ReadReport returns the next report of any kind. Used by diagnostics.
func (tx *Tx) ReadReport(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	buf := make([]byte, protocol.ReportLength)
	n, err := tx.d.link.ReadReport(rctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if rctx.Err() != nil {
			return nil, fault.ErrAckTimeout
		}
		return nil, tx.d.linkErr("read report", err)
	}
	return buf[:n], nil
}

func (d *Device) linkErr(op string, err error) error {
	if d.closed.Load() {
		return fmt.Errorf("transport: %s: %w", op, fault.ErrDeviceClosed)
	}
	return fmt.Errorf("transport: %s: %w", op, err)
}
