// internal/kraken/cooler.go
package kraken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/transport"
)

// Cooler is the command-level view of one Kraken.
// Every method is one guarded exchange; none of them holds the guard across calls.
type Cooler struct {
	dev *transport.Device
	log *zap.Logger

	// settle delays between init steps; zeroed in tests
	settle time.Duration
	fw     protocol.Firmware
}

// New wraps an open device.
func New(dev *transport.Device, log *zap.Logger) (*Cooler, error) {
	if dev == nil {
		return nil, errors.New("kraken: device required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cooler{dev: dev, log: log, settle: 50 * time.Millisecond}, nil
}

// Device exposes the guarded handle for bulk work.
func (c *Cooler) Device() *transport.Device { return c.dev }

// SetSettle overrides the pause between init steps.
func (c *Cooler) SetSettle(d time.Duration) { c.settle = d }

// Firmware is the version read by Initialize (zero before).
func (c *Cooler) Firmware() protocol.Firmware { return c.fw }

// Initialize flushes stale reports, reads the firmware version and starts
// periodic status reporting. A silent firmware query is not fatal.
func (c *Cooler) Initialize(ctx context.Context) (protocol.Firmware, error) {
	err := c.dev.Exclusive(ctx, func(tx *transport.Tx) error {
		if err := tx.Drain(ctx, time.Millisecond); err != nil {
			return err
		}

		reply, err := tx.SendCommand(ctx, protocol.FirmwareInfo())
		switch {
		case err == nil:
			fw, perr := protocol.ParseFirmware(reply)
			if perr != nil {
				return perr
			}
			c.fw = fw
		case errors.Is(err, fault.ErrAckTimeout):
			c.log.Warn("firmware version unavailable", zap.Error(err))
		default:
			return err
		}

		steps := []protocol.Command{
			protocol.LEDInfo(),
			protocol.InitInterval(0x01),
			protocol.InitComplete(),
		}
		for _, cmd := range steps {
			if err := pause(ctx, c.settle); err != nil {
				return err
			}
			if _, err := tx.SendCommand(ctx, cmd); err != nil {
				return fmt.Errorf("kraken: init %s: %w", cmd.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return protocol.Firmware{}, err
	}

	c.log.Info("device initialized", zap.Stringer("firmware", c.fw))
	return c.fw, nil
}

// Status requests and decodes one status report.
func (c *Cooler) Status(ctx context.Context) (protocol.Status, error) {
	reply, err := c.dev.SendCommand(ctx, protocol.RequestStatus())
	if err != nil {
		return protocol.Status{}, err
	}
	return protocol.ParseStatus(reply)
}

// SetFixedSpeed sets a flat duty for one channel (clamped to channel limits).
func (c *Cooler) SetFixedSpeed(ctx context.Context, ch protocol.Channel, duty int) error {
	_, err := c.dev.SendCommand(ctx, protocol.FixedSpeed(ch, duty))
	if err != nil {
		return fmt.Errorf("kraken: set %s duty %d: %w", ch, duty, err)
	}
	return nil
}

// SetSpeedCurve uploads a 40-point device-side curve.
func (c *Cooler) SetSpeedCurve(ctx context.Context, ch protocol.Channel, duties []uint8) error {
	cmd, err := protocol.SpeedCurve(ch, duties)
	if err != nil {
		return err
	}
	if _, err := c.dev.SendCommand(ctx, cmd); err != nil {
		return fmt.Errorf("kraken: set %s curve: %w", ch, err)
	}
	return nil
}

// LCDInfo reads brightness and orientation.
func (c *Cooler) LCDInfo(ctx context.Context) (protocol.LCDState, error) {
	reply, err := c.dev.SendCommand(ctx, protocol.LCDInfo())
	if err != nil {
		return protocol.LCDState{}, err
	}
	return protocol.ParseLCDInfo(reply)
}

// SetLCD writes brightness and orientation together (the device has no
// separate commands).
func (c *Cooler) SetLCD(ctx context.Context, brightness, orientation uint8) error {
	cmd, err := protocol.LCDConfig(brightness, orientation)
	if err != nil {
		return err
	}
	_, err = c.dev.SendCommand(ctx, cmd)
	return err
}

// SetBrightness keeps the current orientation.
func (c *Cooler) SetBrightness(ctx context.Context, brightness uint8) error {
	st, err := c.LCDInfo(ctx)
	if err != nil {
		return err
	}
	return c.SetLCD(ctx, brightness, st.Orientation)
}

// SetOrientation keeps the current brightness.
func (c *Cooler) SetOrientation(ctx context.Context, orientation uint8) error {
	st, err := c.LCDInfo(ctx)
	if err != nil {
		return err
	}
	return c.SetLCD(ctx, st.Brightness, orientation)
}

// SetVisualMode switches the LCD content source.
func (c *Cooler) SetVisualMode(ctx context.Context, mode, index uint8) error {
	_, err := c.dev.SendCommand(ctx, protocol.VisualMode(mode, index))
	return err
}

// ShowBucket displays the asset stored in a bucket.
func (c *Cooler) ShowBucket(ctx context.Context, index int) error {
	return c.SetVisualMode(ctx, protocol.ModeBucket, uint8(index))
}

// SetHostInfo pushes host temperatures for the firmware CPU/GPU screens.
func (c *Cooler) SetHostInfo(ctx context.Context, cpu, gpu float64) error {
	_, err := c.dev.SendCommand(ctx, protocol.HostInfo(clampByte(cpu), clampByte(gpu)))
	return err
}

// RawReads returns up to n reports exactly as the device sends them.
func (c *Cooler) RawReads(ctx context.Context, n int, timeout time.Duration) ([][]byte, error) {
	var out [][]byte
	err := c.dev.Exclusive(ctx, func(tx *transport.Tx) error {
		if _, err := tx.SendCommand(ctx, protocol.RequestStatus()); err != nil && !errors.Is(err, fault.ErrAckTimeout) {
			return err
		}
		for i := 0; i < n; i++ {
			r, err := tx.ReadReport(ctx, timeout)
			if errors.Is(err, fault.ErrAckTimeout) {
				return nil
			}
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// LCDInfoRaw returns the undecoded 31 01 reply.
func (c *Cooler) LCDInfoRaw(ctx context.Context) ([]byte, error) {
	return c.dev.SendCommand(ctx, protocol.LCDInfo())
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
