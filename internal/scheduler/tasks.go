// internal/scheduler/tasks.go
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/cooling"
	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/frame"
	"github.com/tamzrod/krakenctl/internal/telemetry"
)

// Player delivers a frame source to the screen (lcd.Presenter).
type Player interface {
	Play(ctx context.Context, src frame.Source) error
}

// resetter is implemented by restartable sources.
type resetter interface {
	Reset()
}

// DisplayTask plays src. A recoverable failure aborts the current asset,
// waits retry, and restarts it from frame zero.
func DisplayTask(p Player, src frame.Source, retry time.Duration, log *zap.Logger) Task {
	if log == nil {
		log = zap.NewNop()
	}
	if retry <= 0 {
		retry = 2 * time.Second
	}

	return func(ctx context.Context) error {
		for {
			err := p.Play(ctx, src)
			if err == nil || ctx.Err() != nil {
				return nil
			}
			if !fault.Recoverable(err) {
				return err
			}

			log.Warn("display asset aborted, restarting",
				zap.Uint16("code", fault.Code(err)),
				zap.Error(err),
			)
			if r, ok := src.(resetter); ok {
				r.Reset()
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retry):
			}
		}
	}
}

// CoolingTask runs the control loop until cancellation or a closed device.
func CoolingTask(l *cooling.Loop) Task {
	return l.Run
}

// HostInfoPusher forwards host temperatures for the firmware's own screens (kraken.Cooler).
type HostInfoPusher interface {
	SetHostInfo(ctx context.Context, cpu, gpu float64) error
}

// HostInfoTask pushes the host CPU temperature every interval.
// Sensor and command failures are logged and skipped.
func HostInfoTask(dev HostInfoPusher, src telemetry.Source, interval time.Duration, log *zap.Logger) Task {
	if log == nil {
		log = zap.NewNop()
	}

	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			sample, err := src.Read(ctx, telemetry.HostCPU)
			if err == nil {
				err = dev.SetHostInfo(ctx, sample.Celsius, 0)
			}
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				if !fault.Recoverable(err) {
					return err
				}
				log.Debug("host info skipped", zap.Error(err))
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}
