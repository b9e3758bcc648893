// internal/cooling/loop.go
package cooling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/telemetry"
)

// State is the loop phase within one tick.
type State int

const (
	Idle State = iota
	Sampling
	Computing
	Applying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	case Computing:
		return "computing"
	case Applying:
		return "applying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SpeedSetter issues a flat duty for one channel (kraken.Cooler satisfies it).
type SpeedSetter interface {
	SetFixedSpeed(ctx context.Context, ch protocol.Channel, duty int) error
}

// Config is the immutable loop configuration.
type Config struct {
	Source   telemetry.Tag
	Interval time.Duration
	Profile  Profile

	// OnTick, when set, receives every tick result (including failed ones).
	OnTick func(Result)
}

// Result is the outcome of one tick.
type Result struct {
	At       time.Time
	Sample   telemetry.Sample
	PumpDuty uint8
	FanDuty  uint8
	Err      error // sensor or command failure; the loop keeps going
}

// Loop samples, maps through the profile, and applies duties at a fixed cadence.
type Loop struct {
	cfg Config
	src telemetry.Source
	dev SpeedSetter
	log *zap.Logger

	mu    sync.Mutex
	state State
}

// New validates cfg. The profile is not re-read after this.
func New(cfg Config, src telemetry.Source, dev SpeedSetter, log *zap.Logger) (*Loop, error) {
	if src == nil {
		return nil, errors.New("cooling: telemetry source required")
	}
	if dev == nil {
		return nil, errors.New("cooling: speed setter required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("cooling: interval must be > 0")
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{cfg: cfg, src: src, dev: dev, log: log}, nil
}

// State reports the current phase.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) enter(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Tick performs exactly one Idle -> Sampling -> Computing -> Applying -> Idle cycle.
func (l *Loop) Tick(ctx context.Context) Result {
	defer l.enter(Idle)

	res := Result{At: time.Now()}

	l.enter(Sampling)
	sample, err := l.src.Read(ctx, l.cfg.Source)
	if err != nil {
		res.Err = err
		return res
	}
	res.Sample = sample

	l.enter(Computing)
	p := l.cfg.Profile
	if p.Pump != nil {
		res.PumpDuty = protocol.ChannelPump.Clamp(p.Pump.Duty(sample.Celsius))
	}
	if p.Fan != nil {
		res.FanDuty = protocol.ChannelFan.Clamp(p.Fan.Duty(sample.Celsius))
	}

	l.enter(Applying)
	var errs []error
	if p.Pump != nil {
		if err := l.apply(ctx, protocol.ChannelPump, res.PumpDuty); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Fan != nil {
		if err := l.apply(ctx, protocol.ChannelFan, res.FanDuty); err != nil {
			errs = append(errs, err)
		}
	}
	res.Err = errors.Join(errs...)
	return res
}

// apply retries once, then gives up until the next tick.
func (l *Loop) apply(ctx context.Context, ch protocol.Channel, duty uint8) error {
	err := l.dev.SetFixedSpeed(ctx, ch, int(duty))
	if err == nil || !fault.Recoverable(err) {
		return err
	}
	l.log.Debug("speed set failed, retrying", zap.Stringer("channel", ch), zap.Error(err))
	return l.dev.SetFixedSpeed(ctx, ch, int(duty))
}

// Run ticks immediately and then every Interval until ctx is done.
// A slow tick delays the next one; no tick is skipped.
// Only a non-recoverable error (closed device) ends the loop early.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		res := l.Tick(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.report(res)
		if res.Err != nil && !fault.Recoverable(res.Err) {
			return res.Err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (l *Loop) report(res Result) {
	if res.Err != nil {
		l.log.Warn("cooling tick failed",
			zap.Stringer("source", l.cfg.Source),
			zap.Uint16("code", fault.Code(res.Err)),
			zap.Error(res.Err),
		)
	} else {
		l.log.Debug("cooling tick",
			zap.Float64("temp_c", res.Sample.Celsius),
			zap.Uint8("pump", res.PumpDuty),
			zap.Uint8("fan", res.FanDuty),
		)
	}
	if l.cfg.OnTick != nil {
		l.cfg.OnTick(res)
	}
}
