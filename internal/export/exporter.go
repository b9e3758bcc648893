// internal/export/exporter.go
package export

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/cooling"
	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/status"
	"github.com/tamzrod/krakenctl/internal/telemetry"
)

// Fault origins tracked separately so one healthy task does not mask another.
const (
	originCooling = "cooling"
	originDisplay = "display"
)

// Config tunes the exporter.
type Config struct {
	// Tick is the seconds_in_error cadence. Default 1s.
	Tick time.Duration
	// StaleAfter marks the block stale when no cooling result arrived for this long.
	// Zero disables staleness.
	StaleAfter time.Duration
}

// Exporter owns the status snapshot. Producers report through Cooling, Shown
// and Failed from any goroutine; Run delivers changes and the 1 Hz counter.
type Exporter struct {
	cfg Config
	w   StatusWriter
	log *zap.Logger
	now func() time.Time

	mu       sync.Mutex
	snap     status.Snapshot
	faults   map[string]uint16
	lastTick time.Time
	changed  bool

	wake chan struct{}
}

// New builds an exporter writing through w.
func New(cfg Config, w StatusWriter, log *zap.Logger) (*Exporter, error) {
	if w == nil {
		return nil, errors.New("export: status writer required")
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{
		cfg:    cfg,
		w:      w,
		log:    log,
		now:    time.Now,
		snap:   status.Boot(),
		faults: make(map[string]uint16),
		wake:   make(chan struct{}, 1),
	}, nil
}

// Snapshot returns the current state.
func (e *Exporter) Snapshot() status.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// Cooling records one cooling tick (cooling.Config.OnTick).
func (e *Exporter) Cooling(res cooling.Result) {
	e.update(func() bool {
		e.lastTick = e.now()
		if res.Err != nil {
			return e.fail(originCooling, res.Err)
		}
		changed := e.clear(originCooling)
		if res.Sample.Tag == telemetry.Liquid {
			changed = e.snap.SetLiquid(res.Sample.Celsius) || changed
		}
		return e.snap.SetDuties(res.PumpDuty, res.FanDuty) || changed
	})
}

// Shown records the bucket on screen (lcd.Config.OnShow).
func (e *Exporter) Shown(bucket int) {
	e.update(func() bool {
		changed := e.clear(originDisplay)
		return e.snap.SetBucket(bucket) || changed
	})
}

// Failed records an aborted display asset (lcd.Config.OnFail).
func (e *Exporter) Failed(err error) {
	e.update(func() bool { return e.fail(originDisplay, err) })
}

// ---- state (callers hold mu) ----

func (e *Exporter) fail(origin string, err error) bool {
	code := fault.Code(err)
	e.faults[origin] = code

	health := status.HealthError
	if errors.Is(err, fault.ErrDeviceClosed) {
		health = status.HealthDisabled
	}
	return e.snap.Fail(code, health)
}

func (e *Exporter) clear(origin string) bool {
	if _, ok := e.faults[origin]; !ok && e.snap.Health != status.HealthUnknown && e.snap.Health != status.HealthStale {
		return false
	}
	delete(e.faults, origin)

	// another origin still failing keeps its code
	for _, code := range e.faults {
		return e.snap.Fail(code, status.HealthError)
	}
	return e.snap.Recover()
}

func (e *Exporter) update(fn func() bool) {
	e.mu.Lock()
	changed := fn()
	e.changed = e.changed || changed
	e.mu.Unlock()

	if changed {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
}

// ---- delivery loop ----

// Run writes the full block on start, every change as it happens, and
// advances seconds_in_error at 1 Hz while not OK. Write failures are logged;
// the writer re-asserts the block on the next success. Returns nil on cancel.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	// Full block write (identity re-assert) on start.
	e.deliver("start", true)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-e.wake:
			e.deliver("change", false)

		case <-ticker.C:
			e.mu.Lock()
			changed := e.snap.Tick()
			if e.cfg.StaleAfter > 0 && !e.lastTick.IsZero() && e.now().Sub(e.lastTick) > e.cfg.StaleAfter {
				changed = e.snap.Stale() || changed
			}
			e.changed = e.changed || changed
			e.mu.Unlock()

			e.deliver("tick", false)
		}
	}
}

func (e *Exporter) deliver(reason string, force bool) {
	e.mu.Lock()
	if !force && !e.changed {
		e.mu.Unlock()
		return
	}
	snap := e.snap
	e.changed = false
	e.mu.Unlock()

	if err := e.w.WriteStatus(snap); err != nil {
		e.log.Warn("status write failed", zap.String("reason", reason), zap.Error(err))
		e.mu.Lock()
		e.changed = true
		e.mu.Unlock()
	}
}
