// cmd/krakenctl/build.go
package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/cooling"
	"github.com/tamzrod/krakenctl/internal/export"
	"github.com/tamzrod/krakenctl/internal/frame"
	"github.com/tamzrod/krakenctl/internal/scheduler"
	"github.com/tamzrod/krakenctl/internal/telemetry"
)

// Builders turning the normalized config into runtime components.

// telemetrySource routes liquid reads to the cooler and CPU reads to the host,
// shared so that one tick polls each sensor once.
func telemetrySource(s *session, window time.Duration) *telemetry.Shared {
	return telemetry.NewShared(telemetry.Router{
		telemetry.Liquid:  telemetry.NewCoolant(s.cooler),
		telemetry.HostCPU: telemetry.NewHost(nil),
	}, window)
}

// coolingSettings are the effective cooling options after flag overrides.
type coolingSettings struct {
	profile  string
	source   string
	interval time.Duration
}

func (c coolingSettings) loop(s *session, src telemetry.Source, onTick func(cooling.Result)) (*cooling.Loop, error) {
	p, err := cfg.ResolveProfile(c.profile)
	if err != nil {
		return nil, err
	}
	tag, err := telemetry.ParseTag(c.source)
	if err != nil {
		return nil, err
	}
	return cooling.New(cooling.Config{
		Source:   tag,
		Interval: c.interval,
		Profile:  p,
		OnTick:   onTick,
	}, src, s.cooler, s.log.Named("cooling"))
}

// exporter dials the status endpoint. It returns nil, nil when export is off.
func exporter(log *zap.Logger, staleAfter time.Duration) (*export.Exporter, func(), error) {
	e := cfg.Export
	if e.Endpoint == "" {
		return nil, func() {}, nil
	}

	cli, err := export.Dial(export.ClientConfig{
		Endpoint: e.Endpoint,
		UnitID:   e.UnitID,
		Timeout:  e.Timeout(),
		BaudRate: e.BaudRate,
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = cli.Close() }

	w, err := export.NewStatusWriter(cli, *e.Slot, e.DeviceName)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	ex, err := export.New(export.Config{StaleAfter: staleAfter}, w, log.Named("export"))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return ex, closeFn, nil
}

// frameOptions maps the display settings onto the normalizer.
func frameOptions() (frame.Options, error) {
	fit, err := frame.ParseFit(cfg.Display.Fit)
	if err != nil {
		return frame.Options{}, err
	}
	return frame.Options{Fit: fit, Orientation: cfg.Display.Quarters()}, nil
}

// displaySource builds the configured frame source. A nil source means the
// display is left alone.
func displaySource(src telemetry.Source) (frame.Source, error) {
	v := cfg.Display
	opts, err := frameOptions()
	if err != nil {
		return nil, err
	}

	switch v.Mode {
	case "none":
		return nil, nil
	case "image":
		return frame.LoadStatic(v.ImagePath, opts)
	case "gif":
		return frame.LoadAnimated(v.GIFPath, opts, v.Repeat)
	default:
		return gaugeSource(src, v.Source)
	}
}

func gaugeSource(src telemetry.Source, source string) (*frame.GaugeStream, error) {
	tag, err := telemetry.ParseTag(source)
	if err != nil {
		return nil, err
	}
	g, err := frame.NewGauge(cfg.Display.Gauge.Style(), cfg.Display.Quarters())
	if err != nil {
		return nil, err
	}
	return frame.NewGaugeStream(g, src, tag, cfg.Display.Interval()), nil
}

// addExport registers the exporter task when enabled.
func addExport(s *scheduler.Scheduler, ex *export.Exporter) {
	if ex != nil {
		s.Add("export", ex.Run)
	}
}

// parseDuty reads a percentage argument.
func parseDuty(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(arg, "%"))
	if err != nil || n < 0 || n > 100 {
		return 0, fmt.Errorf("duty %q must be 0-100", arg)
	}
	return n, nil
}
