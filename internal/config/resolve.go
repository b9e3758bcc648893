// internal/config/resolve.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tamzrod/krakenctl/internal/cooling"
	"github.com/tamzrod/krakenctl/internal/frame"
	"github.com/tamzrod/krakenctl/internal/transport"
)

// Resolvers turn validated, normalized config into runtime values.

// ResolveProfile looks up a user profile first, then the built-in presets.
func (cfg *Config) ResolveProfile(name string) (cooling.Profile, error) {
	if p, ok := cfg.Cooling.Profiles[name]; ok {
		return p.resolve(name)
	}
	return cooling.ParseProfile(name)
}

func (p ProfileConfig) resolve(name string) (cooling.Profile, error) {
	out := cooling.Profile{Name: name}

	var err error
	if p.Pump != nil {
		if out.Pump, err = p.Pump.resolve(); err != nil {
			return cooling.Profile{}, fmt.Errorf("pump: %w", err)
		}
	}
	if p.Fan != nil {
		if out.Fan, err = p.Fan.resolve(); err != nil {
			return cooling.Profile{}, fmt.Errorf("fan: %w", err)
		}
	}
	if err := out.Validate(); err != nil {
		return cooling.Profile{}, err
	}
	return out, nil
}

func (c ChannelConfig) resolve() (cooling.Curve, error) {
	set := 0
	if c.Fixed != nil {
		set++
	}
	if c.Preset != "" {
		set++
	}
	if len(c.Curve) > 0 {
		set++
	}
	if set != 1 {
		return nil, errors.New("exactly one of fixed, preset or curve is required")
	}

	switch {
	case c.Fixed != nil:
		if *c.Fixed < 0 || *c.Fixed > 100 {
			return nil, fmt.Errorf("fixed duty %d outside 0-100", *c.Fixed)
		}
		return cooling.Flat(*c.Fixed), nil
	case c.Preset != "":
		return cooling.LookupCurve(c.Preset)
	default:
		curve := cooling.Curve(c.Curve)
		return curve, curve.Validate()
	}
}

// Style merges the overrides onto the default gauge style.
func (g GaugeConfig) Style() frame.GaugeStyle {
	s := frame.DefaultGaugeStyle()
	if g.StartColor != "" {
		s.StartColor = g.StartColor
	}
	if g.EndColor != "" {
		s.EndColor = g.EndColor
	}
	if g.BackgroundColor != "" {
		s.BackgroundColor = g.BackgroundColor
	}
	if g.Radius != 0 {
		s.Radius = g.Radius
	}
	if g.Thickness != 0 {
		s.Thickness = g.Thickness
	}
	if g.StartAngle != nil {
		s.StartAngle = *g.StartAngle
	}
	if g.SweepAngle != 0 {
		s.SweepAngle = g.SweepAngle
	}
	if g.Min != nil {
		s.Min = *g.Min
	}
	if g.Max != nil {
		s.Max = *g.Max
	}
	if g.Interpolation != "" {
		s.Interpolation = strings.ToLower(g.Interpolation)
	}
	if g.ShowValue != nil {
		s.ShowValue = *g.ShowValue
	}
	if g.TrackDim != nil {
		s.TrackDim = *g.TrackDim
	}
	return s
}

// Transport returns the device timing settings.
func (d DeviceConfig) Transport() transport.Config {
	tc := transport.DefaultConfig()
	if d.AckTimeoutMs > 0 {
		tc.AckTimeout = ms(d.AckTimeoutMs)
	}
	if d.Retries != nil {
		tc.Retries = *d.Retries
	}
	if d.BulkTimeoutMs > 0 {
		tc.BulkTimeout = ms(d.BulkTimeoutMs)
	}
	return tc
}

// USB returns the USB link settings.
func (d DeviceConfig) USB() transport.USBConfig {
	uc := transport.DefaultUSBConfig()
	if d.HIDInterface != nil {
		uc.HIDInterface = *d.HIDInterface
	}
	return uc
}

// Quarters converts the orientation in degrees to LCD quarter turns.
func (v DisplayConfig) Quarters() int {
	return (v.Orientation / 90) % 4
}

// Interval is the display frame cadence for live sources.
func (v DisplayConfig) Interval() time.Duration { return ms(v.IntervalMs) }

// Interval is the cooling tick cadence.
func (c CoolingConfig) Interval() time.Duration { return ms(c.IntervalMs) }

// Timeout is the Modbus request timeout.
func (e ExportConfig) Timeout() time.Duration { return ms(e.TimeoutMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
