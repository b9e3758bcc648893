// internal/cooling/profile.go
package cooling

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tamzrod/krakenctl/internal/protocol"
)

// ---- PRESET CURVES ----

var (
	FanSilent = Curve{
		{20, 25}, {30, 25}, {40, 25}, {45, 25},
		{50, 55}, {55, 75}, {58, 90}, {59, 100},
	}
	FanPerformance = Curve{
		{20, 50}, {30, 55}, {40, 65}, {50, 80}, {55, 90}, {59, 100},
	}
	PumpSilent = Curve{
		{20, 70}, {35, 70}, {45, 80}, {55, 95}, {59, 100},
	}
	PumpPerformance = Curve{
		{20, 80}, {40, 85}, {50, 95}, {59, 100},
	}
)

var curves = map[string]Curve{
	"silent":           FanSilent,
	"performance":      FanPerformance,
	"pump-silent":      PumpSilent,
	"pump-performance": PumpPerformance,
}

// Profile pairs a pump curve with a fan curve. A nil curve leaves that
// channel untouched.
type Profile struct {
	Name string
	Pump Curve
	Fan  Curve
}

var profiles = map[string]Profile{
	"silent":      {Name: "silent", Pump: PumpSilent, Fan: FanSilent},
	"performance": {Name: "performance", Pump: PumpPerformance, Fan: FanPerformance},
}

// ParseProfile resolves "silent", "performance" or "fixed:N".
func ParseProfile(s string) (Profile, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if p, ok := profiles[name]; ok {
		return p, nil
	}
	if duty, ok, err := parseFixed(name); ok {
		if err != nil {
			return Profile{}, err
		}
		return Profile{Name: name, Pump: Flat(duty), Fan: Flat(duty)}, nil
	}
	return Profile{}, fmt.Errorf("cooling: unknown profile %q (want %s or fixed:N)", s, strings.Join(ProfileNames(), ", "))
}

// LookupCurve resolves a single-channel curve name, including "fixed:N".
func LookupCurve(s string) (Curve, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := curves[name]; ok {
		return c, nil
	}
	if duty, ok, err := parseFixed(name); ok {
		if err != nil {
			return nil, err
		}
		return Flat(duty), nil
	}
	return nil, fmt.Errorf("cooling: unknown curve %q", s)
}

// ProfileNames lists the named presets.
func ProfileNames() []string {
	out := make([]string, 0, len(profiles))
	for n := range profiles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// CurveNames lists the named single-channel curves.
func CurveNames() []string {
	out := make([]string, 0, len(curves))
	for n := range curves {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func parseFixed(name string) (int, bool, error) {
	rest, ok := strings.CutPrefix(name, "fixed:")
	if !ok {
		return 0, false, nil
	}
	duty, err := strconv.Atoi(rest)
	if err != nil || duty < 0 || duty > 100 {
		return 0, true, fmt.Errorf("cooling: fixed duty %q must be 0-100", rest)
	}
	return duty, true, nil
}

// Validate checks both curves.
func (p Profile) Validate() error {
	if p.Pump == nil && p.Fan == nil {
		return fmt.Errorf("cooling: profile %q controls nothing", p.Name)
	}
	if p.Pump != nil {
		if err := p.Pump.Validate(); err != nil {
			return fmt.Errorf("pump: %w", err)
		}
	}
	if p.Fan != nil {
		if err := p.Fan.Validate(); err != nil {
			return fmt.Errorf("fan: %w", err)
		}
	}
	return nil
}

// CurveWriter uploads a device-side 40-point curve (kraken.Cooler satisfies it).
type CurveWriter interface {
	SetSpeedCurve(ctx context.Context, ch protocol.Channel, duties []uint8) error
}

// Upload stores the profile in the device so it runs without the host.
// The device curve is indexed by liquid temperature.
func (p Profile) Upload(ctx context.Context, dev CurveWriter) error {
	if p.Pump != nil {
		if err := dev.SetSpeedCurve(ctx, protocol.ChannelPump, p.Pump.Table(protocol.ChannelPump)); err != nil {
			return err
		}
	}
	if p.Fan != nil {
		if err := dev.SetSpeedCurve(ctx, protocol.ChannelFan, p.Fan.Table(protocol.ChannelFan)); err != nil {
			return err
		}
	}
	return nil
}
