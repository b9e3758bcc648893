// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/tamzrod/krakenctl/internal/frame"
	"github.com/tamzrod/krakenctl/internal/lcd"
	"github.com/tamzrod/krakenctl/internal/telemetry"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := cfg.Device
	if d.AckTimeoutMs < 0 || d.BulkTimeoutMs < 0 {
		return fmt.Errorf("device: timeouts must be >= 0")
	}
	if d.Retries != nil && (*d.Retries < 0 || *d.Retries > 10) {
		return fmt.Errorf("device: retries %d outside 0-10", *d.Retries)
	}
	if d.HIDInterface != nil && (*d.HIDInterface < 0 || *d.HIDInterface > 15) {
		return fmt.Errorf("device: hid_interface %d invalid", *d.HIDInterface)
	}

	// ------------------------------------------------------------
	// COOLING
	// ------------------------------------------------------------

	c := cfg.Cooling
	if c.IntervalMs < 0 {
		return fmt.Errorf("cooling: interval_ms must be >= 0")
	}
	if c.Source != "" {
		if _, err := telemetry.ParseTag(c.Source); err != nil {
			return fmt.Errorf("cooling: %w", err)
		}
	}
	for name, p := range c.Profiles {
		if _, err := p.resolve(name); err != nil {
			return fmt.Errorf("cooling: profile %q: %w", name, err)
		}
	}
	if c.Profile != "" {
		if _, err := cfg.ResolveProfile(c.Profile); err != nil {
			return err
		}
	}

	// ------------------------------------------------------------
	// DISPLAY
	// ------------------------------------------------------------

	v := cfg.Display
	switch strings.ToLower(v.Mode) {
	case "", "radial", "none":
	case "image":
		if v.ImagePath == "" {
			return fmt.Errorf("display: mode image requires image_path")
		}
	case "gif":
		if v.GIFPath == "" {
			return fmt.Errorf("display: mode gif requires gif_path")
		}
	default:
		return fmt.Errorf("display: unknown mode %q", v.Mode)
	}
	if _, err := lcd.ParseMode(v.Animation); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	if _, err := frame.ParseFit(v.Fit); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	if v.Repeat < 0 {
		return fmt.Errorf("display: repeat must be >= 0")
	}
	if v.Brightness != nil && (*v.Brightness < 0 || *v.Brightness > 100) {
		return fmt.Errorf("display: brightness %d outside 0-100", *v.Brightness)
	}
	if v.Orientation%90 != 0 || v.Orientation < 0 || v.Orientation > 270 {
		return fmt.Errorf("display: orientation %d must be 0, 90, 180 or 270", v.Orientation)
	}
	if v.Source != "" {
		if _, err := telemetry.ParseTag(v.Source); err != nil {
			return fmt.Errorf("display: %w", err)
		}
	}
	if v.IntervalMs < 0 {
		return fmt.Errorf("display: interval_ms must be >= 0")
	}
	if _, err := frame.NewGauge(v.Gauge.Style(), 0); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	// ------------------------------------------------------------
	// STATUS EXPORT (OPT-IN)
	// ------------------------------------------------------------

	e := cfg.Export
	for i := 0; i < len(e.DeviceName); i++ {
		if e.DeviceName[i] > 0x7F {
			return fmt.Errorf("export: device_name must contain ASCII characters only")
		}
	}
	if e.Slot != nil && e.Endpoint == "" {
		return fmt.Errorf("export: slot is set but no endpoint is defined")
	}
	if e.Endpoint != "" {
		if e.Slot == nil {
			return fmt.Errorf("export: endpoint %q has no slot", e.Endpoint)
		}
		if !strings.HasPrefix(e.Endpoint, "tcp://") && !strings.HasPrefix(e.Endpoint, "rtu://") {
			return fmt.Errorf("export: endpoint %q must start with tcp:// or rtu://", e.Endpoint)
		}
	}
	if e.TimeoutMs < 0 || e.BaudRate < 0 {
		return fmt.Errorf("export: timeout_ms and baud_rate must be >= 0")
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if cfg.Log.Level != "" {
		if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}

	return nil
}
