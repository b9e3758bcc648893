// internal/config/normalize.go
package config

import "strings"

// Defaults applied by Normalize.
const (
	DefaultAckTimeoutMs  = 200
	DefaultRetries       = 2
	DefaultBulkTimeoutMs = 5000
	DefaultHIDInterface  = 1

	DefaultProfile         = "silent"
	DefaultSource          = "liquid"
	DefaultCoolingInterval = 2000
	DefaultDisplayMode     = "radial"
	DefaultDisplayInterval = 1000
	DefaultBrightness      = 100

	DefaultExportTimeoutMs = 1000
	DefaultBaudRate        = 19200

	DefaultLogLevel = "info"

	maxDeviceName = 16
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := &cfg.Device
	if d.AckTimeoutMs == 0 {
		d.AckTimeoutMs = DefaultAckTimeoutMs
	}
	if d.Retries == nil {
		n := DefaultRetries
		d.Retries = &n
	}
	if d.BulkTimeoutMs == 0 {
		d.BulkTimeoutMs = DefaultBulkTimeoutMs
	}
	if d.HIDInterface == nil {
		n := DefaultHIDInterface
		d.HIDInterface = &n
	}

	// ------------------------------------------------------------
	// COOLING
	// ------------------------------------------------------------

	c := &cfg.Cooling
	if c.Profile == "" {
		c.Profile = DefaultProfile
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	c.Source = strings.ToLower(c.Source)
	if c.IntervalMs == 0 {
		c.IntervalMs = DefaultCoolingInterval
	}

	// ------------------------------------------------------------
	// DISPLAY
	// ------------------------------------------------------------

	v := &cfg.Display
	v.Mode = strings.ToLower(v.Mode)
	if v.Mode == "" {
		v.Mode = DefaultDisplayMode
	}
	if v.Source == "" {
		v.Source = c.Source
	}
	if v.IntervalMs == 0 {
		v.IntervalMs = DefaultDisplayInterval
	}
	if v.Brightness == nil {
		b := DefaultBrightness
		v.Brightness = &b
	}

	// ------------------------------------------------------------
	// STATUS EXPORT (OPT-IN)
	// ------------------------------------------------------------

	e := &cfg.Export
	if e.Endpoint != "" {
		// ASCII already validated; the status block holds 16 characters
		if len(e.DeviceName) > maxDeviceName {
			e.DeviceName = e.DeviceName[:maxDeviceName]
		}
		if e.TimeoutMs == 0 {
			e.TimeoutMs = DefaultExportTimeoutMs
		}
		if e.BaudRate == 0 {
			e.BaudRate = DefaultBaudRate
		}
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}
