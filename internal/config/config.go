// internal/config/config.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tamzrod/krakenctl/internal/cooling"
)

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Cooling CoolingConfig `yaml:"cooling"`
	Display DisplayConfig `yaml:"display"`
	Export  ExportConfig  `yaml:"export"`
	Log     LogConfig     `yaml:"log"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	AckTimeoutMs  int  `yaml:"ack_timeout_ms"`
	Retries       *int `yaml:"retries"`
	BulkTimeoutMs int  `yaml:"bulk_timeout_ms"`
	HIDInterface  *int `yaml:"hid_interface"`
}

// ---- COOLING ----

type CoolingConfig struct {
	// Profile names a preset ("silent", "performance", "fixed:N") or a key of Profiles.
	Profile    string                   `yaml:"profile"`
	Source     string                   `yaml:"source"` // liquid | cpu
	IntervalMs int                      `yaml:"interval_ms"`
	Profiles   map[string]ProfileConfig `yaml:"profiles"`
}

// ProfileConfig is a user-defined cooling profile.
type ProfileConfig struct {
	Pump *ChannelConfig `yaml:"pump"`
	Fan  *ChannelConfig `yaml:"fan"`
}

// ChannelConfig is either a fixed duty, a named curve, or explicit points.
type ChannelConfig struct {
	Fixed  *int            `yaml:"fixed"`
	Preset string          `yaml:"preset"`
	Curve  []cooling.Point `yaml:"curve"`
}

// ---- DISPLAY ----

type DisplayConfig struct {
	Mode         string      `yaml:"mode"` // radial | image | gif | none
	ImagePath    string      `yaml:"image_path"`
	GIFPath      string      `yaml:"gif_path"`
	Animation    string      `yaml:"animation"` // host | device
	Repeat       int         `yaml:"repeat"`    // 0 loops forever
	Fit          string      `yaml:"fit"`       // stretch | letterbox
	Brightness   *int        `yaml:"brightness"`
	Orientation  int         `yaml:"orientation"` // degrees: 0, 90, 180, 270
	Source       string      `yaml:"source"`      // gauge telemetry: liquid | cpu
	IntervalMs   int         `yaml:"interval_ms"`
	ClearOnStart bool        `yaml:"clear_on_start"`
	HostInfo     bool        `yaml:"host_info"`
	Gauge        GaugeConfig `yaml:"gauge"`
}

// GaugeConfig overrides the default radial gauge style; zero fields keep defaults.
type GaugeConfig struct {
	StartColor      string   `yaml:"start_color"`
	EndColor        string   `yaml:"end_color"`
	BackgroundColor string   `yaml:"background_color"`
	Radius          float64  `yaml:"radius"`
	Thickness       float64  `yaml:"thickness"`
	StartAngle      *float64 `yaml:"start_angle"`
	SweepAngle      float64  `yaml:"sweep_angle"`
	Min             *float64 `yaml:"min"`
	Max             *float64 `yaml:"max"`
	Interpolation   string   `yaml:"interpolation"`
	ShowValue       *bool    `yaml:"show_value"`
	TrackDim        *float64 `yaml:"track_dim"`
}

// ---- STATUS EXPORT ----

type ExportConfig struct {
	// Endpoint is tcp://host:port or rtu:///dev/ttyUSB0. Empty disables export.
	Endpoint   string  `yaml:"endpoint"`
	UnitID     uint8   `yaml:"unit_id"`
	Slot       *uint16 `yaml:"slot"`
	DeviceName string  `yaml:"device_name"`
	TimeoutMs  int     `yaml:"timeout_ms"`
	BaudRate   int     `yaml:"baud_rate"`
}

// ---- LOG ----

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultPath is <user config dir>/krakenctl/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "krakenctl.yaml"
	}
	return filepath.Join(dir, "krakenctl", "config.yaml")
}

// Load reads a YAML file. A missing file at the default path yields an empty
// config; a missing explicit path is an error. Load neither validates nor
// normalizes.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &cfg, nil
}
