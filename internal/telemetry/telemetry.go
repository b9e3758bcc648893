// internal/telemetry/telemetry.go
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tamzrod/krakenctl/internal/fault"
)

// Tag names where a temperature comes from.
type Tag int

const (
	Liquid Tag = iota
	HostCPU
)

func (t Tag) String() string {
	switch t {
	case Liquid:
		return "liquid"
	case HostCPU:
		return "cpu"
	default:
		return fmt.Sprintf("tag(%d)", int(t))
	}
}

// ParseTag accepts "liquid" or "cpu" (case-insensitive).
func ParseTag(s string) (Tag, error) {
	switch strings.ToLower(s) {
	case "liquid", "":
		return Liquid, nil
	case "cpu":
		return HostCPU, nil
	default:
		return 0, fmt.Errorf("telemetry: unknown source %q", s)
	}
}

// Sample is one temperature reading.
type Sample struct {
	Tag     Tag
	Celsius float64
	At      time.Time
}

// Source reads a temperature for a tag.
// Failures wrap fault.ErrSensor.
type Source interface {
	Read(ctx context.Context, tag Tag) (Sample, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, tag Tag) (Sample, error)

func (f SourceFunc) Read(ctx context.Context, tag Tag) (Sample, error) { return f(ctx, tag) }

// Router dispatches each tag to its own source.
type Router map[Tag]Source

func (r Router) Read(ctx context.Context, tag Tag) (Sample, error) {
	src, ok := r[tag]
	if !ok || src == nil {
		return Sample{}, fmt.Errorf("telemetry: no source for %s: %w", tag, fault.ErrSensor)
	}
	return src.Read(ctx, tag)
}

func sensorErr(tag Tag, err error) error {
	return fmt.Errorf("telemetry: read %s: %w: %w", tag, fault.ErrSensor, err)
}
