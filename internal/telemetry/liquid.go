// internal/telemetry/liquid.go
package telemetry

import (
	"context"
	"time"

	"github.com/tamzrod/krakenctl/internal/protocol"
)

// StatusReader is the device status query (kraken.Cooler satisfies it).
type StatusReader interface {
	Status(ctx context.Context) (protocol.Status, error)
}

// Coolant reads the liquid temperature from the cooler itself.
type Coolant struct {
	dev StatusReader
	now func() time.Time
}

// NewCoolant wraps a status reader.
func NewCoolant(dev StatusReader) *Coolant {
	return &Coolant{dev: dev, now: time.Now}
}

func (c *Coolant) Read(ctx context.Context, tag Tag) (Sample, error) {
	st, err := c.dev.Status(ctx)
	if err != nil {
		return Sample{}, sensorErr(Liquid, err)
	}
	return Sample{Tag: Liquid, Celsius: st.LiquidC, At: c.now()}, nil
}
