// internal/telemetry/host.go
package telemetry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/sensors"
)

// DefaultCPUSensors are sensor keys tried in order, matched as prefixes.
var DefaultCPUSensors = []string{
	"k10temp_tctl",
	"zenpower_tdie",
	"coretemp_package_id_0",
	"coretemp_physical_id_0",
	"cpu_thermal",
	"acpitz",
}

// Reading is one host sensor as reported by the OS.
type Reading struct {
	Key      string
	Celsius  float64
	High     float64
	Critical float64
}

// Host reads CPU temperature from the operating system sensors.
type Host struct {
	prefer []string
	read   func(ctx context.Context) ([]sensors.TemperatureStat, error)
	now    func() time.Time
}

// NewHost builds a host source. An empty preference list uses DefaultCPUSensors.
func NewHost(prefer []string) *Host {
	if len(prefer) == 0 {
		prefer = DefaultCPUSensors
	}
	return &Host{
		prefer: prefer,
		read:   sensors.TemperaturesWithContext,
		now:    time.Now,
	}
}

var errNoCPUSensor = errors.New("no cpu temperature sensor found")

func (h *Host) Read(ctx context.Context, tag Tag) (Sample, error) {
	list, err := h.List(ctx)
	if err != nil {
		return Sample{}, sensorErr(HostCPU, err)
	}

	for _, want := range h.prefer {
		for _, r := range list {
			if strings.HasPrefix(strings.ToLower(r.Key), want) && r.Celsius > 0 {
				return Sample{Tag: HostCPU, Celsius: r.Celsius, At: h.now()}, nil
			}
		}
	}
	return Sample{}, sensorErr(HostCPU, errNoCPUSensor)
}

// List returns every temperature sensor, sorted by key.
// Partial results from gopsutil are kept; the error only surfaces when nothing was read.
func (h *Host) List(ctx context.Context) ([]Reading, error) {
	stats, err := h.read(ctx)
	if len(stats) == 0 && err != nil {
		return nil, err
	}

	out := make([]Reading, 0, len(stats))
	for _, s := range stats {
		out = append(out, Reading{
			Key:      s.SensorKey,
			Celsius:  s.Temperature,
			High:     s.High,
			Critical: s.Critical,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
