// internal/export/client.go
package export

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// ClientConfig selects the Modbus transport.
type ClientConfig struct {
	// Endpoint is tcp://host:port or rtu:///dev/ttyUSB0.
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
	BaudRate int // RTU only
}

// connector is the common surface of the goburrow TCP and RTU handlers.
type connector interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// EndpointClient is a single connection to the status memory endpoint.
// It serializes requests.
type EndpointClient struct {
	mu      sync.Mutex
	handler connector
	client  modbus.Client
}

// Dial connects to the endpoint.
func Dial(cfg ClientConfig) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("export: endpoint required")
	}

	var h connector
	switch {
	case strings.HasPrefix(cfg.Endpoint, "tcp://"):
		th := modbus.NewTCPClientHandler(strings.TrimPrefix(cfg.Endpoint, "tcp://"))
		th.Timeout = cfg.Timeout
		th.SlaveId = cfg.UnitID
		h = th

	case strings.HasPrefix(cfg.Endpoint, "rtu://"):
		rh := modbus.NewRTUClientHandler(strings.TrimPrefix(cfg.Endpoint, "rtu://"))
		rh.BaudRate = cfg.BaudRate
		rh.DataBits = 8
		rh.Parity = "N"
		rh.StopBits = 1
		rh.Timeout = cfg.Timeout
		rh.SlaveId = cfg.UnitID
		h = rh

	default:
		return nil, fmt.Errorf("export: endpoint %q must start with tcp:// or rtu://", cfg.Endpoint)
	}

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("export: connect %s: %w", cfg.Endpoint, err)
	}

	return &EndpointClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteRegisters writes holding registers starting at addr.
func (c *EndpointClient) WriteRegisters(addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	qty := uint16(len(regs))
	payload := packRegisters(regs)

	_, err := c.client.WriteMultipleRegisters(addr, qty, payload)
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
