// internal/export/writer.go
package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/krakenctl/internal/status"
)

// registerWriter is the delivery seam (EndpointClient in production).
type registerWriter interface {
	WriteRegisters(addr uint16, regs []uint16) error
}

// StatusWriter is the delivery-only contract for the cooler status.
// It receives a snapshot and writes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// deviceStatusWriter writes one status block at slot*SlotsPerDevice.
type deviceStatusWriter struct {
	cli  registerWriter
	slot uint16
	name string

	needFull bool
	last     status.Snapshot
}

// NewStatusWriter builds a writer for the block at slot.
func NewStatusWriter(cli registerWriter, slot uint16, name string) (*deviceStatusWriter, error) {
	if cli == nil {
		return nil, errors.New("export: client required")
	}
	if (int(slot)+1)*status.SlotsPerDevice > 0x10000 {
		return nil, fmt.Errorf("export: slot %d out of register range", slot)
	}
	return &deviceStatusWriter{
		cli:      cli,
		slot:     slot,
		name:     name,
		needFull: true, // full re-assert on first successful write
		last:     status.Boot(),
	}, nil
}

// WriteStatus delivers a snapshot into status memory.
// On any write failure, the next successful call will re-assert the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	base := sw.baseAddr()

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := sw.cli.WriteRegisters(base, status.EncodeBlock(s, sw.name)); err != nil {
			return fmt.Errorf("export: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	// ------------------------------------------------------------
	// Incremental: only live slots that changed
	// ------------------------------------------------------------
	want := status.Encode(s)
	have := status.Encode(sw.last)

	var errs []string
	for i := 0; i < status.LiveSlots; i++ {
		if want[i] == have[i] {
			continue
		}
		if err := sw.cli.WriteRegisters(base+uint16(i), want[i:i+1]); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d write failed: %v", i, err))
		}
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt, re-assert on next success.
		sw.needFull = true
		return errors.New("export: " + strings.Join(errs, " | "))
	}

	sw.last = s
	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	// Each device owns a fixed SlotsPerDevice block.
	return sw.slot * status.SlotsPerDevice
}
