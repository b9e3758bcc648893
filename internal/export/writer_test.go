// internal/export/writer_test.go
package export

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tamzrod/krakenctl/internal/status"
)

// ---- fake endpoint client ----

type writeCall struct {
	addr uint16
	regs []uint16
}

type fakeEndpointClient struct {
	mu     sync.Mutex
	writes []writeCall
	fail   error
}

func (f *fakeEndpointClient) WriteRegisters(addr uint16, regs []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.writes = append(f.writes, writeCall{addr: addr, regs: append([]uint16(nil), regs...)})
	return nil
}

func (f *fakeEndpointClient) last() writeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[len(f.writes)-1]
}

// ---- tests ----

func TestDeviceNameWrittenOnFullAssertOnly(t *testing.T) {
	cli := &fakeEndpointClient{}

	sw, err := NewStatusWriter(cli, 2, "KRAKEN-01")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// ---- first write: FULL ASSERT ----
	first := status.Boot()
	first.Recover()
	first.SetLiquid(31.46)

	if err := sw.WriteStatus(first); err != nil {
		t.Fatalf("initial full assert failed: %v", err)
	}

	w := cli.last()
	if w.addr != 2*status.SlotsPerDevice {
		t.Fatalf("base addr: got=%d want=%d", w.addr, 2*status.SlotsPerDevice)
	}
	if len(w.regs) != status.SlotsPerDevice {
		t.Fatalf("expected full block write (%d regs), got %d", status.SlotsPerDevice, len(w.regs))
	}
	if w.regs[status.SlotLiquidTemp] != 315 {
		t.Fatalf("liquid: got=%d want=315", w.regs[status.SlotLiquidTemp])
	}
	if w.regs[status.SlotShownBucket] != status.NoBucket {
		t.Fatalf("bucket: got=%d want=NoBucket", w.regs[status.SlotShownBucket])
	}

	// Verify device name encoding EXACTLY
	if diff := cmp.Diff(status.EncodeDeviceName("KRAKEN-01"), w.regs[status.SlotDeviceNameStart:status.SlotDeviceNameEnd+1]); diff != "" {
		t.Fatalf("device name mismatch (-want +got):\n%s", diff)
	}

	// ---- second write: INCREMENTAL ONLY ----
	second := first
	second.Fail(12, status.HealthError)
	second.SetBucket(4)

	if err := sw.WriteStatus(second); err != nil {
		t.Fatalf("incremental write failed: %v", err)
	}

	got := cli.writes[1:]
	want := []writeCall{
		{addr: 40 + status.SlotHealthCode, regs: []uint16{status.HealthError}},
		{addr: 40 + status.SlotLastErrorCode, regs: []uint16{12}},
		{addr: 40 + status.SlotShownBucket, regs: []uint16{4}},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(writeCall{})); diff != "" {
		t.Fatalf("incremental writes (-want +got):\n%s", diff)
	}
}

func TestSecondsInErrorResetOnRecovery(t *testing.T) {
	cli := &fakeEndpointClient{}

	sw, err := NewStatusWriter(cli, 0, "DEV-01")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// simulate ERROR
	snap := status.Boot()
	snap.Fail(42, status.HealthError)
	snap.Tick()
	snap.Tick()
	snap.Tick()

	if err := sw.WriteStatus(snap); err != nil {
		t.Fatalf("error snapshot write failed: %v", err)
	}

	// simulate recovery
	snap.Recover()
	if err := sw.WriteStatus(snap); err != nil {
		t.Fatalf("recovery snapshot write failed: %v", err)
	}

	w := cli.last()
	if w.addr != status.SlotSecondsInError {
		t.Fatalf("unexpected write addr: got=%d want=%d", w.addr, status.SlotSecondsInError)
	}
	if len(w.regs) != 1 || w.regs[0] != 0 {
		t.Fatalf("seconds_in_error not reset: got=%v", w.regs)
	}
}

func TestFailedWriteReassertsFullBlock(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw, _ := NewStatusWriter(cli, 0, "DEV-01")

	snap := status.Boot()
	if err := sw.WriteStatus(snap); err != nil {
		t.Fatalf("full assert: %v", err)
	}

	cli.fail = errors.New("link down")
	snap.SetDuties(60, 40)
	if err := sw.WriteStatus(snap); err == nil {
		t.Fatalf("expected error")
	}

	cli.fail = nil
	if err := sw.WriteStatus(snap); err != nil {
		t.Fatalf("recovery write: %v", err)
	}
	if n := len(cli.last().regs); n != status.SlotsPerDevice {
		t.Fatalf("expected full re-assert after failure, got %d regs", n)
	}
}

func TestNewStatusWriterRejectsSlotOutOfRange(t *testing.T) {
	if _, err := NewStatusWriter(&fakeEndpointClient{}, 4000, "x"); err == nil {
		t.Fatalf("expected error for slot beyond register space")
	}
	if _, err := NewStatusWriter(nil, 0, "x"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestDialRejectsScheme(t *testing.T) {
	if _, err := Dial(ClientConfig{Endpoint: "udp://127.0.0.1:502"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Dial(ClientConfig{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestPackRegisters(t *testing.T) {
	got := packRegisters([]uint16{0x1234, 0x00FF})
	if diff := cmp.Diff([]byte{0x12, 0x34, 0x00, 0xFF}, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
