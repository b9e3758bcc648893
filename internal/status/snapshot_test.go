// internal/status/snapshot_test.go
package status

import "testing"

func TestTickSaturates(t *testing.T) {
	s := Boot()
	s.Fail(7, HealthError)
	s.SecondsInError = MaxSecondsInError - 1

	if !s.Tick() {
		t.Fatalf("tick below max must change")
	}
	if s.Tick() {
		t.Fatalf("tick at max must not change")
	}
	if s.SecondsInError != MaxSecondsInError {
		t.Fatalf("seconds_in_error wrapped: %d", s.SecondsInError)
	}
}

func TestTickOnlyWhileNotOK(t *testing.T) {
	s := Boot()
	s.Recover()
	if s.Tick() || s.SecondsInError != 0 {
		t.Fatalf("healthy snapshot must not count")
	}

	// unknown (boot) counts like the replicator does
	b := Boot()
	if !b.Tick() {
		t.Fatalf("boot snapshot must count")
	}
}

func TestSetLiquidClamps(t *testing.T) {
	s := Boot()
	s.SetLiquid(-3)
	if s.LiquidTenths != 0 {
		t.Fatalf("negative temp: got %d", s.LiquidTenths)
	}
	s.SetLiquid(27.25)
	if s.LiquidTenths != 273 {
		t.Fatalf("27.25 C: got %d want 273", s.LiquidTenths)
	}
}

func TestEncodeBlockLayout(t *testing.T) {
	s := Snapshot{Health: HealthOK, LiquidTenths: 300, PumpDuty: 70, FanDuty: 25, Bucket: 9}
	regs := EncodeBlock(s, "AB")

	if len(regs) != SlotsPerDevice {
		t.Fatalf("block size %d", len(regs))
	}
	for i := SlotReservedStart; i <= SlotReservedEnd; i++ {
		if regs[i] != 0 {
			t.Fatalf("reserved slot %d not zero", i)
		}
	}
	if regs[SlotShownBucket] != 9 || regs[SlotPumpDuty] != 70 {
		t.Fatalf("live slots wrong: %v", regs[:LiveSlots])
	}
	if regs[SlotDeviceNameStart] != uint16('A')<<8|uint16('B') {
		t.Fatalf("name slot: %#04x", regs[SlotDeviceNameStart])
	}
	if regs[SlotDeviceNameEnd] != 0 {
		t.Fatalf("name padding not zero")
	}
}

func TestEncodeDeviceNameSanitizes(t *testing.T) {
	regs := EncodeDeviceName("a\x01")
	if regs[0] != uint16('a')<<8|uint16('?') {
		t.Fatalf("got %#04x", regs[0])
	}
}
