// internal/protocol/protocol_test.go
package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tamzrod/krakenctl/internal/fault"
)

func TestBulkHeader_RoundTrip(t *testing.T) {
	lengths := []uint32{0, 1, 1023, FrameSize, 0x00FFFFFF, 0xFFFFFFFF}
	types := []AssetType{AssetGIF, AssetStatic, 0x7F}

	for _, at := range types {
		for _, l := range lengths {
			raw := EncodeBulkHeader(at, l)
			h, err := DecodeBulkHeader(raw[:])
			if err != nil {
				t.Fatalf("decode(%v,%d) err=%v", at, l, err)
			}
			if h.Type != at || h.Length != l {
				t.Fatalf("round trip mismatch: got=(%v,%d) want=(%v,%d)", h.Type, h.Length, at, l)
			}
		}
	}
}

func TestBulkHeader_WireLayout(t *testing.T) {
	raw := EncodeBulkHeader(AssetStatic, FrameSize)

	want := []byte{
		0x12, 0xFA, 0x01, 0xE8, 0xAB, 0xCD, 0xEF, 0x98, 0x76, 0x54, 0x32, 0x10,
		0x02,
		0x00, 0x00, 0x00,
		0x00, 0x40, 0x06, 0x00, // 409600 LE
	}
	if !bytes.Equal(raw[:], want) {
		t.Fatalf("header bytes:\n got=% X\nwant=% X", raw[:], want)
	}
}

func TestBulkHeader_DecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeBulkHeader([]byte{0x12, 0xFA}); !errors.Is(err, fault.ErrMalformedResponse) {
		t.Fatalf("short header: err=%v", err)
	}

	raw := EncodeBulkHeader(AssetStatic, 10)
	raw[0] = 0x00
	if _, err := DecodeBulkHeader(raw[:]); !errors.Is(err, fault.ErrMalformedResponse) {
		t.Fatalf("bad magic: err=%v", err)
	}
}

func TestBulkHeader_CheckPayload(t *testing.T) {
	h := BulkHeader{Type: AssetStatic, Length: 4}
	if err := h.CheckPayload(make([]byte, 4)); err != nil {
		t.Fatalf("matching payload: err=%v", err)
	}
	if err := h.CheckPayload(make([]byte, 5)); !errors.Is(err, fault.ErrProtocolViolation) {
		t.Fatalf("mismatched payload: err=%v", err)
	}
}

func TestBucketBrackets(t *testing.T) {
	start, err := BucketStart(7).Encode()
	if err != nil {
		t.Fatalf("encode start: %v", err)
	}
	if len(start) != ReportLength {
		t.Fatalf("report length: got=%d", len(start))
	}
	if start[0] != 0x36 || start[1] != 0x01 || start[2] != 7 {
		t.Fatalf("start bytes: % X", start[:4])
	}

	end, _ := BucketEnd().Encode()
	if end[0] != 0x36 || end[1] != 0x02 {
		t.Fatalf("end bytes: % X", end[:4])
	}

	if !BucketStart(7).Matches([]byte{0x37, 0x01}) {
		t.Fatalf("start must match 37 01")
	}
	if BucketStart(7).Matches([]byte{0x37, 0x02}) {
		t.Fatalf("start must not match 37 02")
	}
	if !BucketEnd().Matches([]byte{0x37, 0x02}) {
		t.Fatalf("end must match 37 02")
	}
}

func TestBucketSetupLayout(t *testing.T) {
	b, _ := BucketSetup(3, 0x0191, 401).Encode()
	want := []byte{0x32, 0x01, 3, 4, 0x91, 0x01, 0x91, 0x01, 0x01}
	if !bytes.Equal(b[:len(want)], want) {
		t.Fatalf("setup bytes:\n got=% X\nwant=% X", b[:len(want)], want)
	}
}

func TestSpeedCommands(t *testing.T) {
	cmd := FixedSpeed(ChannelPump, 50)
	b, _ := cmd.Encode()
	if b[0] != 0x72 || b[1] != 0x01 {
		t.Fatalf("speed header: % X", b[:2])
	}
	for i := 2; i < 2+CurvePoints; i++ {
		if b[i] != 50 {
			t.Fatalf("duty[%d]=%d want 50", i-2, b[i])
		}
	}

	// pump floor applies to fixed speeds
	low, _ := FixedSpeed(ChannelPump, 5).Encode()
	if low[2] != 20 {
		t.Fatalf("pump floor: got=%d want=20", low[2])
	}

	if _, err := SpeedCurve(ChannelFan, make([]uint8, 10)); !errors.Is(err, ErrCurveLength) {
		t.Fatalf("short curve: err=%v", err)
	}
	if _, err := SpeedCurve(ChannelPump, make([]uint8, CurvePoints)); err == nil {
		t.Fatalf("pump curve of zeros must be rejected")
	}
}

func TestLCDConfigBounds(t *testing.T) {
	cmd, err := LCDConfig(80, 2)
	if err != nil {
		t.Fatalf("LCDConfig err=%v", err)
	}
	b, _ := cmd.Encode()
	want := []byte{0x30, 0x02, 0x01, 80, 0x00, 0x00, 0x01, 2}
	if !bytes.Equal(b[:len(want)], want) {
		t.Fatalf("lcd config bytes: % X", b[:len(want)])
	}

	if _, err := LCDConfig(101, 0); err == nil {
		t.Fatalf("expected brightness error")
	}
	if _, err := LCDConfig(10, 4); err == nil {
		t.Fatalf("expected orientation error")
	}
}

func TestParseStatus(t *testing.T) {
	b := make([]byte, ReportLength)
	b[0], b[1] = 0x75, 0x01
	b[15], b[16] = 31, 4
	b[17], b[18] = 0x10, 0x0A // 2576 rpm
	b[19] = 70
	b[20] = 35
	b[23], b[24] = 0xE8, 0x03 // 1000 rpm

	st, err := ParseStatus(b)
	if err != nil {
		t.Fatalf("ParseStatus err=%v", err)
	}
	if st.LiquidC < 31.39 || st.LiquidC > 31.41 {
		t.Fatalf("liquid: got=%v", st.LiquidC)
	}
	if st.PumpRPM != 2576 || st.PumpDuty != 70 || st.FanRPM != 1000 || st.FanDuty != 35 {
		t.Fatalf("unexpected status: %+v", st)
	}

	b[15], b[16] = 0xFF, 0xFF
	if _, err := ParseStatus(b); !errors.Is(err, fault.ErrMalformedResponse) {
		t.Fatalf("sentinel: err=%v", err)
	}

	if _, err := ParseStatus(b[:10]); !errors.Is(err, fault.ErrMalformedResponse) {
		t.Fatalf("truncated: err=%v", err)
	}

	other := make([]byte, ReportLength)
	other[0], other[1] = 0x37, 0x01
	if _, err := ParseStatus(other); !errors.Is(err, fault.ErrMalformedResponse) {
		t.Fatalf("wrong opcode: err=%v", err)
	}
}

func TestParseStatus_AltLayout(t *testing.T) {
	b := make([]byte, ReportLength)
	b[0], b[1] = 0xFF, 0x01
	b[2], b[3] = 28, 5
	b[5], b[6] = 0xD0, 0x07 // 2000
	b[7] = 60
	b[13] = 40
	b[14], b[15] = 0x20, 0x03 // 800

	st, err := ParseStatus(b)
	if err != nil {
		t.Fatalf("ParseStatus err=%v", err)
	}
	if st.PumpRPM != 2000 || st.PumpDuty != 60 || st.FanRPM != 800 || st.FanDuty != 40 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestParseBucketInfo(t *testing.T) {
	b := make([]byte, ReportLength)
	b[0], b[1] = 0x31, 0x04
	b[17], b[18] = 0x91, 0x01
	b[19], b[20] = 0x91, 0x01

	r, err := ParseBucketInfo(2, b)
	if err != nil {
		t.Fatalf("ParseBucketInfo err=%v", err)
	}
	if !r.Exists || r.StartPage != 401 || r.SizePages != 401 || r.Index != 2 {
		t.Fatalf("unexpected region: %+v", r)
	}

	b[19], b[20] = 0, 0
	r, _ = ParseBucketInfo(2, b)
	if r.Exists {
		t.Fatalf("zero-size bucket must not exist")
	}

	if _, err := ParseBucketInfo(0, b[:5]); !errors.Is(err, fault.ErrMalformedResponse) {
		t.Fatalf("truncated: err=%v", err)
	}
}

func TestPageCount(t *testing.T) {
	if got := PageCount(FrameSize); got != 401 {
		t.Fatalf("static frame pages: got=%d want=401", got)
	}
	if got := PageCount(0); got != 1 {
		t.Fatalf("empty payload pages: got=%d want=1", got)
	}
	if got := PageCount(1024 - HeaderSize); got != 1 {
		t.Fatalf("exact page: got=%d want=1", got)
	}
}

func TestCheckSize(t *testing.T) {
	if err := CheckSize(MemoryPages*PageSize - HeaderSize); err != nil {
		t.Fatalf("full memory: %v", err)
	}
	if err := CheckSize(MemoryPages*PageSize - HeaderSize + 1); !errors.Is(err, fault.ErrAssetDecode) {
		t.Fatalf("one byte over: err=%v", err)
	}
	// would wrap a uint16 page count
	if err := CheckSize(70000 * PageSize); !errors.Is(err, fault.ErrAssetDecode) {
		t.Fatalf("wrapping size: err=%v", err)
	}
}

func TestMemoryOffset(t *testing.T) {
	regions := []Region{
		{Index: 0, Exists: true, StartPage: 0, SizePages: 401},
		{Index: 1, Exists: true, StartPage: 401, SizePages: 401},
		{Index: 2},
	}

	// reuse own region
	if got := MemoryOffset(regions, 1, 401); got != 401 {
		t.Fatalf("reuse: got=%d want=401", got)
	}
	// append after occupied
	if got := MemoryOffset(regions, 2, 401); got != 802 {
		t.Fatalf("append: got=%d want=802", got)
	}
	// own region too small: append after others
	if got := MemoryOffset(regions, 0, 500); got != 802 {
		t.Fatalf("grow: got=%d want=802", got)
	}
	// no room at the end: wrap to 0
	full := []Region{{Index: 5, Exists: true, StartPage: 24000, SizePages: 300}}
	if got := MemoryOffset(full, 2, 401); got != 0 {
		t.Fatalf("wrap: got=%d want=0", got)
	}
}

func TestChannelClamp(t *testing.T) {
	if ChannelPump.Clamp(-5) != 20 || ChannelPump.Clamp(150) != 100 {
		t.Fatalf("pump clamp wrong")
	}
	if ChannelFan.Clamp(-5) != 0 || ChannelFan.Clamp(42) != 42 {
		t.Fatalf("fan clamp wrong")
	}
}
