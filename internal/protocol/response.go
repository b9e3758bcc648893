// internal/protocol/response.go
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/tamzrod/krakenctl/internal/fault"
)

// Decoders never panic: every offset is bounds-checked against the frame first.

// ---- STATUS ----

// Status is one cooler status report.
type Status struct {
	LiquidC  float64
	PumpRPM  uint16
	PumpDuty uint8
	FanRPM   uint16
	FanDuty  uint8
}

// primary layout (75 01)
const (
	offTempInt   = 15
	offTempDec   = 16
	offPumpRPM   = 17
	offPumpDuty  = 19
	offFanDuty   = 20
	offFanRPM    = 23
	statusMinLen = 25
)

// alternate layout (71 01 / FF 01)
const (
	offAltTempInt  = 2
	offAltTempDec  = 3
	offAltPumpRPM  = 5
	offAltPumpDuty = 7
	offAltFanDuty  = 13
	offAltFanRPM   = 14
)

// IsStatus reports whether a frame carries a status report in either layout.
func IsStatus(b []byte) bool {
	if len(b) < 2 || b[1] != ReplySubOK {
		return false
	}
	return b[0] == ReplyStatus || b[0] == ReplyStatusAlt || b[0] == ReplySpeed
}

// ParseStatus decodes a status report.
// A 0xFFFF temperature marks a firmware sensor fault.
func ParseStatus(b []byte) (Status, error) {
	if len(b) < statusMinLen {
		return Status{}, fmt.Errorf("status: %d bytes, need %d: %w", len(b), statusMinLen, fault.ErrMalformedResponse)
	}
	if !IsStatus(b) {
		return Status{}, fmt.Errorf("status: unexpected header %02X %02X: %w", b[0], b[1], fault.ErrMalformedResponse)
	}

	if b[0] == ReplyStatus {
		if b[offTempInt] == 0xFF && b[offTempDec] == 0xFF {
			return Status{}, fmt.Errorf("status: invalid temperature sentinel (firmware fault): %w", fault.ErrMalformedResponse)
		}
		return Status{
			LiquidC:  float64(b[offTempInt]) + float64(b[offTempDec])/10,
			PumpRPM:  binary.LittleEndian.Uint16(b[offPumpRPM:]),
			PumpDuty: b[offPumpDuty],
			FanRPM:   binary.LittleEndian.Uint16(b[offFanRPM:]),
			FanDuty:  b[offFanDuty],
		}, nil
	}

	return Status{
		LiquidC:  float64(b[offAltTempInt]) + float64(b[offAltTempDec])/10,
		PumpRPM:  binary.LittleEndian.Uint16(b[offAltPumpRPM:]),
		PumpDuty: b[offAltPumpDuty],
		FanRPM:   binary.LittleEndian.Uint16(b[offAltFanRPM:]),
		FanDuty:  b[offAltFanDuty],
	}, nil
}

// ---- FIRMWARE ----

// Firmware is the device firmware version.
type Firmware struct {
	Major, Minor, Patch uint8
}

func (f Firmware) String() string {
	return fmt.Sprintf("%d.%d.%d", f.Major, f.Minor, f.Patch)
}

// ParseFirmware decodes a 11 01 reply.
func ParseFirmware(b []byte) (Firmware, error) {
	if len(b) < 20 || b[0] != ReplyFirmware || b[1] != ReplySubOK {
		return Firmware{}, fmt.Errorf("firmware reply: %w", fault.ErrMalformedResponse)
	}
	return Firmware{Major: b[17], Minor: b[18], Patch: b[19]}, nil
}

// ---- LCD ----

// LCDState is the current LCD configuration.
type LCDState struct {
	Brightness  uint8
	Orientation uint8
}

const (
	offLCDBrightness  = 0x18
	offLCDOrientation = 0x1A
)

// ParseLCDInfo decodes a 31 01 reply.
func ParseLCDInfo(b []byte) (LCDState, error) {
	if len(b) <= offLCDOrientation || b[0] != ReplyLCD || b[1] != SubLCDInfo {
		return LCDState{}, fmt.Errorf("lcd info reply: %w", fault.ErrMalformedResponse)
	}
	return LCDState{Brightness: b[offLCDBrightness], Orientation: b[offLCDOrientation]}, nil
}

// ---- BUCKETS ----

const (
	offBucketStart = 17
	offBucketSize  = 19
)

// ParseBucketInfo decodes a 31 04 reply. A bucket exists iff its size is non-zero.
func ParseBucketInfo(index int, b []byte) (Region, error) {
	if len(b) < offBucketSize+2 || b[0] != ReplyLCD || b[1] != SubBucketQuery {
		return Region{}, fmt.Errorf("bucket %d query reply: %w", index, fault.ErrMalformedResponse)
	}
	r := Region{
		Index:     index,
		StartPage: binary.LittleEndian.Uint16(b[offBucketStart:]),
		SizePages: binary.LittleEndian.Uint16(b[offBucketSize:]),
	}
	r.Exists = r.SizePages > 0
	return r, nil
}
