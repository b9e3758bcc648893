// internal/protocol/command.go
package protocol

import (
	"errors"
	"fmt"
)

// Command is one control-channel frame.
//
// Ack is the reply opcode the device answers with; zero means the command is
// fire-and-forget. AckSub narrows the match on the second reply byte
// (ReplyAnySub accepts any).
type Command struct {
	Name     string
	Opcode   byte
	Operands []byte
	Ack      byte
	AckSub   byte
}

// ExpectsAck reports whether the command waits for a reply.
func (c Command) ExpectsAck() bool {
	return c.Ack != 0
}

// Encode pads the command into a fixed-size HID report.
// No IO. No side effects.
func (c Command) Encode() ([]byte, error) {
	if 1+len(c.Operands) > ReportLength {
		return nil, fmt.Errorf("protocol: command %s exceeds report length (%d bytes)", c.Name, 1+len(c.Operands))
	}

	out := make([]byte, ReportLength)
	out[0] = c.Opcode
	copy(out[1:], c.Operands)
	return out, nil
}

// Matches reports whether a reply frame acknowledges this command.
func (c Command) Matches(reply []byte) bool {
	if !c.ExpectsAck() || len(reply) < 2 {
		return false
	}
	if reply[0] != c.Ack {
		return false
	}
	return c.AckSub == ReplyAnySub || reply[1] == c.AckSub
}

func (c Command) String() string {
	return fmt.Sprintf("%s(%02X)", c.Name, c.Opcode)
}

// ---- INIT / INFO ----

// FirmwareInfo requests the firmware version (reply 11 01).
func FirmwareInfo() Command {
	return Command{Name: "firmware-info", Opcode: OpFirmwareInfo, Operands: []byte{0x01}, Ack: ReplyFirmware, AckSub: ReplySubOK}
}

// LEDInfo requests lighting info. The reply is not consumed.
func LEDInfo() Command {
	return Command{Name: "led-info", Opcode: OpLEDInfo, Operands: []byte{0x03}}
}

// InitInterval sets the status update interval (0x01 = 500ms).
func InitInterval(interval byte) Command {
	return Command{Name: "init-interval", Opcode: OpInit, Operands: []byte{0x02, 0x01, 0xB8, interval}}
}

// InitComplete finishes device initialization.
func InitComplete() Command {
	return Command{Name: "init-complete", Opcode: OpInit, Operands: []byte{0x01}}
}

// RequestStatus asks the device for a status report (reply 75 01).
func RequestStatus() Command {
	return Command{Name: "request-status", Opcode: OpStatus, Operands: []byte{0x01}, Ack: ReplyStatus, AckSub: ReplySubOK}
}

// HostInfo pushes host temperatures for firmware-rendered CPU/GPU modes.
func HostInfo(cpu, gpu uint8) Command {
	return Command{Name: "host-info", Opcode: OpHostInfo, Operands: []byte{0x01, cpu, gpu}}
}

// ---- LCD ----

// LCDInfo requests brightness and orientation (reply 31 01).
func LCDInfo() Command {
	return Command{Name: "lcd-info", Opcode: OpLCD, Operands: []byte{SubLCDInfo}, Ack: ReplyLCD, AckSub: SubLCDInfo}
}

// LCDConfig sets brightness (0-100) and orientation (0-3, quarter turns).
func LCDConfig(brightness, orientation uint8) (Command, error) {
	if brightness > 100 {
		return Command{}, fmt.Errorf("protocol: brightness %d out of range 0-100", brightness)
	}
	if orientation > 3 {
		return Command{}, fmt.Errorf("protocol: orientation %d out of range 0-3", orientation)
	}
	return Command{
		Name:     "lcd-config",
		Opcode:   OpLCD,
		Operands: []byte{SubLCDConfig, 0x01, brightness, 0x00, 0x00, 0x01, orientation},
	}, nil
}

// VisualMode switches what the LCD shows. For ModeBucket, index selects the bucket.
func VisualMode(mode, index uint8) Command {
	return Command{Name: "visual-mode", Opcode: OpVisualMode, Operands: []byte{0x01, mode, index}, Ack: ReplyVisualMode}
}

// ---- BUCKETS ----

// BucketQuery asks for the memory region of one bucket (reply 31 04).
func BucketQuery(index uint8) Command {
	return Command{Name: "bucket-query", Opcode: OpLCD, Operands: []byte{SubBucketQuery, index}, Ack: ReplyLCD, AckSub: SubBucketQuery}
}

// BucketSetup assigns a memory region to a bucket (reply 33 01).
// The bucket id is always index+1.
func BucketSetup(index uint8, startPage, sizePages uint16) Command {
	return Command{
		Name:   "bucket-setup",
		Opcode: OpBucket,
		Operands: []byte{
			SubBucketSet,
			index,
			index + 1,
			byte(startPage), byte(startPage >> 8),
			byte(sizePages), byte(sizePages >> 8),
			0x01,
		},
		Ack:    ReplyBucket,
		AckSub: SubBucketSet,
	}
}

// BucketDelete frees one bucket (reply 33 02).
func BucketDelete(index uint8) Command {
	return Command{Name: "bucket-delete", Opcode: OpBucket, Operands: []byte{SubBucketDelete, index, 0x00}, Ack: ReplyBucket, AckSub: SubBucketDelete}
}

// ---- BULK BRACKETS ----

// BulkHandshake precedes a bucket write sequence.
func BulkHandshake() Command {
	return Command{Name: "bulk-handshake", Opcode: OpBulk, Operands: []byte{SubBulkHandshake}}
}

// BucketStart opens a bulk write into a bucket (reply 37 01).
func BucketStart(index uint8) Command {
	return Command{Name: "bucket-start", Opcode: OpBulk, Operands: []byte{SubBulkStart, index}, Ack: ReplyBulk, AckSub: SubBulkStart}
}

// BucketEnd closes the current bulk write (reply 37 02).
func BucketEnd() Command {
	return Command{Name: "bucket-end", Opcode: OpBulk, Operands: []byte{SubBulkEnd}, Ack: ReplyBulk, AckSub: SubBulkEnd}
}

// ---- SPEED ----

// ErrCurveLength is returned when a device curve is not exactly CurvePoints long.
var ErrCurveLength = errors.New("protocol: speed curve must have 40 points")

// SpeedCurve uploads a 40-point duty table (20..59 °C) for one channel.
// Each duty must already be within the channel limits.
func SpeedCurve(ch Channel, duties []uint8) (Command, error) {
	if len(duties) != CurvePoints {
		return Command{}, ErrCurveLength
	}
	for i, d := range duties {
		if err := ch.Validate(d); err != nil {
			return Command{}, fmt.Errorf("protocol: point %d (%d°C): %w", i, CurveMinTemp+i, err)
		}
	}

	ops := make([]byte, 0, 1+CurvePoints)
	ops = append(ops, ch.ID())
	ops = append(ops, duties...)

	return Command{Name: "set-speed", Opcode: OpSetSpeed, Operands: ops, Ack: ReplySpeed, AckSub: ReplySubOK}, nil
}

// FixedSpeed is a flat curve. The duty is clamped to the channel limits.
func FixedSpeed(ch Channel, duty int) Command {
	d := ch.Clamp(duty)

	duties := make([]uint8, CurvePoints)
	for i := range duties {
		duties[i] = d
	}

	// cannot fail: length and limits hold by construction
	cmd, _ := SpeedCurve(ch, duties)
	return cmd
}
