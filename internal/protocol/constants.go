// internal/protocol/constants.go
package protocol

// Kraken Z wire constants.
// These values define the protocol and MUST NOT be configurable.

// ---- DEVICE IDENTITY ----

const (
	VendorID  uint16 = 0x1E71
	ProductID uint16 = 0x3008
)

// ---- CONTROL CHANNEL ----

// ReportLength is the fixed HID report size for reads and writes.
const ReportLength = 64

// ---- LCD GEOMETRY ----

const (
	LCDWidth      = 320
	LCDHeight     = 320
	BytesPerPixel = 4

	// FrameSize is the byte length of one raw RGBA frame.
	FrameSize = LCDWidth * LCDHeight * BytesPerPixel
)

// ---- LCD MEMORY ----

const (
	// BucketCount is the number of on-device asset slots.
	BucketCount = 16

	// PageSize is the allocation unit of LCD memory.
	PageSize = 1024

	// MemoryPages is the total LCD memory in pages.
	MemoryPages = 24320
)

// ---- BULK CHANNEL ----

const (
	BulkInterface = 0
	BulkEndpoint  = 0x02

	// HeaderSize is the fixed bulk asset header length.
	HeaderSize = 20
)

// bulkMagic opens every bulk asset header.
var bulkMagic = [12]byte{0x12, 0xFA, 0x01, 0xE8, 0xAB, 0xCD, 0xEF, 0x98, 0x76, 0x54, 0x32, 0x10}

// AssetType is the bulk header asset-type code.
type AssetType byte

const (
	AssetGIF    AssetType = 0x01
	AssetStatic AssetType = 0x02
)

func (t AssetType) String() string {
	switch t {
	case AssetGIF:
		return "gif"
	case AssetStatic:
		return "static"
	default:
		return "unknown"
	}
}

// ---- SPEED CURVES ----

const (
	// CurvePoints is the number of duties in a device curve (20..59 °C).
	CurvePoints = 40

	CurveMinTemp = 20

	// CriticalTemp is the device-enforced upper curve temperature.
	CriticalTemp = CurveMinTemp + CurvePoints - 1
)

// ---- OPCODES (host -> device) ----

const (
	OpFirmwareInfo byte = 0x10
	OpLEDInfo      byte = 0x20
	OpLCD          byte = 0x30
	OpBucket       byte = 0x32
	OpBulk         byte = 0x36
	OpVisualMode   byte = 0x38
	OpInit         byte = 0x70
	OpSetSpeed     byte = 0x72
	OpHostInfo     byte = 0x73
	OpStatus       byte = 0x74
)

// ---- SUB-OPERATIONS ----

const (
	SubLCDInfo     byte = 0x01
	SubLCDConfig   byte = 0x02
	SubBucketQuery byte = 0x04

	SubBucketSet    byte = 0x01
	SubBucketDelete byte = 0x02

	SubBulkStart     byte = 0x01
	SubBulkEnd       byte = 0x02
	SubBulkHandshake byte = 0x03
)

// ---- REPLY OPCODES (device -> host) ----

const (
	ReplyFirmware   byte = 0x11
	ReplyLEDInfo    byte = 0x21
	ReplyLCD        byte = 0x31
	ReplyBucket     byte = 0x33
	ReplyBulk       byte = 0x37
	ReplyVisualMode byte = 0x39
	ReplyStatusAlt  byte = 0x71
	ReplyStatus     byte = 0x75
	ReplySpeed      byte = 0xFF

	ReplySubOK  byte = 0x01
	ReplyAnySub byte = 0x00
)

// ---- VISUAL MODES ----

const (
	ModeBlank  byte = 0
	ModeCPU    byte = 1
	ModeLiquid byte = 2
	ModeGPU    byte = 3
	ModeBucket byte = 4
)
