// internal/protocol/bulk.go
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tamzrod/krakenctl/internal/fault"
)

// BulkHeader precedes every asset payload on the bulk channel.
//
// Layout (20 bytes):
//
//	magic[0..12] asset_type[12] padding[13..16]=0 length_le[16..20]
type BulkHeader struct {
	Type   AssetType
	Length uint32
}

// EncodeBulkHeader builds the fixed 20-byte header.
// No IO. No side effects.
func EncodeBulkHeader(t AssetType, length uint32) [HeaderSize]byte {
	var out [HeaderSize]byte
	copy(out[0:12], bulkMagic[:])
	out[12] = byte(t)
	// 13..15 stay zero
	binary.LittleEndian.PutUint32(out[16:20], length)
	return out
}

// DecodeBulkHeader parses a header produced by EncodeBulkHeader.
func DecodeBulkHeader(b []byte) (BulkHeader, error) {
	if len(b) < HeaderSize {
		return BulkHeader{}, fmt.Errorf("bulk header: %d bytes: %w", len(b), fault.ErrMalformedResponse)
	}
	if !bytes.Equal(b[0:12], bulkMagic[:]) {
		return BulkHeader{}, fmt.Errorf("bulk header: bad magic: %w", fault.ErrMalformedResponse)
	}
	if b[13] != 0 || b[14] != 0 || b[15] != 0 {
		return BulkHeader{}, fmt.Errorf("bulk header: non-zero padding: %w", fault.ErrMalformedResponse)
	}
	return BulkHeader{
		Type:   AssetType(b[12]),
		Length: binary.LittleEndian.Uint32(b[16:20]),
	}, nil
}

// CheckPayload enforces that the declared length matches the payload exactly.
func (h BulkHeader) CheckPayload(payload []byte) error {
	if uint64(len(payload)) != uint64(h.Length) {
		return fmt.Errorf("bulk header declares %d bytes, payload has %d: %w",
			h.Length, len(payload), fault.ErrProtocolViolation)
	}
	return nil
}
