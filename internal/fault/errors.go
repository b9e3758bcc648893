// internal/fault/errors.go
package fault

import (
	"context"
	"errors"
)

// Error taxonomy shared by every layer.
// Callers wrap these with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrAccessDenied      = errors.New("device access denied")
	ErrAckTimeout        = errors.New("ack timeout")
	ErrMalformedResponse = errors.New("malformed response")
	ErrShortWrite        = errors.New("short bulk write")
	ErrAssetDecode       = errors.New("asset decode error")
	ErrNoFreeBucket      = errors.New("no free bucket")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrSensor            = errors.New("sensor error")
	ErrDeviceClosed      = errors.New("device closed")
)

// ---- STATUS CODES ----

// Codes are exported through the status block and MUST stay stable.
const (
	CodeNone             uint16 = 0
	CodeGeneric          uint16 = 1
	CodeDeviceNotFound   uint16 = 10
	CodeAccessDenied     uint16 = 11
	CodeAckTimeout       uint16 = 12
	CodeMalformed        uint16 = 13
	CodeShortWrite       uint16 = 14
	CodeAssetDecode      uint16 = 15
	CodeNoFreeBucket     uint16 = 16
	CodeProtocolViolated uint16 = 17
	CodeSensor           uint16 = 18
	CodeDeviceClosed     uint16 = 19
)

var codes = []struct {
	err  error
	code uint16
}{
	{ErrDeviceNotFound, CodeDeviceNotFound},
	{ErrAccessDenied, CodeAccessDenied},
	{ErrAckTimeout, CodeAckTimeout},
	{ErrMalformedResponse, CodeMalformed},
	{ErrShortWrite, CodeShortWrite},
	{ErrAssetDecode, CodeAssetDecode},
	{ErrNoFreeBucket, CodeNoFreeBucket},
	{ErrProtocolViolation, CodeProtocolViolated},
	{ErrSensor, CodeSensor},
	{ErrDeviceClosed, CodeDeviceClosed},
}

// Code extracts a best-effort uint16 code from an error.
// Taxonomy errors map to fixed codes; errors exposing Code() uint16 pass through;
// anything else is CodeGeneric.
func Code(err error) uint16 {
	if err == nil {
		return CodeNone
	}

	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	type coder interface{ Code() uint16 }

	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}

	return CodeGeneric
}

// Recoverable reports whether a long-running loop should keep going after err.
// Only a closed device or cancellation ends a loop.
func Recoverable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrDeviceClosed) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
