// internal/protocol/memory.go
package protocol

import (
	"fmt"

	"github.com/tamzrod/krakenctl/internal/fault"
)

// Region is the LCD memory range assigned to one bucket, in pages.
type Region struct {
	Index     int
	Exists    bool
	StartPage uint16
	SizePages uint16
}

// End is the first page after the region.
func (r Region) End() int {
	return int(r.StartPage) + int(r.SizePages)
}

// PageCount is the number of pages needed for a payload plus its bulk header.
// Callers check the payload with CheckSize first.
func PageCount(payloadLen int) uint16 {
	return uint16(pages(payloadLen))
}

// CheckSize rejects a payload that does not fit the LCD memory.
func CheckSize(payloadLen int) error {
	if n := pages(payloadLen); n > MemoryPages {
		return fmt.Errorf("protocol: asset needs %d pages, memory holds %d: %w", n, MemoryPages, fault.ErrAssetDecode)
	}
	return nil
}

func pages(payloadLen int) int {
	return (payloadLen + HeaderSize + PageSize - 1) / PageSize
}

// MemoryOffset picks the start page for writing `need` pages into bucket target.
//
// Order:
//  1. reuse the target's own region if it is large enough
//  2. append after the highest occupied region of the other buckets
//  3. otherwise start at 0; the device overwrites whatever lived there
func MemoryOffset(regions []Region, target int, need uint16) uint16 {
	for _, r := range regions {
		if r.Index == target && r.Exists && r.SizePages >= need {
			return r.StartPage
		}
	}

	maxEnd := 0
	for _, r := range regions {
		if r.Exists && r.Index != target && r.End() > maxEnd {
			maxEnd = r.End()
		}
	}

	if maxEnd+int(need) <= MemoryPages {
		return uint16(maxEnd)
	}
	return 0
}
