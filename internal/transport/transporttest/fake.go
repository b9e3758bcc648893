// internal/transport/transporttest/fake.go

// Package transporttest provides an in-memory cooler that speaks the control
// and bulk protocol well enough to drive every package above transport.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tamzrod/krakenctl/internal/protocol"
)

// EventKind separates control reports from bulk writes.
type EventKind int

const (
	EventCommand EventKind = iota
	EventBulk
)

// Event is one host-to-device write, in arrival order.
type Event struct {
	Kind  EventKind
	Op    byte
	Sub   byte
	Arg   byte // first operand after the sub-op (bucket index where relevant)
	Len   int
	Bytes []byte
}

// Triplet is one complete start/header/payload/end sequence.
type Triplet struct {
	Bucket int
	Type   protocol.AssetType
	Length int
}

// Link emulates one cooler.
type Link struct {
	mu sync.Mutex

	replies chan []byte
	events  []Event
	closed  bool

	regions  [protocol.BucketCount]protocol.Region
	status   protocol.Status
	lcd      protocol.LCDState
	firmware protocol.Firmware

	dropAcks  map[uint16]int
	failBulk  int
	bulkSeen  int
	bulkDelay time.Duration

	// bracket tracking
	open       bool
	openBucket int
	stage      int
	expectLen  int
	assetType  protocol.AssetType
	triplets   []Triplet
	violations []string
}

const (
	stageHeader = iota
	stagePayload
	stageEnd
)

// New returns an idle fake with all buckets empty.
func New() *Link {
	l := &Link{
		replies:  make(chan []byte, 256),
		dropAcks: map[uint16]int{},
		status:   protocol.Status{LiquidC: 30, PumpRPM: 2000, PumpDuty: 60, FanRPM: 900, FanDuty: 40},
		lcd:      protocol.LCDState{Brightness: 100},
		firmware: protocol.Firmware{Major: 2, Minor: 1, Patch: 7},
	}
	for i := range l.regions {
		l.regions[i].Index = i
	}
	return l
}

// ---- fault injection / fixtures ----

// DropAcks swallows the next n replies to (op, sub).
func (l *Link) DropAcks(op, sub byte, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropAcks[key(op, sub)] = n
}

// FailBulkAt makes the n-th bulk write from now come up short.
func (l *Link) FailBulkAt(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failBulk = l.bulkSeen + n
}

// SetBulkDelay slows every bulk write, widening race windows in tests.
func (l *Link) SetBulkDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bulkDelay = d
}

// SetRegion preloads a bucket.
func (l *Link) SetRegion(r protocol.Region) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.regions[r.Index] = r
}

// SetLiquid changes the reported coolant temperature.
func (l *Link) SetLiquid(c float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.LiquidC = c
}

// Inject queues an unsolicited report (e.g. a status broadcast).
func (l *Link) Inject(report []byte) {
	l.replies <- report
}

// ---- inspection ----

// Events returns a copy of every write seen so far.
func (l *Link) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Commands returns only control-channel events matching op (0 = all).
func (l *Link) Commands(op byte) []Event {
	var out []Event
	for _, e := range l.Events() {
		if e.Kind == EventCommand && (op == 0 || e.Op == op) {
			out = append(out, e)
		}
	}
	return out
}

// Triplets returns the completed bucket writes in order.
func (l *Link) Triplets() []Triplet {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Triplet, len(l.triplets))
	copy(out, l.triplets)
	return out
}

// Violations lists every ordering rule broken on the wire.
func (l *Link) Violations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.violations))
	copy(out, l.violations)
	return out
}

// Region returns the emulated state of one bucket.
func (l *Link) Region(i int) protocol.Region {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.regions[i]
}

// ---- transport.Link ----

var errClosed = errors.New("transporttest: link closed")

func (l *Link) WriteReport(ctx context.Context, report []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errClosed
	}
	if len(report) < 3 {
		return fmt.Errorf("transporttest: report too short (%d)", len(report))
	}

	b := append([]byte(nil), report...)
	ev := Event{Kind: EventCommand, Op: b[0], Sub: b[1], Arg: b[2], Len: len(b), Bytes: b}
	l.events = append(l.events, ev)

	l.track(ev)
	l.respond(b)
	return nil
}

func (l *Link) ReadReport(ctx context.Context, buf []byte) (int, error) {
	select {
	case r := <-l.replies:
		return copy(buf, r), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (l *Link) WriteBulk(ctx context.Context, data []byte) (int, error) {
	l.mu.Lock()
	delay := l.bulkDelay
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, errClosed
	}

	l.bulkSeen++
	n := len(data)
	if l.failBulk > 0 && l.bulkSeen == l.failBulk {
		n = len(data) / 2
	}

	l.events = append(l.events, Event{Kind: EventBulk, Len: n})
	l.trackBulk(data[:n])
	return n, nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// ------------------------------------------------------------
// emulation
// ------------------------------------------------------------

func key(op, sub byte) uint16 { return uint16(op)<<8 | uint16(sub) }

func (l *Link) reply(op, sub byte, fill func(r []byte)) {
	k := key(op, sub)
	if n := l.dropAcks[k]; n > 0 {
		l.dropAcks[k] = n - 1
		return
	}

	r := make([]byte, protocol.ReportLength)
	r[0], r[1] = op, sub
	if fill != nil {
		fill(r)
	}

	select {
	case l.replies <- r:
	default:
		// a real device drops reports nobody reads
	}
}

func (l *Link) statusFill(r []byte) {
	whole := int(l.status.LiquidC)
	r[15] = byte(whole)
	r[16] = byte(int((l.status.LiquidC-float64(whole))*10 + 0.5))
	r[17], r[18] = byte(l.status.PumpRPM), byte(l.status.PumpRPM>>8)
	r[19] = l.status.PumpDuty
	r[20] = l.status.FanDuty
	r[23], r[24] = byte(l.status.FanRPM), byte(l.status.FanRPM>>8)
}

func (l *Link) respond(b []byte) {
	op, sub := b[0], b[1]

	switch op {
	case protocol.OpFirmwareInfo:
		l.reply(protocol.ReplyFirmware, protocol.ReplySubOK, func(r []byte) {
			r[17], r[18], r[19] = l.firmware.Major, l.firmware.Minor, l.firmware.Patch
		})

	case protocol.OpStatus:
		l.reply(protocol.ReplyStatus, protocol.ReplySubOK, l.statusFill)

	case protocol.OpSetSpeed:
		duty := b[2]
		if protocol.Channel(sub) == protocol.ChannelPump {
			l.status.PumpDuty = duty
		} else {
			l.status.FanDuty = duty
		}
		l.reply(protocol.ReplySpeed, protocol.ReplySubOK, nil)

	case protocol.OpLCD:
		switch sub {
		case protocol.SubLCDInfo:
			l.reply(protocol.ReplyLCD, protocol.SubLCDInfo, func(r []byte) {
				r[0x18] = l.lcd.Brightness
				r[0x1A] = l.lcd.Orientation
			})
		case protocol.SubLCDConfig:
			l.lcd = protocol.LCDState{Brightness: b[3], Orientation: b[7]}
		case protocol.SubBucketQuery:
			idx := int(b[2])
			if idx >= protocol.BucketCount {
				return
			}
			reg := l.regions[idx]
			l.reply(protocol.ReplyLCD, protocol.SubBucketQuery, func(r []byte) {
				r[17], r[18] = byte(reg.StartPage), byte(reg.StartPage>>8)
				r[19], r[20] = byte(reg.SizePages), byte(reg.SizePages>>8)
			})
		}

	case protocol.OpBucket:
		idx := int(b[2])
		if idx >= protocol.BucketCount {
			return
		}
		switch sub {
		case protocol.SubBucketSet:
			l.regions[idx] = protocol.Region{
				Index:     idx,
				Exists:    true,
				StartPage: uint16(b[4]) | uint16(b[5])<<8,
				SizePages: uint16(b[6]) | uint16(b[7])<<8,
			}
		case protocol.SubBucketDelete:
			l.regions[idx] = protocol.Region{Index: idx}
		}
		l.reply(protocol.ReplyBucket, sub, nil)

	case protocol.OpBulk:
		if sub == protocol.SubBulkStart || sub == protocol.SubBulkEnd {
			l.reply(protocol.ReplyBulk, sub, nil)
		}

	case protocol.OpVisualMode:
		l.reply(protocol.ReplyVisualMode, protocol.ReplySubOK, nil)
	}
}

// ------------------------------------------------------------
// ordering rules: start -> header -> payload -> end, nothing in between
// ------------------------------------------------------------

func (l *Link) violate(format string, args ...any) {
	l.violations = append(l.violations, fmt.Sprintf(format, args...))
}

func (l *Link) track(ev Event) {
	isStart := ev.Op == protocol.OpBulk && ev.Sub == protocol.SubBulkStart
	isEnd := ev.Op == protocol.OpBulk && ev.Sub == protocol.SubBulkEnd

	switch {
	case isStart:
		if l.open {
			l.violate("bucket-start(%d) while bucket %d open", ev.Arg, l.openBucket)
		}
		l.open = true
		l.openBucket = int(ev.Arg)
		l.stage = stageHeader

	case isEnd:
		if !l.open || l.stage != stageEnd {
			l.violate("bucket-end without complete header+payload (open=%v stage=%d)", l.open, l.stage)
			l.open = false
			return
		}
		l.triplets = append(l.triplets, Triplet{Bucket: l.openBucket, Type: l.assetType, Length: l.expectLen})
		l.open = false

	default:
		if l.open {
			l.violate("command %02X %02X interleaved into bucket %d write", ev.Op, ev.Sub, l.openBucket)
		}
	}
}

func (l *Link) trackBulk(data []byte) {
	if !l.open {
		l.violate("bulk write of %d bytes outside a bucket bracket", len(data))
		return
	}

	switch l.stage {
	case stageHeader:
		h, err := protocol.DecodeBulkHeader(data)
		if err != nil || len(data) != protocol.HeaderSize {
			l.violate("expected bulk header, got %d bytes", len(data))
			return
		}
		l.assetType = h.Type
		l.expectLen = int(h.Length)
		l.stage = stagePayload

	case stagePayload:
		if len(data) != l.expectLen {
			l.violate("payload %d bytes, header declared %d", len(data), l.expectLen)
			return
		}
		l.stage = stageEnd

	default:
		l.violate("extra bulk write of %d bytes in bucket %d", len(data), l.openBucket)
	}
}
