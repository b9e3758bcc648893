// internal/bucket/allocator.go
package bucket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/transport"
)

// Count is the number of buckets on the device.
const Count = protocol.BucketCount

// State is the mirrored state of one bucket.
type State struct {
	Index     int
	Occupied  bool
	Protected bool
	Asset     protocol.AssetType
	StartPage uint16
	SizePages uint16
}

// Device is the guarded transport the allocator drives.
type Device interface {
	Exclusive(ctx context.Context, fn func(tx *transport.Tx) error) error
}

// Allocator owns the local occupancy mirror of the device buckets.
//
// The mirror is a hint: it is refreshed by List and by a successful Upload,
// and only ever changes after the device confirmed the change.
type Allocator struct {
	mu  sync.Mutex
	dev Device
	log *zap.Logger

	mirror [Count]State
	synced bool
	order  []int // upload order, oldest first
}

// New returns an allocator with an empty, unsynced mirror.
func New(dev Device, log *zap.Logger) (*Allocator, error) {
	if dev == nil {
		return nil, errors.New("bucket: device required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	a := &Allocator{dev: dev, log: log}
	for i := range a.mirror {
		a.mirror[i].Index = i
	}
	return a, nil
}

// ------------------------------------------------------------
// Queries
// ------------------------------------------------------------

// List queries every bucket on the device and refreshes the mirror.
// Protection flags are host-side and survive the refresh.
func (a *Allocator) List(ctx context.Context) ([Count]State, error) {
	var regions [Count]protocol.Region

	err := a.dev.Exclusive(ctx, func(tx *transport.Tx) error {
		for i := 0; i < Count; i++ {
			reply, err := sendRetry(ctx, tx, protocol.BucketQuery(uint8(i)))
			if err != nil {
				return fmt.Errorf("bucket %d query: %w", i, err)
			}
			r, err := protocol.ParseBucketInfo(i, reply)
			if err != nil {
				return err
			}
			regions[i] = r
		}
		return nil
	})
	if err != nil {
		return [Count]State{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, r := range regions {
		st := &a.mirror[i]
		st.Occupied = r.Exists
		st.StartPage = r.StartPage
		st.SizePages = r.SizePages
		if !r.Exists {
			st.Asset = 0
			a.dropOrder(i)
		} else if !a.inOrder(i) {
			a.order = append(a.order, i)
		}
	}
	a.synced = true
	return a.mirror, nil
}

// Snapshot returns the mirror without touching the device.
func (a *Allocator) Snapshot() [Count]State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mirror
}

// SelectTarget picks the bucket for the next upload: the hint when it is in
// range and not protected, else the lowest empty unprotected bucket.
// ErrNoFreeBucket leaves the decision to overwrite with the caller.
func (a *Allocator) SelectTarget(hint *int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectLocked(hint)
}

func (a *Allocator) selectLocked(hint *int) (int, error) {
	if hint != nil && *hint >= 0 && *hint < Count && !a.mirror[*hint].Protected {
		return *hint, nil
	}
	for i, st := range a.mirror {
		if !st.Occupied && !st.Protected {
			return i, nil
		}
	}
	return -1, fault.ErrNoFreeBucket
}

// Acquire is SelectTarget that falls back to the oldest unprotected upload.
func (a *Allocator) Acquire(hint *int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, err := a.selectLocked(hint)
	if err == nil {
		return idx, nil
	}
	if old, ok := a.oldestLocked(); ok {
		a.log.Debug("overwriting oldest bucket", zap.Int("bucket", old))
		return old, nil
	}
	return -1, err
}

// Oldest returns the least recently uploaded unprotected bucket.
func (a *Allocator) Oldest() (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.oldestLocked()
}

func (a *Allocator) oldestLocked() (int, bool) {
	for _, i := range a.order {
		if !a.mirror[i].Protected {
			return i, true
		}
	}
	return -1, false
}

// Protect marks a bucket as not selectable (e.g. it is on screen).
func (a *Allocator) Protect(index int, on bool) {
	if index < 0 || index >= Count {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mirror[index].Protected = on
}

// ------------------------------------------------------------
// Mutations
// ------------------------------------------------------------

// Upload writes one asset into a bucket as a single guarded sequence:
// handshake, delete, setup, start, header, payload, end.
//
// The mirror is updated only after the end ack. On any failure the mirror is
// left exactly as it was and the device content of the bucket is unknown.
func (a *Allocator) Upload(ctx context.Context, index int, h protocol.BulkHeader, payload []byte) error {
	if index < 0 || index >= Count {
		return fmt.Errorf("bucket: index %d out of range 0-%d", index, Count-1)
	}
	if err := h.CheckPayload(payload); err != nil {
		return err
	}
	if err := protocol.CheckSize(len(payload)); err != nil {
		return err
	}

	if !a.isSynced() {
		if _, err := a.List(ctx); err != nil {
			return fmt.Errorf("bucket: refresh before upload: %w", err)
		}
	}

	a.mu.Lock()
	regions := a.regionsLocked()
	a.mu.Unlock()

	pages := protocol.PageCount(len(payload))
	start := protocol.MemoryOffset(regions, index, pages)
	header := protocol.EncodeBulkHeader(h.Type, h.Length)

	log := a.log.With(
		zap.Int("bucket", index),
		zap.Stringer("asset", h.Type),
		zap.Int("bytes", len(payload)),
	)

	err := a.dev.Exclusive(ctx, func(tx *transport.Tx) error {
		if _, err := tx.SendCommand(ctx, protocol.BulkHandshake()); err != nil {
			return err
		}
		if _, err := sendRetry(ctx, tx, protocol.BucketDelete(uint8(index))); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if _, err := sendRetry(ctx, tx, protocol.BucketSetup(uint8(index), start, pages)); err != nil {
			return fmt.Errorf("setup: %w", err)
		}

		// ---- bracketed transfer: nothing else may reach the device ----
		// Cancellation is not honoured inside the bracket; timeouts still are.
		bctx := context.WithoutCancel(ctx)
		if _, err := sendRetry(bctx, tx, protocol.BucketStart(uint8(index))); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		if err := tx.WriteBulk(bctx, header[:]); err != nil {
			return fmt.Errorf("header: %w", err)
		}
		if err := tx.WriteBulk(bctx, payload); err != nil {
			return fmt.Errorf("payload: %w", err)
		}
		if _, err := sendRetry(bctx, tx, protocol.BucketEnd()); err != nil {
			return fmt.Errorf("end: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Warn("upload failed", zap.Error(err))
		a.mu.Lock()
		a.synced = false
		a.mu.Unlock()
		return fmt.Errorf("bucket %d upload: %w", index, err)
	}

	a.mu.Lock()
	st := &a.mirror[index]
	st.Occupied = true
	st.Asset = h.Type
	st.StartPage = start
	st.SizePages = pages
	a.dropOrder(index)
	a.order = append(a.order, index)
	a.mu.Unlock()

	log.Debug("upload committed", zap.Uint16("start_page", start), zap.Uint16("pages", pages))
	return nil
}

// UploadAsset builds the header for payload and uploads it.
func (a *Allocator) UploadAsset(ctx context.Context, index int, t protocol.AssetType, payload []byte) error {
	return a.Upload(ctx, index, protocol.BulkHeader{Type: t, Length: uint32(len(payload))}, payload)
}

// Delete frees one bucket.
func (a *Allocator) Delete(ctx context.Context, index int) error {
	if index < 0 || index >= Count {
		return fmt.Errorf("bucket: index %d out of range 0-%d", index, Count-1)
	}

	err := a.dev.Exclusive(ctx, func(tx *transport.Tx) error {
		_, err := sendRetry(ctx, tx, protocol.BucketDelete(uint8(index)))
		return err
	})
	if err != nil {
		return fmt.Errorf("bucket %d delete: %w", index, err)
	}

	a.mu.Lock()
	a.mirror[index] = State{Index: index, Protected: a.mirror[index].Protected}
	a.dropOrder(index)
	a.mu.Unlock()
	return nil
}

// ClearAll deletes every bucket and resets the mirror regardless of outcome.
// It does not query first: it exists to recover from a mirror that may be wrong.
func (a *Allocator) ClearAll(ctx context.Context) error {
	var errs []error

	err := a.dev.Exclusive(ctx, func(tx *transport.Tx) error {
		for i := 0; i < Count; i++ {
			if _, err := sendRetry(ctx, tx, protocol.BucketDelete(uint8(i))); err != nil {
				if !fault.Recoverable(err) {
					return err
				}
				errs = append(errs, fmt.Errorf("bucket %d: %w", i, err))
			}
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}

	a.mu.Lock()
	for i := range a.mirror {
		a.mirror[i] = State{Index: i}
	}
	a.order = a.order[:0]
	a.synced = len(errs) == 0
	a.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("bucket: clear all: %w", errors.Join(errs...))
	}
	return nil
}

// ------------------------------------------------------------
// helpers
// ------------------------------------------------------------

// sendRetry re-issues a command once after a transient ack timeout.
func sendRetry(ctx context.Context, tx *transport.Tx, cmd protocol.Command) ([]byte, error) {
	reply, err := tx.SendCommand(ctx, cmd)
	if errors.Is(err, fault.ErrAckTimeout) {
		reply, err = tx.SendCommand(ctx, cmd)
	}
	return reply, err
}

func (a *Allocator) isSynced() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.synced
}

func (a *Allocator) regionsLocked() []protocol.Region {
	out := make([]protocol.Region, 0, Count)
	for _, st := range a.mirror {
		out = append(out, protocol.Region{
			Index:     st.Index,
			Exists:    st.Occupied,
			StartPage: st.StartPage,
			SizePages: st.SizePages,
		})
	}
	return out
}

func (a *Allocator) inOrder(index int) bool {
	for _, i := range a.order {
		if i == index {
			return true
		}
	}
	return false
}

func (a *Allocator) dropOrder(index int) {
	for n, i := range a.order {
		if i == index {
			a.order = append(a.order[:n], a.order[n+1:]...)
			return
		}
	}
}
