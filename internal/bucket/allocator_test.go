// internal/bucket/allocator_test.go
package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/transport"
	"github.com/tamzrod/krakenctl/internal/transport/transporttest"
)

func newAllocator(t *testing.T) (*Allocator, *transporttest.Link) {
	t.Helper()

	link := transporttest.New()
	dev, err := transport.New(link, transport.Config{AckTimeout: 15 * time.Millisecond, Retries: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	a, err := New(dev, nil)
	require.NoError(t, err)
	return a, link
}

func occupy(link *transporttest.Link, idx int, start uint16) {
	link.SetRegion(protocol.Region{Index: idx, Exists: true, StartPage: start, SizePages: 401})
}

func TestList_ReflectsDevice(t *testing.T) {
	a, link := newAllocator(t)
	occupy(link, 0, 0)
	occupy(link, 5, 401)

	states, err := a.List(context.Background())
	require.NoError(t, err)

	for i, st := range states {
		assert.Equal(t, i == 0 || i == 5, st.Occupied, "bucket %d", i)
	}
	assert.Equal(t, uint16(401), states[5].StartPage)
	assert.Len(t, link.Commands(protocol.OpLCD), Count)
}

func TestSelectTarget_LowestEmpty(t *testing.T) {
	a, link := newAllocator(t)
	occupy(link, 0, 0)
	occupy(link, 2, 401)
	_, err := a.List(context.Background())
	require.NoError(t, err)

	// [Occupied, Empty, Occupied, Empty, ...]
	idx, err := a.SelectTarget(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestSelectTarget_Hint(t *testing.T) {
	a, link := newAllocator(t)
	occupy(link, 3, 0)
	_, err := a.List(context.Background())
	require.NoError(t, err)

	hint := 3
	idx, err := a.SelectTarget(&hint)
	require.NoError(t, err)
	assert.Equal(t, 3, idx, "occupied but unprotected hint is honoured")

	a.Protect(3, true)
	idx, err = a.SelectTarget(&hint)
	require.NoError(t, err)
	assert.Equal(t, 0, idx, "protected hint falls back to lowest empty")

	bad := 99
	idx, err = a.SelectTarget(&bad)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestSelectTarget_NoFreeBucket(t *testing.T) {
	a, link := newAllocator(t)
	for i := 0; i < Count; i++ {
		occupy(link, i, uint16(i*401))
	}
	_, err := a.List(context.Background())
	require.NoError(t, err)

	_, err = a.SelectTarget(nil)
	assert.ErrorIs(t, err, fault.ErrNoFreeBucket)
}

func TestUpload_CommitsMirror(t *testing.T) {
	a, link := newAllocator(t)
	ctx := context.Background()

	payload := make([]byte, protocol.FrameSize)
	require.NoError(t, a.UploadAsset(ctx, 4, protocol.AssetStatic, payload))

	st := a.Snapshot()[4]
	assert.True(t, st.Occupied)
	assert.Equal(t, protocol.AssetStatic, st.Asset)
	assert.Equal(t, uint16(401), st.SizePages)

	trip := link.Triplets()
	require.Len(t, trip, 1)
	assert.Equal(t, transporttest.Triplet{Bucket: 4, Type: protocol.AssetStatic, Length: protocol.FrameSize}, trip[0])
	assert.Empty(t, link.Violations())

	// second asset goes after the first in LCD memory
	require.NoError(t, a.UploadAsset(ctx, 5, protocol.AssetStatic, payload))
	assert.Equal(t, uint16(401), a.Snapshot()[5].StartPage)
	assert.Equal(t, uint16(401), link.Region(5).StartPage)
}

func TestUpload_FailureLeavesMirrorUnchanged(t *testing.T) {
	a, link := newAllocator(t)
	ctx := context.Background()
	occupy(link, 1, 0)
	_, err := a.List(ctx)
	require.NoError(t, err)

	before := a.Snapshot()

	// header goes through, payload comes up short
	link.FailBulkAt(2)
	err = a.UploadAsset(ctx, 3, protocol.AssetStatic, make([]byte, 1000))
	require.ErrorIs(t, err, fault.ErrShortWrite)

	if diff := cmp.Diff(before, a.Snapshot()); diff != "" {
		t.Fatalf("mirror changed after failed upload (-before +after):\n%s", diff)
	}
}

func TestUpload_AckTimeoutOnEndLeavesMirrorUnchanged(t *testing.T) {
	a, link := newAllocator(t)
	ctx := context.Background()
	_, err := a.List(ctx)
	require.NoError(t, err)
	before := a.Snapshot()

	link.DropAcks(protocol.ReplyBulk, protocol.SubBulkEnd, 10)
	err = a.UploadAsset(ctx, 0, protocol.AssetStatic, make([]byte, 10))
	require.ErrorIs(t, err, fault.ErrAckTimeout)

	assert.Equal(t, before, a.Snapshot())
}

func TestUpload_RetriesTransientAckTimeout(t *testing.T) {
	a, link := newAllocator(t)
	ctx := context.Background()
	_, err := a.List(ctx)
	require.NoError(t, err)

	// the device layer gives up after two sends; the allocator tries once more
	link.DropAcks(protocol.ReplyBucket, protocol.SubBucketSet, 2)
	require.NoError(t, a.UploadAsset(ctx, 0, protocol.AssetStatic, make([]byte, 10)))
	assert.True(t, a.Snapshot()[0].Occupied)
}

func TestUpload_HeaderMismatchIsProtocolViolation(t *testing.T) {
	a, link := newAllocator(t)

	err := a.Upload(context.Background(), 0, protocol.BulkHeader{Type: protocol.AssetStatic, Length: 10}, make([]byte, 11))
	assert.ErrorIs(t, err, fault.ErrProtocolViolation)
	assert.Empty(t, link.Events(), "no device I/O on a mismatched header")
}

func TestUpload_OversizedAssetRejectedBeforeIO(t *testing.T) {
	a, link := newAllocator(t)

	payload := make([]byte, protocol.MemoryPages*protocol.PageSize)
	err := a.UploadAsset(context.Background(), 0, protocol.AssetGIF, payload)
	assert.ErrorIs(t, err, fault.ErrAssetDecode)
	assert.Empty(t, link.Events(), "no device I/O for an asset larger than LCD memory")
	assert.False(t, a.Snapshot()[0].Occupied)
}

func TestUpload_RejectsBadIndex(t *testing.T) {
	a, _ := newAllocator(t)
	assert.Error(t, a.UploadAsset(context.Background(), Count, protocol.AssetStatic, nil))
}

func TestClearAll_ThenListIsEmpty(t *testing.T) {
	a, link := newAllocator(t)
	ctx := context.Background()
	for _, i := range []int{0, 3, 7, 15} {
		occupy(link, i, uint16(i*401))
	}
	_, err := a.List(ctx)
	require.NoError(t, err)

	require.NoError(t, a.ClearAll(ctx))

	states, err := a.List(ctx)
	require.NoError(t, err)
	for _, st := range states {
		assert.False(t, st.Occupied, "bucket %d", st.Index)
	}
}

func TestClearAll_ResetsMirrorEvenOnError(t *testing.T) {
	a, link := newAllocator(t)
	ctx := context.Background()
	occupy(link, 2, 0)
	_, err := a.List(ctx)
	require.NoError(t, err)

	link.DropAcks(protocol.ReplyBucket, protocol.SubBucketDelete, 100)
	err = a.ClearAll(ctx)
	assert.ErrorIs(t, err, fault.ErrAckTimeout)

	for _, st := range a.Snapshot() {
		assert.False(t, st.Occupied)
	}
}

func TestAcquire_FallsBackToOldest(t *testing.T) {
	a, _ := newAllocator(t)
	ctx := context.Background()

	for i := 0; i < Count; i++ {
		require.NoError(t, a.UploadAsset(ctx, i, protocol.AssetStatic, make([]byte, 8)))
	}

	a.Protect(0, true)
	idx, err := a.Acquire(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "bucket 0 is protected, 1 is the next oldest")

	// re-uploading 1 makes 2 the oldest
	require.NoError(t, a.UploadAsset(ctx, 1, protocol.AssetStatic, make([]byte, 8)))
	old, ok := a.Oldest()
	require.True(t, ok)
	assert.Equal(t, 2, old)
}

func TestDelete(t *testing.T) {
	a, link := newAllocator(t)
	ctx := context.Background()
	require.NoError(t, a.UploadAsset(ctx, 6, protocol.AssetStatic, make([]byte, 8)))

	require.NoError(t, a.Delete(ctx, 6))
	assert.False(t, a.Snapshot()[6].Occupied)
	assert.False(t, link.Region(6).Exists)
}
