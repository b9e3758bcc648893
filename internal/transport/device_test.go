// internal/transport/device_test.go
package transport_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/transport"
	"github.com/tamzrod/krakenctl/internal/transport/transporttest"
)

func newDevice(t *testing.T) (*transport.Device, *transporttest.Link) {
	t.Helper()

	link := transporttest.New()
	d, err := transport.New(link, transport.Config{
		AckTimeout:  20 * time.Millisecond,
		Retries:     1,
		BulkTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, link
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := transport.New(nil, transport.DefaultConfig(), nil)
	assert.Error(t, err)

	_, err = transport.New(transporttest.New(), transport.Config{}, nil)
	assert.Error(t, err)
}

func TestSendCommand_ReturnsMatchingAck(t *testing.T) {
	d, _ := newDevice(t)

	reply, err := d.SendCommand(context.Background(), protocol.BucketStart(3))
	require.NoError(t, err)
	assert.Equal(t, protocol.ReplyBulk, reply[0])
	assert.Equal(t, protocol.SubBulkStart, reply[1])
}

func TestSendCommand_SkipsUnrelatedReports(t *testing.T) {
	d, link := newDevice(t)

	noise := make([]byte, protocol.ReportLength)
	noise[0], noise[1] = protocol.ReplyStatus, protocol.ReplySubOK
	link.Inject(noise)
	link.Inject(noise)

	reply, err := d.SendCommand(context.Background(), protocol.FirmwareInfo())
	require.NoError(t, err)

	fw, err := protocol.ParseFirmware(reply)
	require.NoError(t, err)
	assert.Equal(t, "2.1.7", fw.String())
}

func TestSendCommand_RetriesThenSucceeds(t *testing.T) {
	d, link := newDevice(t)
	link.DropAcks(protocol.ReplyBulk, protocol.SubBulkEnd, 1)

	_, err := d.SendCommand(context.Background(), protocol.BucketEnd())
	require.NoError(t, err)

	// first send + one re-send
	assert.Len(t, link.Commands(protocol.OpBulk), 2)
}

func TestSendCommand_AckTimeout(t *testing.T) {
	d, link := newDevice(t)
	link.DropAcks(protocol.ReplyBulk, protocol.SubBulkEnd, 10)

	_, err := d.SendCommand(context.Background(), protocol.BucketEnd())
	assert.ErrorIs(t, err, fault.ErrAckTimeout)
	assert.Len(t, link.Commands(protocol.OpBulk), 2)
}

func TestSendCommand_FireAndForget(t *testing.T) {
	d, link := newDevice(t)

	reply, err := d.SendCommand(context.Background(), protocol.InitComplete())
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Len(t, link.Commands(protocol.OpInit), 1)
}

func TestWriteBulk_ShortWriteIsFatal(t *testing.T) {
	d, link := newDevice(t)
	link.FailBulkAt(1)

	err := d.Exclusive(context.Background(), func(tx *transport.Tx) error {
		if _, err := tx.SendCommand(context.Background(), protocol.BucketStart(0)); err != nil {
			return err
		}
		h := protocol.EncodeBulkHeader(protocol.AssetStatic, 4)
		return tx.WriteBulk(context.Background(), h[:])
	})
	assert.ErrorIs(t, err, fault.ErrShortWrite)
}

func TestClose_InvalidatesHandle(t *testing.T) {
	d, _ := newDevice(t)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err := d.SendCommand(context.Background(), protocol.BucketEnd())
	assert.ErrorIs(t, err, fault.ErrDeviceClosed)

	err = d.WriteBulk(context.Background(), []byte{1})
	assert.ErrorIs(t, err, fault.ErrDeviceClosed)
	assert.True(t, d.Closed())
}

func TestTx_UnusableAfterRelease(t *testing.T) {
	d, _ := newDevice(t)

	var leaked *transport.Tx
	require.NoError(t, d.Exclusive(context.Background(), func(tx *transport.Tx) error {
		leaked = tx
		return nil
	}))

	_, err := leaked.SendCommand(context.Background(), protocol.BucketEnd())
	assert.Error(t, err)
}

func TestExclusive_SerializesCallers(t *testing.T) {
	d, link := newDevice(t)
	link.SetBulkDelay(2 * time.Millisecond)

	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx uint8) {
			defer wg.Done()
			errs <- d.Exclusive(context.Background(), func(tx *transport.Tx) error {
				ctx := context.Background()
				if _, err := tx.SendCommand(ctx, protocol.BucketStart(idx)); err != nil {
					return err
				}
				payload := make([]byte, 64)
				h := protocol.EncodeBulkHeader(protocol.AssetStatic, uint32(len(payload)))
				if err := tx.WriteBulk(ctx, h[:]); err != nil {
					return err
				}
				if err := tx.WriteBulk(ctx, payload); err != nil {
					return err
				}
				_, err := tx.SendCommand(ctx, protocol.BucketEnd())
				return err
			})
		}(uint8(i))
	}

	// interleave plain commands from another goroutine
	for i := 0; i < 10; i++ {
		_, err := d.SendCommand(context.Background(), protocol.VisualMode(protocol.ModeBucket, 0))
		require.NoError(t, err)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Empty(t, link.Violations())
	assert.Len(t, link.Triplets(), writers)
}

func TestExclusive_HonoursCancellationWhileWaiting(t *testing.T) {
	d, _ := newDevice(t)

	hold := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = d.Exclusive(context.Background(), func(tx *transport.Tx) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := d.Exclusive(ctx, func(tx *transport.Tx) error { return nil })
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	close(hold)
}

func TestTx_DrainDiscardsPendingReports(t *testing.T) {
	d, link := newDevice(t)

	noise := make([]byte, protocol.ReportLength)
	noise[0], noise[1] = protocol.ReplyStatus, protocol.ReplySubOK
	for i := 0; i < 3; i++ {
		link.Inject(noise)
	}

	ctx := context.Background()
	err := d.Exclusive(ctx, func(tx *transport.Tx) error {
		if err := tx.Drain(ctx, time.Millisecond); err != nil {
			return err
		}
		_, err := tx.ReadReport(ctx, 5*time.Millisecond)
		return err
	})
	assert.True(t, errors.Is(err, fault.ErrAckTimeout), "got %v", err)
}

func TestTx_ReadReportReturnsInjected(t *testing.T) {
	d, link := newDevice(t)

	want := make([]byte, protocol.ReportLength)
	want[0], want[1] = protocol.ReplyStatus, protocol.ReplySubOK
	link.Inject(want)

	var got []byte
	err := d.Exclusive(context.Background(), func(tx *transport.Tx) error {
		r, err := tx.ReadReport(context.Background(), 50*time.Millisecond)
		got = append(got, r...)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTx_DrainStopsAtLimit(t *testing.T) {
	d, link := newDevice(t)

	noise := make([]byte, protocol.ReportLength)
	noise[0], noise[1] = protocol.ReplyStatus, protocol.ReplySubOK
	for i := 0; i < transport.MaxDrain+5; i++ {
		link.Inject(noise)
	}

	ctx := context.Background()
	err := d.Exclusive(ctx, func(tx *transport.Tx) error {
		if err := tx.Drain(ctx, time.Millisecond); err != nil {
			return err
		}
		for i := 0; i < 5; i++ {
			if _, err := tx.ReadReport(ctx, 50*time.Millisecond); err != nil {
				return err
			}
		}
		_, err := tx.ReadReport(ctx, 5*time.Millisecond)
		return err
	})
	assert.True(t, errors.Is(err, fault.ErrAckTimeout), "got %v", err)
}
