// internal/kraken/cooler_test.go
package kraken

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/transport"
	"github.com/tamzrod/krakenctl/internal/transport/transporttest"
)

func newCooler(t *testing.T) (*Cooler, *transporttest.Link) {
	t.Helper()

	link := transporttest.New()
	dev, err := transport.New(link, transport.Config{AckTimeout: 20 * time.Millisecond, Retries: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	c, err := New(dev, nil)
	require.NoError(t, err)
	c.SetSettle(0)
	return c, link
}

func TestInitialize(t *testing.T) {
	c, link := newCooler(t)

	fw, err := c.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.Firmware{Major: 2, Minor: 1, Patch: 7}, fw)
	assert.Equal(t, fw, c.Firmware())

	init := link.Commands(protocol.OpInit)
	require.Len(t, init, 2)
	assert.Equal(t, []byte{0x70, 0x02, 0x01, 0xB8, 0x01}, init[0].Bytes[:5])
	assert.Equal(t, []byte{0x70, 0x01}, init[1].Bytes[:2])
}

func TestInitialize_SilentFirmwareIsNotFatal(t *testing.T) {
	c, link := newCooler(t)
	link.DropAcks(protocol.ReplyFirmware, protocol.ReplySubOK, 5)

	fw, err := c.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.Firmware{}, fw)
}

func TestStatus(t *testing.T) {
	c, link := newCooler(t)
	link.SetLiquid(33.5)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 33.5, st.LiquidC, 0.05)
	assert.Equal(t, uint16(2000), st.PumpRPM)
}

func TestSetFixedSpeed_ClampsPumpFloor(t *testing.T) {
	c, link := newCooler(t)

	require.NoError(t, c.SetFixedSpeed(context.Background(), protocol.ChannelPump, 10))

	cmds := link.Commands(protocol.OpSetSpeed)
	require.Len(t, cmds, 1)
	assert.Equal(t, byte(protocol.ChannelPump), cmds[0].Sub)
	assert.Equal(t, byte(20), cmds[0].Bytes[2])
}

func TestSetBrightnessKeepsOrientation(t *testing.T) {
	c, _ := newCooler(t)
	ctx := context.Background()

	require.NoError(t, c.SetLCD(ctx, 50, 3))
	require.NoError(t, c.SetBrightness(ctx, 20))

	st, err := c.LCDInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.LCDState{Brightness: 20, Orientation: 3}, st)

	require.NoError(t, c.SetOrientation(ctx, 1))
	st, _ = c.LCDInfo(ctx)
	assert.Equal(t, protocol.LCDState{Brightness: 20, Orientation: 1}, st)
}

func TestApplyLCDProfile(t *testing.T) {
	c, link := newCooler(t)

	p, err := LookupLCDProfile("NIGHT")
	require.NoError(t, err)
	require.NoError(t, c.ApplyLCDProfile(context.Background(), p))

	modes := link.Commands(protocol.OpVisualMode)
	require.Len(t, modes, 1)
	assert.Equal(t, protocol.ModeLiquid, modes[0].Arg)

	_, err = LookupLCDProfile("disco")
	assert.Error(t, err)
}

func TestSetHostInfoRounds(t *testing.T) {
	c, link := newCooler(t)

	require.NoError(t, c.SetHostInfo(context.Background(), 54.6, -3))
	cmds := link.Commands(protocol.OpHostInfo)
	require.Len(t, cmds, 1)
	assert.Equal(t, []byte{0x73, 0x01, 55, 0}, cmds[0].Bytes[:4])
}
