package tx

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rlc/rlcam/pkg/config"
	"github.com/go-rlc/rlcam/pkg/status"
	"github.com/go-rlc/rlcam/pkg/wire"
)

type noStatus struct{}

func (noStatus) TryServiceStatus(int) ([]byte, bool) { return nil, false }
func (noStatus) PendingStatusSize() int              { return 0 }

type collectingPDCP struct {
	delivered [][]uint32
	failed    [][]uint32
}

func (c *collectingPDCP) NotifyDelivery(lcid uint32, pdcpSNs []uint32) {
	c.delivered = append(c.delivered, append([]uint32(nil), pdcpSNs...))
}
func (c *collectingPDCP) NotifyFailure(lcid uint32, pdcpSNs []uint32) {
	c.failed = append(c.failed, append([]uint32(nil), pdcpSNs...))
}

type collectingRRC struct {
	maxRetxCount int
}

func (c *collectingRRC) MaxRetxAttempted(lcid uint32) { c.maxRetxCount++ }

func newTestEntity(t *testing.T) (*Entity, *collectingPDCP, *collectingRRC) {
	t.Helper()
	pdcp := &collectingPDCP{}
	rrc := &collectingRRC{}
	e := NewEntity(7, noStatus{}, pdcp, rrc, nil, logrus.NewEntry(logrus.New()))
	require.NoError(t, e.Configure(config.Default()))
	return e, pdcp, rrc
}

func TestFullSDUOnePDU(t *testing.T) {
	e, _, _ := newTestEntity(t)
	require.NoError(t, e.WriteSDU([]byte{0x11, 0x22, 0x33, 0x44}, 10))

	out := e.ReadPDU(10)
	require.NotNil(t, out)

	h, hdrLen, err := wire.Decode(wire.FormatNR, config.Default().SNWidth, out)
	require.NoError(t, err)
	assert.Equal(t, wire.SegFull, h.Seg)
	assert.EqualValues(t, 0, h.SN)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, out[hdrLen:])

	assert.EqualValues(t, 1, e.txNext)
	assert.NotNil(t, e.get(0))
}

func TestSegmentedSDUTwoPDUs(t *testing.T) {
	e, _, _ := newTestEntity(t)
	sdu := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, e.WriteSDU(sdu, 20))

	first := e.ReadPDU(6)
	require.NotNil(t, first)
	h1, hdrLen1, err := wire.Decode(wire.FormatNR, config.Default().SNWidth, first)
	require.NoError(t, err)
	assert.Equal(t, wire.SegFirst, h1.Seg)
	assert.Equal(t, 4, len(first)-hdrLen1)

	second := e.ReadPDU(20)
	require.NotNil(t, second)
	h2, hdrLen2, err := wire.Decode(wire.FormatNR, config.Default().SNWidth, second)
	require.NoError(t, err)
	assert.Equal(t, wire.SegLast, h2.Seg)
	assert.True(t, h2.Poll, "last pdu should poll once the queue drains")
	assert.Equal(t, sdu[4:], second[hdrLen2:])

	assert.EqualValues(t, 1, e.txNext)
}

func TestLTESegmentedSDUFirstSegmentFitsBudget(t *testing.T) {
	e, _, _ := newTestEntity(t)
	cfg := config.Default()
	cfg.Format = wire.FormatLTE
	cfg.SNWidth = 10
	require.NoError(t, e.Configure(cfg))

	sdu := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, e.WriteSDU(sdu, 20))

	const n = 6
	first := e.ReadPDU(n)
	require.NotNil(t, first)
	assert.LessOrEqual(t, len(first), n, "read_pdu(n) must never return more than n bytes")

	h1, hdrLen1, err := wire.Decode(wire.FormatLTE, cfg.SNWidth, first)
	require.NoError(t, err)
	assert.Equal(t, wire.SegFirst, h1.Seg)
	assert.Equal(t, 2, hdrLen1, "a first_segment LTE header carries no SO field")
	assert.Equal(t, sdu[:len(first)-hdrLen1], first[hdrLen1:])

	second := e.ReadPDU(20)
	require.NotNil(t, second)
	h2, hdrLen2, err := wire.Decode(wire.FormatLTE, cfg.SNWidth, second)
	require.NoError(t, err)
	assert.Equal(t, wire.SegLast, h2.Seg)
	assert.Equal(t, 4, hdrLen2, "a resegmented continuation carries the rf/so field")
	assert.Equal(t, sdu[len(first)-2:], second[hdrLen2:])
}

func TestStatusACKAdvancesTxNextAckAndNotifiesDelivery(t *testing.T) {
	e, pdcp, _ := newTestEntity(t)
	require.NoError(t, e.WriteSDU([]byte{0xAA}, 42))
	require.NotNil(t, e.ReadPDU(10))

	statusBuf := encodeStatus(t, 1, nil)
	require.NoError(t, e.HandleControlPDU(statusBuf))

	assert.EqualValues(t, 1, e.txNextAck)
	assert.Nil(t, e.get(0))
	require.Len(t, pdcp.delivered, 1)
	assert.Equal(t, []uint32{42}, pdcp.delivered[0])
}

func TestBufferStateReflectsQueuedSDU(t *testing.T) {
	e, _, _ := newTestEntity(t)
	newtx, prio := e.GetBufferState()
	assert.Zero(t, newtx)
	assert.Zero(t, prio)

	require.NoError(t, e.WriteSDU([]byte{1, 2, 3}, 1))
	newtx, _ = e.GetBufferState()
	assert.Greater(t, newtx, 0)
}

func TestWriteSDUFailsWhenQueueFull(t *testing.T) {
	e, _, _ := newTestEntity(t)
	cfg := config.Default()
	cfg.TxQueueLength = 1
	require.NoError(t, e.Configure(cfg))

	require.NoError(t, e.WriteSDU([]byte{1}, 1))
	err := e.WriteSDU([]byte{2}, 2)
	require.Error(t, err)
}

func TestReestablishClearsState(t *testing.T) {
	e, _, _ := newTestEntity(t)
	require.NoError(t, e.WriteSDU([]byte{1, 2, 3}, 1))
	require.NotNil(t, e.ReadPDU(10))
	assert.NotZero(t, e.txNext)

	e.Reestablish()
	assert.Zero(t, e.txNext)
	assert.Zero(t, e.txNextAck)
	assert.Nil(t, e.get(0))
}

// encodeStatus builds a STATUS PDU buffer for the given ack_sn and an
// optional list of whole-SDU NACK sequence numbers, routed through
// pkg/status so the test does not need to know the wire bit layout.
func encodeStatus(t *testing.T, ackSN uint32, nackSNs []uint32) []byte {
	t.Helper()
	p := status.New(config.Default().SNWidth, ackSN)
	for _, sn := range nackSNs {
		p.Push(status.NACK{SN: sn})
	}
	return status.Encode(p)
}
