package rx

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rlc/rlcam/pkg/config"
	"github.com/go-rlc/rlcam/pkg/errorcode"
	"github.com/go-rlc/rlcam/pkg/wire"
)

type collectingPDCP struct {
	lcids []uint32
	sdus  [][]byte
}

func (c *collectingPDCP) WritePDU(lcid uint32, sdu []byte) {
	c.lcids = append(c.lcids, lcid)
	c.sdus = append(c.sdus, append([]byte(nil), sdu...))
}

type recordingControlSink struct {
	calls [][]byte
}

func (r *recordingControlSink) HandleControlPDU(buf []byte) error {
	r.calls = append(r.calls, append([]byte(nil), buf...))
	return nil
}

func newTestEntity(t *testing.T) (*Entity, *collectingPDCP) {
	t.Helper()
	pdcp := &collectingPDCP{}
	e := NewEntity(5, pdcp, nil, logrus.NewEntry(logrus.New()))
	require.NoError(t, e.Configure(config.Default()))
	return e, pdcp
}

func encode(t *testing.T, h wire.DataHeader) []byte {
	t.Helper()
	b, err := wire.Encode(h)
	require.NoError(t, err)
	return b
}

func TestFullSDUDeliveredInOrder(t *testing.T) {
	e, pdcp := newTestEntity(t)
	hdr := wire.DataHeader{Format: wire.FormatNR, SNWidth: config.Default().SNWidth, DC: wire.DCData, Seg: wire.SegFull, SN: 0}
	buf := append(encode(t, hdr), []byte{0x11, 0x22, 0x33, 0x44}...)

	require.NoError(t, e.HandleDataPDU(buf))

	require.Len(t, pdcp.sdus, 1)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, pdcp.sdus[0])
	assert.EqualValues(t, 5, pdcp.lcids[0])
}

func TestOutOfOrderHeldUntilGapFilled(t *testing.T) {
	e, pdcp := newTestEntity(t)
	width := config.Default().SNWidth

	sn1 := wire.DataHeader{Format: wire.FormatNR, SNWidth: width, DC: wire.DCData, Seg: wire.SegFull, SN: 1}
	require.NoError(t, e.HandleDataPDU(append(encode(t, sn1), 0xAA)))
	assert.Empty(t, pdcp.sdus, "sn 1 must wait behind missing sn 0")

	sn0 := wire.DataHeader{Format: wire.FormatNR, SNWidth: width, DC: wire.DCData, Seg: wire.SegFull, SN: 0}
	require.NoError(t, e.HandleDataPDU(append(encode(t, sn0), 0xBB)))

	require.Len(t, pdcp.sdus, 2)
	assert.Equal(t, []byte{0xBB}, pdcp.sdus[0])
	assert.Equal(t, []byte{0xAA}, pdcp.sdus[1])
}

func TestSegmentedSDUReassembled(t *testing.T) {
	e, pdcp := newTestEntity(t)
	width := config.Default().SNWidth

	first := wire.DataHeader{Format: wire.FormatNR, SNWidth: width, DC: wire.DCData, Seg: wire.SegFirst, SN: 0}
	require.NoError(t, e.HandleDataPDU(append(encode(t, first), []byte{0x01, 0x02}...)))
	assert.Empty(t, pdcp.sdus)

	last := wire.DataHeader{Format: wire.FormatNR, SNWidth: width, DC: wire.DCData, Seg: wire.SegLast, SN: 0, SO: 2}
	require.NoError(t, e.HandleDataPDU(append(encode(t, last), []byte{0x03, 0x04}...)))

	require.Len(t, pdcp.sdus, 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, pdcp.sdus[0])
}

func TestDuplicateFullyReceivedDiscarded(t *testing.T) {
	e, pdcp := newTestEntity(t)
	width := config.Default().SNWidth
	// SN 1 arrives first, held behind the gap at SN 0 so it stays in
	// the window (not delivered/cleared) when resent.
	hdr := wire.DataHeader{Format: wire.FormatNR, SNWidth: width, DC: wire.DCData, Seg: wire.SegFull, SN: 1}
	buf := append(encode(t, hdr), 0x01)

	require.NoError(t, e.HandleDataPDU(buf))
	assert.Empty(t, pdcp.sdus)

	err := e.HandleDataPDU(buf)
	require.Error(t, err)
	assert.True(t, errorcode.Is(err, errorcode.Duplicate))
}

func TestOutOfWindowDiscarded(t *testing.T) {
	e, _ := newTestEntity(t)
	width := config.Default().SNWidth
	farSN := width.Add(0, width.AmWin()+10)
	hdr := wire.DataHeader{Format: wire.FormatNR, SNWidth: width, DC: wire.DCData, Seg: wire.SegFull, SN: farSN}
	buf := append(encode(t, hdr), 0x01)

	err := e.HandleDataPDU(buf)
	require.Error(t, err)
	assert.True(t, errorcode.Is(err, errorcode.OutOfWindow))
}

func TestPollBitOnDuplicateOutsideWindowStillTriggersStatus(t *testing.T) {
	e, _ := newTestEntity(t)
	width := config.Default().SNWidth
	farSN := width.Add(0, width.AmWin()+10)
	hdr := wire.DataHeader{Format: wire.FormatNR, SNWidth: width, DC: wire.DCData, Seg: wire.SegFull, SN: farSN, Poll: true}
	buf := append(encode(t, hdr), 0x01)

	_ = e.HandleDataPDU(buf)
	assert.True(t, e.statusRequired.Load())
}

func TestControlPDURoutedToSink(t *testing.T) {
	sink := &recordingControlSink{}
	pdcp := &collectingPDCP{}
	e := NewEntity(1, pdcp, sink, logrus.NewEntry(logrus.New()))
	require.NoError(t, e.Configure(config.Default()))

	controlPDU := []byte{0x00, 0x01, 0x02, 0x03}
	require.NoError(t, e.HandleDataPDU(controlPDU))
	require.Len(t, sink.calls, 1)
	assert.Equal(t, controlPDU, sink.calls[0])
}

func TestNoGapsLeavesReassemblyTimerStoppedAndNoStatus(t *testing.T) {
	e, pdcp := newTestEntity(t)
	width := config.Default().SNWidth
	hdr := wire.DataHeader{Format: wire.FormatNR, SNWidth: width, DC: wire.DCData, Seg: wire.SegFull, SN: 0}
	require.NoError(t, e.HandleDataPDU(append(encode(t, hdr), 0x01)))
	require.Len(t, pdcp.sdus, 1)

	assert.False(t, e.reassemblyTimer.Running())
	assert.False(t, e.statusRequired.Load())
}

func TestHandleDataPDUAfterStopIsRejected(t *testing.T) {
	e, _ := newTestEntity(t)
	e.Stop()
	err := e.HandleDataPDU([]byte{0x80, 0x00, 0x01})
	require.Error(t, err)
	assert.True(t, errorcode.Is(err, errorcode.ProgrammingError))
}
