package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rlc/rlcam/pkg/snum"
)

func TestLTERoundTripFullSDU(t *testing.T) {
	h := DataHeader{Format: FormatLTE, SNWidth: snum.Width10, DC: DCData, Poll: true, Seg: SegFull, SN: 513}
	buf, err := Encode(h)
	require.NoError(t, err)
	assert.Equal(t, PackedLen(h), len(buf))

	got, n, err := Decode(FormatLTE, snum.Width10, buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, h, got)
}

func TestLTERoundTripSegmented(t *testing.T) {
	// first_segment carries no SO field: it is the first PDU ever sent
	// for this SN, so there is nothing yet to report an offset from.
	// Only a re-segmented continuation (middle/last) carries rf=1/SO.
	for _, tc := range []struct {
		seg  SegInfo
		so   uint16
		want int
	}{
		{SegFirst, 0, 2},
		{SegMiddle, 1234, 4},
		{SegLast, 1234, 4},
	} {
		h := DataHeader{Format: FormatLTE, SNWidth: snum.Width10, DC: DCData, Poll: false, Seg: tc.seg, SN: 1000, SO: tc.so}
		buf, err := Encode(h)
		require.NoError(t, err)
		assert.Equal(t, tc.want, len(buf))

		got, n, err := Decode(FormatLTE, snum.Width10, buf)
		require.NoError(t, err)
		assert.Equal(t, tc.want, n)
		assert.Equal(t, h, got)
	}
}

func TestLTERoundTripWithLIs(t *testing.T) {
	cases := [][]uint16{
		{10},
		{10, 20},
		{10, 20, 30},
		{0x7FF, 0, 1, 2047},
	}
	for _, lis := range cases {
		h := DataHeader{Format: FormatLTE, SNWidth: snum.Width10, DC: DCData, Seg: SegFull, SN: 7, LIs: lis}
		buf, err := Encode(h)
		require.NoError(t, err)
		assert.Equal(t, PackedLen(h), len(buf))

		got, n, err := Decode(FormatLTE, snum.Width10, buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, lis, got.LIs)
	}
}

func TestLTEDecodeRejectsInconsistentFramingBits(t *testing.T) {
	// dc=1 rf=0 p=0 fi=0b11 (middle segment) e=0 sn_hi=0 -> a middle
	// segment requires rf=1 (it carries an SO field); rf=0 disagrees.
	buf := []byte{0b10011000, 0x05}
	_, _, err := Decode(FormatLTE, snum.Width10, buf)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLTEDecodeTruncatedBuffer(t *testing.T) {
	_, _, err := Decode(FormatLTE, snum.Width10, []byte{0x00})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNR12RoundTripFullSDU(t *testing.T) {
	h := DataHeader{Format: FormatNR, SNWidth: snum.Width12, DC: DCData, Poll: true, Seg: SegFull, SN: 0xABC & 0xFFF}
	buf, err := Encode(h)
	require.NoError(t, err)
	assert.Equal(t, 2, len(buf))

	got, n, err := Decode(FormatNR, snum.Width12, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, h, got)
}

func TestNR12RoundTripSegmented(t *testing.T) {
	for _, seg := range []SegInfo{SegFirst, SegMiddle, SegLast} {
		// first_segment carries no SO field, so its SO is always 0.
		so := uint16(9000)
		if seg == SegFirst {
			so = 0
		}
		h := DataHeader{Format: FormatNR, SNWidth: snum.Width12, DC: DCData, Seg: seg, SN: 42, SO: so}
		buf, err := Encode(h)
		require.NoError(t, err)
		want := 2
		if seg == SegMiddle || seg == SegLast {
			want += 2
		}
		assert.Equal(t, want, len(buf))

		got, n, err := Decode(FormatNR, snum.Width12, buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, h, got)
	}
}

func TestNR18RoundTrip(t *testing.T) {
	h := DataHeader{Format: FormatNR, SNWidth: snum.Width18, DC: DCData, Seg: SegMiddle, SN: 0x3FFFF, SO: 55}
	buf, err := Encode(h)
	require.NoError(t, err)
	assert.Equal(t, 5, len(buf))

	got, n, err := Decode(FormatNR, snum.Width18, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, h, got)
}

func TestNR18DecodeRejectsNonZeroReserved(t *testing.T) {
	// dc=0 p=0 si=0b00(full) r=0b01 sn_hi=0b00 -> reserved bits nonzero.
	buf := []byte{0b00000100, 0x00, 0x01}
	_, _, err := Decode(FormatNR, snum.Width18, buf)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNREncodeRejectsSNOutOfRange(t *testing.T) {
	h := DataHeader{Format: FormatNR, SNWidth: snum.Width12, SN: 1 << 12}
	_, err := Encode(h)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPackedLenMatchesEncodedLength(t *testing.T) {
	headers := []DataHeader{
		{Format: FormatLTE, SNWidth: snum.Width10, Seg: SegFull, SN: 1},
		{Format: FormatLTE, SNWidth: snum.Width10, Seg: SegFirst, SN: 1, SO: 0},
		{Format: FormatLTE, SNWidth: snum.Width10, Seg: SegMiddle, SN: 1, SO: 17},
		{Format: FormatLTE, SNWidth: snum.Width10, Seg: SegLast, SN: 1, SO: 17},
		{Format: FormatLTE, SNWidth: snum.Width10, Seg: SegFull, SN: 1, LIs: []uint16{5, 6, 7}},
		{Format: FormatNR, SNWidth: snum.Width12, Seg: SegFull, SN: 1},
		{Format: FormatNR, SNWidth: snum.Width12, Seg: SegLast, SN: 1, SO: 3},
		{Format: FormatNR, SNWidth: snum.Width18, Seg: SegFull, SN: 1},
		{Format: FormatNR, SNWidth: snum.Width18, Seg: SegMiddle, SN: 1, SO: 3},
	}
	for _, h := range headers {
		buf, err := Encode(h)
		require.NoError(t, err)
		assert.Equal(t, PackedLen(h), len(buf))
	}
}
