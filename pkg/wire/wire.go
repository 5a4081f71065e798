// Package wire implements the LTE (TS 36.322) and NR (TS 38.322) RLC AM
// data PDU header codecs: byte-aligned pack/unpack with round-trip
// identity.
package wire

import (
	"errors"

	"github.com/go-rlc/rlcam/pkg/snum"
)

// ErrMalformed is returned by Decode for any header this codec cannot
// safely interpret: truncated buffer, non-zero reserved bits, or a
// length-indicator list that would read past the buffer.
var ErrMalformed = errors.New("wire: malformed pdu header")

// SegInfo is the segmentation state of a data PDU, shared between the
// LTE FI field and the NR SI field (encoded differently on the wire,
// identical in meaning).
type SegInfo uint8

const (
	SegFull SegInfo = iota
	SegFirst
	SegLast
	SegMiddle
)

func (s SegInfo) String() string {
	switch s {
	case SegFull:
		return "full_sdu"
	case SegFirst:
		return "first_segment"
	case SegLast:
		return "last_segment"
	case SegMiddle:
		return "middle_segment"
	default:
		return "invalid"
	}
}

// DC is the data/control discriminator bit.
type DC uint8

const (
	DCControl DC = 0
	DCData    DC = 1
)

// Format selects which 3GPP PDU layout a header is encoded/decoded as.
type Format uint8

const (
	FormatLTE Format = iota
	FormatNR
)

// DataHeader is the decoded form of an RLC AM data PDU header, shared
// between LTE and NR; SNWidth determines which wire layout applies.
type DataHeader struct {
	Format  Format
	SNWidth snum.Width
	DC      DC
	Poll    bool
	Seg     SegInfo
	SN      uint32
	SO      uint16
	// LIs carries LTE length-indicator extensions. This codec's own
	// Tx path never emits more than zero entries (see DESIGN.md,
	// Open Question #2) but Decode still parses an arbitrary LI list
	// so that encode(decode(b)) == b holds for any well-formed b.
	LIs []uint16
}

// HeaderLen returns the minimum header size in bytes for a full_sdu
// (unsegmented, no LI) PDU of the given format and SN width.
func HeaderLen(format Format, width snum.Width) int {
	switch format {
	case FormatLTE:
		return 2
	case FormatNR:
		if width == snum.Width18 {
			return 3
		}
		return 2
	default:
		return 2
	}
}

// SOFieldLen returns the number of extra bytes a segmented PDU's SO
// field (plus, for LTE, the LSF bit folded into the same field) costs
// beyond HeaderLen.
func SOFieldLen(format Format) int {
	switch format {
	case FormatLTE:
		return 2
	case FormatNR:
		return 2
	default:
		return 2
	}
}

// PackedLen computes the total encoded header length for h, per §4.1:
// LTE: 2 (+2 if the SO field is present, i.e. seg is last_segment or
// middle_segment) + ceil(1.5*n_li); NR: 2 or 3 (+2 under the same SO
// rule).
func PackedLen(h DataHeader) int {
	base := HeaderLen(h.Format, h.SNWidth)
	switch h.Format {
	case FormatLTE:
		if h.Seg == SegMiddle || h.Seg == SegLast {
			base += SOFieldLen(FormatLTE)
		}
		base += (3*len(h.LIs) + 1) / 2 // ceil(1.5*n_li) via integer math
	case FormatNR:
		if h.Seg == SegLast || h.Seg == SegMiddle {
			base += SOFieldLen(FormatNR)
		}
	}
	return base
}

// Encode writes h onto the wire, matching the layout Decode expects.
func Encode(h DataHeader) ([]byte, error) {
	switch h.Format {
	case FormatLTE:
		return encodeLTE(h)
	case FormatNR:
		return encodeNR(h)
	default:
		return nil, ErrMalformed
	}
}

// Decode parses a data PDU header from buf for the given format and SN
// width, returning the header and the number of header bytes consumed.
func Decode(format Format, width snum.Width, buf []byte) (DataHeader, int, error) {
	switch format {
	case FormatLTE:
		return decodeLTE(width, buf)
	case FormatNR:
		return decodeNR(width, buf)
	default:
		return DataHeader{}, 0, ErrMalformed
	}
}
