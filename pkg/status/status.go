// Package status implements the RLC AM STATUS control PDU: the NACK
// container with push-with-merge, incremental packed-size tracking,
// trim-to-budget, and wire codec.
package status

import (
	"errors"

	"github.com/go-rlc/rlcam/pkg/snum"
)

// ErrMalformed is returned by Decode for a STATUS PDU this codec
// cannot safely interpret.
var ErrMalformed = errors.New("status: malformed status pdu")

const (
	sizeofHeaderAckSN = 3
	sizeofNACKSO      = 4
	sizeofNACKRange   = 1
)

func sizeofNACKSN(width snum.Width) int {
	if width == snum.Width18 {
		return 3
	}
	return 2
}

// NACK reports one missing SDU (or run of SDUs, or byte range within
// one SDU) to the peer Tx.
type NACK struct {
	SN            uint32
	HasSO         bool
	SOStart       uint16
	SOEnd         uint16
	HasNACKRange  bool
	NACKRange     uint8 // number of consecutive SDUs sharing SOStart/SOEnd, in [2,255]
}

func (n NACK) size(width snum.Width) int {
	sz := sizeofNACKSN(width)
	if n.HasSO {
		sz += sizeofNACKSO
	}
	if n.HasNACKRange {
		sz += sizeofNACKRange
	}
	return sz
}

// lastSN returns the SN of the last SDU this NACK entry covers.
func (n NACK) lastSN(width snum.Width) uint32 {
	if n.HasNACKRange {
		return width.Add(n.SN, uint32(n.NACKRange)-1)
	}
	return n.SN
}

// PDU is the STATUS PDU container: one ACK_SN plus an ordered list of
// NACKs, with the packed size tracked incrementally as NACKs are
// pushed so callers can test against a MAC byte budget without
// re-serializing.
type PDU struct {
	Width      snum.Width
	ACKSN      uint32
	nacks      []NACK
	packedSize int
}

// New returns an empty STATUS PDU container for the given SN width.
func New(width snum.Width, ackSN uint32) *PDU {
	return &PDU{Width: width, ACKSN: ackSN, packedSize: sizeofHeaderAckSN}
}

// Nacks returns the current NACK list. Callers must not mutate it.
func (p *PDU) Nacks() []NACK { return p.nacks }

// PackedSize returns the STATUS PDU's current encoded length in bytes.
func (p *PDU) PackedSize() int { return p.packedSize }

// isContinuous reports whether next may be merged into prev: prev's
// SN run must end exactly where next's begins, and the byte ranges
// must meet with no gap at the seam.
func isContinuous(width snum.Width, prev, next NACK) bool {
	if width.Add(prev.lastSN(width), 1) != next.SN {
		return false
	}
	prevSOOK := !prev.HasSO || prev.SOEnd == 0xFFFF
	nextSOOK := !next.HasSO || next.SOStart == 0
	return prevSOOK && nextSOOK
}

// Push appends a NACK to the container, attempting to coalesce it
// with the current last NACK first (per §4.2's merge rule): SN
// continuity and SO continuity at the seam together let prev absorb
// next in place, avoiding a second NACK entry for what is really one
// contiguous missing run.
func (p *PDU) Push(n NACK) {
	if len(p.nacks) > 0 {
		last := len(p.nacks) - 1
		prev := p.nacks[last]
		if isContinuous(p.Width, prev, n) {
			p.packedSize -= prev.size(p.Width)

			merged := prev
			prevRange := uint32(1)
			if prev.HasNACKRange {
				prevRange = uint32(prev.NACKRange)
			}
			nextRange := uint32(1)
			if n.HasNACKRange {
				nextRange = uint32(n.NACKRange)
			}
			total := prevRange + nextRange
			if total > 1 {
				merged.HasNACKRange = true
				merged.NACKRange = uint8(total)
			}
			if n.HasSO {
				merged.HasSO = true
				merged.SOEnd = n.SOEnd
				if !prev.HasSO {
					merged.SOStart = 0
				}
			} else if prev.HasSO {
				merged.HasSO = true
				merged.SOEnd = 0xFFFF
			}

			p.nacks[last] = merged
			p.packedSize += merged.size(p.Width)
			return
		}
	}
	p.nacks = append(p.nacks, n)
	p.packedSize += n.size(p.Width)
}

// Trim truncates the container so its packed size is at most m,
// dropping NACKs from the tail. If removing a NACK would leave behind
// another NACK sharing the same nack_sn (a segmented-SDU report split
// across multiple NACK entries), all entries for that SN are dropped
// together and ACK_SN is lowered to it, per §4.2. Returns false if
// m < 3 (the PDU cannot even carry a bare ACK_SN).
func (p *PDU) Trim(m int) bool {
	if m < sizeofHeaderAckSN {
		return false
	}
	for p.packedSize > m && len(p.nacks) > 0 {
		last := len(p.nacks) - 1
		dropped := p.nacks[last]
		p.nacks = p.nacks[:last]
		p.packedSize -= dropped.size(p.Width)

		for len(p.nacks) > 0 && p.nacks[len(p.nacks)-1].SN == dropped.SN {
			last = len(p.nacks) - 1
			extra := p.nacks[last]
			p.nacks = p.nacks[:last]
			p.packedSize -= extra.size(p.Width)
		}
		p.ACKSN = dropped.SN
	}
	return true
}
