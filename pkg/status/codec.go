package status

import "github.com/go-rlc/rlcam/pkg/snum"

const cptStatus = 0b000

// bitWriter accumulates bits MSB-first into a byte slice, byte-aligning
// only on Bytes(). Mirrors the accessor style of pkg/wire's byte-level
// field packing, generalized to arbitrary bit widths since STATUS PDU
// fields (ACK_SN, NACK_SN) are not multiples of 8 bits.
type bitWriter struct {
	buf  []byte
	bits uint8 // bits used in the last byte of buf
}

func (w *bitWriter) writeBits(v uint64, n int) {
	for n > 0 {
		if w.bits == 0 {
			w.buf = append(w.buf, 0)
		}
		free := 8 - int(w.bits)
		take := n
		if take > free {
			take = free
		}
		shift := n - take
		chunk := byte((v >> uint(shift)) & ((1 << uint(take)) - 1))
		w.buf[len(w.buf)-1] |= chunk << uint(free-take)
		w.bits += uint8(take)
		if w.bits == 8 {
			w.bits = 0
		}
		n -= take
		v &= (1 << uint(shift)) - 1
	}
}

func (w *bitWriter) bytes() []byte { return w.buf }

type bitReader struct {
	buf []byte
	pos int // bit position from the start of buf
}

func (r *bitReader) remaining() int { return len(r.buf)*8 - r.pos }

func (r *bitReader) readBits(n int) (uint64, bool) {
	if r.remaining() < n {
		return 0, false
	}
	var v uint64
	for n > 0 {
		byteIdx := r.pos / 8
		bitOff := r.pos % 8
		free := 8 - bitOff
		take := n
		if take > free {
			take = free
		}
		shift := free - take
		mask := byte((1 << uint(take)) - 1)
		chunk := (r.buf[byteIdx] >> uint(shift)) & mask
		v = v<<uint(take) | uint64(chunk)
		r.pos += take
		n -= take
	}
	return v, true
}

// snBits returns how many raw bits the SN width contributes to the
// wire form (equal to the configured width).
func snBits(width snum.Width) int { return int(width) }

// Encode serializes the STATUS PDU container per the byte budget
// already tracked by PackedSize: header (D/C, CPT, ACK_SN, E1) padded
// to 3 bytes, then per NACK (NACK_SN, E1, E2, E3 [, SO_start, SO_end]
// [, NACK_range]).
func Encode(p *PDU) []byte {
	w := &bitWriter{}
	w.writeBits(0, 1)          // D/C = control
	w.writeBits(cptStatus, 3)  // CPT
	w.writeBits(uint64(p.ACKSN), snBits(p.Width))
	hasNacks := len(p.nacks) > 0
	w.writeBits(b2u(hasNacks), 1) // E1 on the header: more data (first NACK) follows

	// Pad the header out to exactly 3 bytes, per §4.2's fixed size.
	for len(w.buf) < sizeofHeaderAckSN || w.bits != 0 {
		w.writeBits(0, 1)
	}

	for i, n := range p.nacks {
		w.writeBits(uint64(n.SN), snBits(p.Width))
		more := i != len(p.nacks)-1
		w.writeBits(b2u(more), 1)
		w.writeBits(b2u(n.HasSO), 1)
		w.writeBits(b2u(n.HasNACKRange), 1)
		for w.bits != 0 {
			w.writeBits(0, 1)
		}
		if n.HasSO {
			w.writeBits(uint64(n.SOStart), 16)
			w.writeBits(uint64(n.SOEnd), 16)
		}
		if n.HasNACKRange {
			w.writeBits(uint64(n.NACKRange), 8)
		}
	}
	return w.bytes()
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Decode parses a STATUS PDU of the given SN width from buf.
func Decode(width snum.Width, buf []byte) (*PDU, error) {
	if len(buf) < sizeofHeaderAckSN {
		return nil, ErrMalformed
	}
	r := &bitReader{buf: buf}
	dc, _ := r.readBits(1)
	if dc != 0 {
		return nil, ErrMalformed
	}
	cpt, _ := r.readBits(3)
	if cpt != cptStatus {
		return nil, ErrMalformed
	}
	ackRaw, ok := r.readBits(snBits(width))
	if !ok {
		return nil, ErrMalformed
	}
	more, ok := r.readBits(1)
	if !ok {
		return nil, ErrMalformed
	}

	headerBitsUsed := 1 + 3 + snBits(width) + 1
	pad := sizeofHeaderAckSN*8 - headerBitsUsed
	if pad < 0 {
		return nil, ErrMalformed
	}
	if padVal, ok := r.readBits(pad); !ok || padVal != 0 {
		return nil, ErrMalformed
	}

	p := New(width, uint32(ackRaw))

	for more != 0 {
		snRaw, ok := r.readBits(snBits(width))
		if !ok {
			return nil, ErrMalformed
		}
		moreBit, ok := r.readBits(1)
		if !ok {
			return nil, ErrMalformed
		}
		hasSOBit, ok := r.readBits(1)
		if !ok {
			return nil, ErrMalformed
		}
		hasRangeBit, ok := r.readBits(1)
		if !ok {
			return nil, ErrMalformed
		}
		nackBitsUsed := snBits(width) + 3
		nackPad := sizeofNACKSN(width)*8 - nackBitsUsed
		if nackPad < 0 {
			return nil, ErrMalformed
		}
		if padVal, ok := r.readBits(nackPad); !ok || padVal != 0 {
			return nil, ErrMalformed
		}

		n := NACK{SN: uint32(snRaw)}
		if hasSOBit != 0 {
			soStart, ok := r.readBits(16)
			if !ok {
				return nil, ErrMalformed
			}
			soEnd, ok := r.readBits(16)
			if !ok {
				return nil, ErrMalformed
			}
			n.HasSO = true
			n.SOStart = uint16(soStart)
			n.SOEnd = uint16(soEnd)
		}
		if hasRangeBit != 0 {
			rangeVal, ok := r.readBits(8)
			if !ok {
				return nil, ErrMalformed
			}
			n.HasNACKRange = true
			n.NACKRange = uint8(rangeVal)
		}
		p.nacks = append(p.nacks, n)
		p.packedSize += n.size(width)
		more = moreBit
	}
	return p, nil
}
