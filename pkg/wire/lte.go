package wire

import "github.com/go-rlc/rlcam/pkg/snum"

// fi2bit/bit2fi implement the LTE Framing Info <-> SegInfo mapping per
// TS 36.322's FI field: bit1 (sent first) set means "this segment's
// first byte is not the SDU's first byte", bit0 set means "this
// segment's last byte is not the SDU's last byte".
func fi2bit(s SegInfo) uint8 {
	switch s {
	case SegFull:
		return 0b00
	case SegFirst:
		return 0b01
	case SegLast:
		return 0b10
	case SegMiddle:
		return 0b11
	default:
		return 0b00
	}
}

func bit2fi(b uint8) SegInfo {
	switch b & 0b11 {
	case 0b00:
		return SegFull
	case 0b01:
		return SegFirst
	case 0b10:
		return SegLast
	default:
		return SegMiddle
	}
}

func encodeLTE(h DataHeader) ([]byte, error) {
	if h.SNWidth != snum.Width10 {
		return nil, ErrMalformed
	}
	if h.SN >= h.SNWidth.Mod() {
		return nil, ErrMalformed
	}
	resegmented := h.Seg == SegMiddle || h.Seg == SegLast
	e := uint8(0)
	if len(h.LIs) > 0 {
		e = 1
	}
	out := make([]byte, 2, 4)
	out[0] = byte(h.DC&1)<<7 | boolBit(resegmented)<<6 | boolBit(h.Poll)<<5 | fi2bit(h.Seg)<<3 | e<<2 | byte((h.SN>>8)&0x3)
	out[1] = byte(h.SN & 0xFF)

	if resegmented {
		lsf := h.Seg == SegLast
		so := h.SO & 0x7FFF
		out = append(out, byte(boolBit(lsf))<<7|byte((so>>8)&0x7F), byte(so&0xFF))
	}

	liBytes, err := packLIs(h.LIs)
	if err != nil {
		return nil, err
	}
	out = append(out, liBytes...)
	return out, nil
}

func decodeLTE(width snum.Width, buf []byte) (DataHeader, int, error) {
	if width != snum.Width10 {
		return DataHeader{}, 0, ErrMalformed
	}
	if len(buf) < 2 {
		return DataHeader{}, 0, ErrMalformed
	}
	h := DataHeader{Format: FormatLTE, SNWidth: width}
	b0 := buf[0]
	h.DC = DC((b0 >> 7) & 1)
	rf := (b0 >> 6) & 1
	h.Poll = (b0>>5)&1 == 1
	fi := (b0 >> 3) & 0x3
	e := (b0 >> 2) & 1
	h.Seg = bit2fi(fi)
	h.SN = uint32(b0&0x3)<<8 | uint32(buf[1])

	resegmented := h.Seg == SegMiddle || h.Seg == SegLast
	if resegmented != (rf == 1) {
		// framing info and resegmentation flag disagree: reject rather
		// than guess which one is authoritative. A first_segment PDU
		// carries no SO field, so rf must be 0 for it just as for
		// full_sdu.
		return DataHeader{}, 0, ErrMalformed
	}

	off := 2
	if rf == 1 {
		if len(buf) < off+2 {
			return DataHeader{}, 0, ErrMalformed
		}
		lsf := (buf[off] >> 7) & 1
		so := uint16(buf[off]&0x7F)<<8 | uint16(buf[off+1])
		h.SO = so
		if (lsf == 1) != (h.Seg == SegLast) {
			return DataHeader{}, 0, ErrMalformed
		}
		off += 2
	}

	if e == 1 {
		lis, consumed, err := unpackLIs(buf[off:])
		if err != nil {
			return DataHeader{}, 0, err
		}
		h.LIs = lis
		off += consumed
	}
	return h, off, nil
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// packLIs encodes a list of 11-bit length indicators, 12 bits per
// entry (1 continuation bit + 11 value bits), two entries per 3 bytes,
// high-nibble packing with a zero pad nibble when the count is odd.
func packLIs(lis []uint16) ([]byte, error) {
	if len(lis) == 0 {
		return nil, nil
	}
	for _, li := range lis {
		if li > 0x7FF {
			return nil, ErrMalformed
		}
	}
	out := make([]byte, 0, (3*len(lis)+1)/2)
	for i := 0; i < len(lis); i += 2 {
		e0 := uint16(0)
		if i+1 < len(lis) {
			e0 = 1
		}
		entry0 := e0<<11 | lis[i]
		if i+1 < len(lis) {
			e1 := uint16(0)
			if i+2 < len(lis) {
				e1 = 1
			}
			entry1 := e1<<11 | lis[i+1]
			out = append(out,
				byte(entry0>>4),
				byte((entry0&0xF)<<4)|byte(entry1>>8),
				byte(entry1&0xFF),
			)
		} else {
			out = append(out, byte(entry0>>4), byte((entry0&0xF)<<4))
		}
	}
	return out, nil
}

func unpackLIs(buf []byte) ([]uint16, int, error) {
	var lis []uint16
	off := 0
	for {
		if off+2 > len(buf) {
			return nil, 0, ErrMalformed
		}
		entry0 := uint16(buf[off])<<4 | uint16(buf[off+1])>>4
		e0 := entry0 >> 11
		lis = append(lis, entry0&0x7FF)
		if e0 == 0 {
			return lis, off + 2, nil
		}
		if off+3 > len(buf) {
			return nil, 0, ErrMalformed
		}
		entry1 := uint16(buf[off+1]&0xF)<<8 | uint16(buf[off+2])
		e1 := entry1 >> 11
		lis = append(lis, entry1&0x7FF)
		off += 3
		if e1 == 0 {
			return lis, off, nil
		}
	}
}
