package wire

import "github.com/go-rlc/rlcam/pkg/snum"

func si2bit(s SegInfo) uint8 {
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

func bit2si(b uint8) SegInfo {
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

func encodeNR(h DataHeader) ([]byte, error) {
	if h.SNWidth != snum.Width12 && h.SNWidth != snum.Width18 {
		return nil, ErrMalformed
	}
	if h.SN >= h.SNWidth.Mod() {
		return nil, ErrMalformed
	}
	hasSO := h.Seg == SegLast || h.Seg == SegMiddle

	var out []byte
	switch h.SNWidth {
	case snum.Width12:
		// octet1: dc(1) p(1) si(2) sn[11:8](4); octet2: sn[7:0](8).
		// See DESIGN.md #5: the 12-bit SN NR header carries no
		// reserved bits, unlike the 18-bit variant.
		b0 := byte(h.DC&1)<<7 | boolBit(h.Poll)<<6 | si2bit(h.Seg)<<4 | byte((h.SN>>8)&0xF)
		out = []byte{b0, byte(h.SN & 0xFF)}
	case snum.Width18:
		// octet1: dc(1) p(1) si(2) r(2) sn[17:16](2); octet2:
		// sn[15:8](8); octet3: sn[7:0](8).
		b0 := byte(h.DC&1)<<7 | boolBit(h.Poll)<<6 | si2bit(h.Seg)<<4 | byte((h.SN>>16)&0x3)
		out = []byte{b0, byte((h.SN >> 8) & 0xFF), byte(h.SN & 0xFF)}
	}

	if hasSO {
		out = append(out, byte(h.SO>>8), byte(h.SO&0xFF))
	}
	return out, nil
}

func decodeNR(width snum.Width, buf []byte) (DataHeader, int, error) {
	h := DataHeader{Format: FormatNR, SNWidth: width}
	switch width {
	case snum.Width12:
		if len(buf) < 2 {
			return DataHeader{}, 0, ErrMalformed
		}
		b0 := buf[0]
		h.DC = DC((b0 >> 7) & 1)
		h.Poll = (b0>>6)&1 == 1
		h.Seg = bit2si((b0 >> 4) & 0x3)
		h.SN = uint32(b0&0xF)<<8 | uint32(buf[1])
		off := 2
		if h.Seg == SegLast || h.Seg == SegMiddle {
			if len(buf) < off+2 {
				return DataHeader{}, 0, ErrMalformed
			}
			h.SO = uint16(buf[off])<<8 | uint16(buf[off+1])
			off += 2
		}
		return h, off, nil
	case snum.Width18:
		if len(buf) < 3 {
			return DataHeader{}, 0, ErrMalformed
		}
		b0 := buf[0]
		h.DC = DC((b0 >> 7) & 1)
		h.Poll = (b0>>6)&1 == 1
		h.Seg = bit2si((b0 >> 4) & 0x3)
		r := (b0 >> 2) & 0x3
		if r != 0 {
			return DataHeader{}, 0, ErrMalformed
		}
		h.SN = uint32(b0&0x3)<<16 | uint32(buf[1])<<8 | uint32(buf[2])
		off := 3
		if h.Seg == SegLast || h.Seg == SegMiddle {
			if len(buf) < off+2 {
				return DataHeader{}, 0, ErrMalformed
			}
			h.SO = uint16(buf[off])<<8 | uint16(buf[off+1])
			off += 2
		}
		return h, off, nil
	default:
		return DataHeader{}, 0, ErrMalformed
	}
}
