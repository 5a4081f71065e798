// Package snum implements the modular sequence-number arithmetic shared
// by the AM transmit and receive windows, independent of SN width.
package snum

// Width is a configured RLC AM sequence number width.
type Width uint8

const (
	Width10 Width = 10 // LTE
	Width12 Width = 12 // NR
	Width18 Width = 18 // NR, long SN
)

// Valid reports whether w is one of the three widths the protocol defines.
func (w Width) Valid() bool {
	return w == Width10 || w == Width12 || w == Width18
}

// Mod returns 2^w, the modulus sequence numbers of this width wrap at.
func (w Width) Mod() uint32 {
	return 1 << uint(w)
}

// AmWin returns 2^(w-1), the AM window size for this SN width.
func (w Width) AmWin() uint32 {
	return 1 << uint(w-1)
}

// Add returns (sn + delta) mod the width's modulus.
func (w Width) Add(sn, delta uint32) uint32 {
	return (sn + delta) % w.Mod()
}

// Sub returns (a - b) mod the width's modulus, always non-negative.
func (w Width) Sub(a, b uint32) uint32 {
	m := w.Mod()
	return (a + m - (b % m)) % m
}

// Less implements the window-base "less-than" comparison:
// x <_base b  iff  x != b and (b - x) mod MOD < AM_WIN, i.e. b lies
// strictly ahead of x within half the sequence number space.
func (w Width) Less(x, b uint32) bool {
	return x != b && w.Sub(b, x) < w.AmWin()
}

// LessEq is Less(x, b) || x == b.
func (w Width) LessEq(x, b uint32) bool {
	return x == b || w.Less(x, b)
}

// InWindow reports whether sn lies in [base, base+AM_WIN) in modular space.
func (w Width) InWindow(sn, base uint32) bool {
	return w.Sub(sn, base) < w.AmWin()
}
