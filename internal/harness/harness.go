// Package harness provides an in-memory, optionally-lossy MAC
// transport for end-to-end tests: it pulls PDUs out of one bearer's
// Tx half via ReadPDU and delivers them to a peer bearer's Rx half
// via HandleDataPDU, and vice versa.
package harness

import (
	"sync"
)

// Endpoint is the minimal surface harness needs from one side of a
// bearer: pull an outgoing PDU of at most n bytes, and push an
// incoming one.
type Endpoint interface {
	ReadPDU(n int) []byte
	HandleDataPDU(buf []byte) error
}

// DropPolicy decides whether a given PDU, about to cross the link in
// one direction, should be dropped. seq is a monotonically increasing
// per-direction counter starting at 0, useful for "drop the Nth PDU"
// tests like the spec's lost-middle-segment scenario.
type DropPolicy func(seq int, pdu []byte) bool

// NeverDrop is a DropPolicy that never drops anything.
func NeverDrop(int, []byte) bool { return false }

// Link is a bidirectional in-memory MAC channel between two
// Endpoints, each direction independently lossy.
type Link struct {
	mu sync.Mutex

	a, b Endpoint

	aToBDrop DropPolicy
	bToADrop DropPolicy

	aToBSeq int
	bToASeq int

	aToBLog [][]byte
	bToALog [][]byte
}

// NewLink constructs a Link between a and b with no loss.
func NewLink(a, b Endpoint) *Link {
	return &Link{a: a, b: b, aToBDrop: NeverDrop, bToADrop: NeverDrop}
}

// SetDropPolicy installs loss policies for each direction. Either may
// be nil to mean "never drop".
func (l *Link) SetDropPolicy(aToB, bToA DropPolicy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if aToB == nil {
		aToB = NeverDrop
	}
	if bToA == nil {
		bToA = NeverDrop
	}
	l.aToBDrop = aToB
	l.bToADrop = bToA
}

// StepAToB pulls one PDU of at most n bytes out of a and, unless the
// drop policy discards it, delivers it to b. Returns whether a PDU
// was produced (regardless of whether it was then dropped) and
// whether it was delivered.
func (l *Link) StepAToB(n int) (produced, delivered bool) {
	return l.step(l.a, l.b, n, &l.aToBSeq, &l.aToBDrop, &l.aToBLog)
}

// StepBToA is StepAToB with roles reversed.
func (l *Link) StepBToA(n int) (produced, delivered bool) {
	return l.step(l.b, l.a, n, &l.bToASeq, &l.bToADrop, &l.bToALog)
}

func (l *Link) step(src, dst Endpoint, n int, seq *int, drop *DropPolicy, log *[][]byte) (produced, delivered bool) {
	pdu := src.ReadPDU(n)
	if pdu == nil {
		return false, false
	}
	l.mu.Lock()
	s := *seq
	*seq = s + 1
	dropIt := (*drop)(s, pdu)
	l.mu.Unlock()
	if dropIt {
		return true, false
	}
	*log = append(*log, pdu)
	_ = dst.HandleDataPDU(pdu)
	return true, true
}

// PumpUntilDry repeatedly steps both directions with MAC opportunities
// of size n until neither side produces a PDU, bounded by maxSteps to
// avoid an infinite loop on a misbehaving bearer under test.
func (l *Link) PumpUntilDry(n, maxSteps int) {
	for i := 0; i < maxSteps; i++ {
		p1, _ := l.StepAToB(n)
		p2, _ := l.StepBToA(n)
		if !p1 && !p2 {
			return
		}
	}
}
