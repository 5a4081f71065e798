// Package rx implements the RLC AM receive half of §4.4: the sliding
// reception window, segment reassembly, the reassembly and
// status-prohibit timers, and STATUS PDU synthesis.
package rx

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/go-rlc/rlcam/pkg/config"
	"github.com/go-rlc/rlcam/pkg/errorcode"
	"github.com/go-rlc/rlcam/pkg/status"
	"github.com/go-rlc/rlcam/pkg/timer"
	"github.com/go-rlc/rlcam/pkg/wire"
)

// PDCPSink is the upward interface from Rx to PDCP (§6): one
// reassembled SDU per call, in strictly ascending RLC-SN order.
type PDCPSink interface {
	WritePDU(lcid uint32, sdu []byte)
}

// ControlSink receives a STATUS PDU Rx has identified in the data PDU
// stream (DC=0) and forwards it to the local bearer's Tx half.
type ControlSink interface {
	HandleControlPDU(buf []byte) error
}

type segRange struct {
	so   uint16
	end  uint16 // exclusive
	data []byte
}

// sduRecord is one rx_window[sn] entry (§3): the ordered, non-
// overlapping segments received so far for this SN, and the flags
// derived from them.
type sduRecord struct {
	sn           uint32
	segs         []segRange
	sawLast      bool // a segment carrying the last_segment SI (or a full_sdu PDU) has arrived
	hasGap       bool
	fullyReceived bool
	reassembled  []byte
}

// Entity is the Rx half of one AM bearer.
type Entity struct {
	mu     sync.Mutex
	lcid   uint32
	cfg    config.Config
	logger *logrus.Entry

	window []*sduRecord // ring buffer of size AM_WIN, indexed by sn % AM_WIN

	rxNext              uint32
	rxNextHighest       uint32
	rxHighestStatus     uint32
	rxNextStatusTrigger uint32

	reassemblyTimer     *timer.Timer
	statusProhibitTimer *timer.Timer
	statusRequired      atomic.Bool

	pdcp        PDCPSink
	controlSink ControlSink

	active  bool // true once any data has been processed since configure/reestablish
	stopped bool
}

// NewEntity constructs an unconfigured Rx half for logical channel
// lcid. Configure must be called before use.
func NewEntity(lcid uint32, pdcp PDCPSink, controlSink ControlSink, logger *logrus.Entry) *Entity {
	e := &Entity{
		lcid:        lcid,
		pdcp:        pdcp,
		controlSink: controlSink,
		logger:      logger.WithField("half", "rx"),
	}
	e.reassemblyTimer = timer.NewAuto(0, e.onReassemblyExpiry)
	e.statusProhibitTimer = timer.NewAuto(0, func() {})
	return e
}

// Configure applies cfg, legal only prior to first use or after
// Reestablish, per §6.
func (e *Entity) Configure(cfg config.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return errorcode.New(errorcode.ConfigError, "cannot reconfigure an active rx entity without reestablish")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.reassemblyTimer.SetDuration(cfg.TReassembly)
	e.statusProhibitTimer.SetDuration(cfg.TStatusProhibit)
	e.window = make([]*sduRecord, cfg.SNWidth.AmWin())
	e.resetState()
	return nil
}

func (e *Entity) resetState() {
	e.rxNext = 0
	e.rxNextHighest = 0
	e.rxHighestStatus = 0
	e.rxNextStatusTrigger = 0
	e.statusRequired.Store(false)
	for i := range e.window {
		e.window[i] = nil
	}
	e.active = false
}

// Reestablish discards all buffered data and resets every state
// variable, stopping all timers, per §6.
func (e *Entity) Reestablish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reassemblyTimer.Stop()
	e.statusProhibitTimer.Stop()
	e.resetState()
	e.stopped = false
}

// Stop reestablishes and marks the entity non-accepting.
func (e *Entity) Stop() {
	e.mu.Lock()
	e.reassemblyTimer.Stop()
	e.statusProhibitTimer.Stop()
	e.resetState()
	e.stopped = true
	e.mu.Unlock()
}

// SetControlSink rewires the destination for recognized STATUS PDUs.
// Exists so a bearer's Tx and Rx halves, which each need a reference
// to the other (Tx as an rx.StatusSource, Rx's control PDUs routed to
// Tx), can be constructed without a circular constructor dependency:
// build Rx with a nil sink, build Tx with Rx as its StatusSource, then
// wire Rx's sink to the now-existing Tx entity.
func (e *Entity) SetControlSink(sink ControlSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.controlSink = sink
}

func (e *Entity) idx(sn uint32) uint32 { return sn % e.cfg.SNWidth.AmWin() }
func (e *Entity) get(sn uint32) *sduRecord {
	r := e.window[e.idx(sn)]
	if r != nil && r.sn == sn {
		return r
	}
	return nil
}
func (e *Entity) clear(sn uint32) { e.window[e.idx(sn)] = nil }

func (e *Entity) getOrCreate(sn uint32) *sduRecord {
	i := e.idx(sn)
	if e.window[i] != nil && e.window[i].sn != sn {
		e.logger.WithField("sn", sn).Error("rx window slot collision")
	}
	if e.window[i] == nil || e.window[i].sn != sn {
		e.window[i] = &sduRecord{sn: sn}
	}
	return e.window[i]
}

// HandleDataPDU implements §4.4. buf carries either a data PDU (a
// STATUS PDU piggybacked by the peer's Tx half is routed to
// ControlSink instead, since STATUS shares the same MAC transport).
func (e *Entity) HandleDataPDU(buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return errorcode.New(errorcode.ProgrammingError, "entity stopped")
	}
	if len(buf) == 0 {
		return errorcode.New(errorcode.MalformedPDU, "empty pdu")
	}
	if buf[0]&0x80 == 0 {
		if e.controlSink != nil {
			return e.controlSink.HandleControlPDU(buf)
		}
		return nil
	}

	h, hdrLen, err := wire.Decode(e.cfg.Format, e.cfg.SNWidth, buf)
	if err != nil {
		e.logger.WithError(err).Debug("discarding malformed data pdu")
		return errorcode.New(errorcode.MalformedPDU, err.Error())
	}
	payload := buf[hdrLen:]
	e.active = true
	width := e.cfg.SNWidth

	// Step 2: a poll bit triggers STATUS even on a PDU later discarded
	// as out-of-window or duplicate.
	if h.Poll {
		e.statusRequired.Store(true)
	}

	// Step 3: window check.
	if !width.InWindow(h.SN, e.rxNext) {
		e.logger.WithField("sn", h.SN).Debug("discarding out-of-window data pdu")
		return errorcode.New(errorcode.OutOfWindow, "sn outside rx window")
	}

	rec := e.getOrCreate(h.SN)

	// Step 4: duplicate check.
	if rec.fullyReceived {
		return errorcode.New(errorcode.Duplicate, "sn already fully received")
	}

	so := h.SO
	end := so + uint16(len(payload))
	if h.Seg == wire.SegFull {
		so = 0
		end = uint16(len(payload))
	}

	// Step 5: segment overlap check.
	if overlaps(rec, so, end) {
		e.logger.WithField("sn", h.SN).Debug("discarding overlapping segment")
		return errorcode.New(errorcode.Duplicate, "segment overlaps previously received data")
	}

	// Step 6: merge the segment (or promote to a full SDU).
	insertSegment(rec, h.Seg, so, end, payload)

	// Step 7.
	if !width.Less(h.SN, e.rxNextHighest) {
		e.rxNextHighest = width.Add(h.SN, 1)
	}

	// Step 8: deliver in-order completed SDUs.
	for width.Less(e.rxNext, e.rxNextHighest) {
		r := e.get(e.rxNext)
		if r == nil || !r.fullyReceived {
			break
		}
		e.pdcp.WritePDU(e.lcid, r.reassembled)
		e.clear(e.rxNext)
		e.rxNext = width.Add(e.rxNext, 1)
	}

	// Step 9: recompute RX_Highest_Status.
	e.rxHighestStatus = e.rxNextHighest
	for sn := e.rxNext; width.Less(sn, e.rxNextHighest); sn = width.Add(sn, 1) {
		r := e.get(sn)
		if r == nil || !r.fullyReceived {
			e.rxHighestStatus = sn
			break
		}
	}

	// Step 10: timer maintenance.
	e.maintainReassemblyTimer()

	return nil
}

func (e *Entity) gapAt(sn uint32) bool {
	r := e.get(sn)
	return r != nil && r.hasGap
}

func (e *Entity) maintainReassemblyTimer() {
	width := e.cfg.SNWidth
	if e.reassemblyTimer.Running() {
		outsideWindow := !width.InWindow(e.rxNextStatusTrigger, e.rxNext) &&
			e.rxNextStatusTrigger != width.Add(e.rxNext, width.AmWin())
		stop := e.rxNextStatusTrigger == e.rxNext ||
			(e.rxNextStatusTrigger == width.Add(e.rxNext, 1) && !e.gapAt(e.rxNext)) ||
			outsideWindow
		if stop {
			e.reassemblyTimer.Stop()
		}
	}
	if !e.reassemblyTimer.Running() {
		start := width.Less(width.Add(e.rxNext, 1), e.rxNextHighest) ||
			(e.rxNextHighest == width.Add(e.rxNext, 1) && e.gapAt(e.rxNext))
		if start {
			e.reassemblyTimer.Start()
			e.rxNextStatusTrigger = e.rxNextHighest
		}
	}
}

// onReassemblyExpiry implements the reassembly-timer-expiry rule of
// §4.4: RX_Highest_Status advances to the first gap at or after the
// trigger SN, STATUS required is set, and the timer restarts if a
// later gap still exists.
func (e *Entity) onReassemblyExpiry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	width := e.cfg.SNWidth

	sn := e.rxNextStatusTrigger
	for width.Less(sn, e.rxNextHighest) {
		r := e.get(sn)
		if r == nil || !r.fullyReceived {
			break
		}
		sn = width.Add(sn, 1)
	}
	e.rxHighestStatus = sn

	if width.Less(width.Add(e.rxHighestStatus, 1), e.rxNextHighest) {
		e.reassemblyTimer.Start()
		e.rxNextStatusTrigger = e.rxNextHighest
	}
	e.statusRequired.Store(true)
}

// TryServiceStatus is the cross-half interlock of §5: Tx calls this to
// learn whether a STATUS report is pending and, if so, to have it
// serialized into at most maxLen bytes. It attempts a non-blocking
// acquisition of the Rx mutex and returns (nil, false) rather than
// block, per the concurrency model's deadlock-avoidance rule.
func (e *Entity) TryServiceStatus(maxLen int) ([]byte, bool) {
	if !e.statusRequired.Load() {
		return nil, false
	}
	if e.statusProhibitTimer.Running() {
		return nil, false
	}
	if !e.mu.TryLock() {
		return nil, false
	}
	defer e.mu.Unlock()

	if !e.statusRequired.Load() || e.stopped {
		return nil, false
	}

	pdu := e.buildStatusPDU()
	if !pdu.Trim(maxLen) {
		return nil, false
	}
	encoded := status.Encode(pdu)
	if len(encoded) > maxLen {
		return nil, false
	}

	e.statusRequired.Store(false)
	if e.cfg.TStatusProhibit > 0 {
		e.statusProhibitTimer.Start()
	}
	return encoded, true
}

// PendingStatusSize reports the worst-case packed size of a STATUS PDU
// reflecting the current ACK/NACK state, used by Tx's buffer-state
// reporting (§4.3.5). It does not clear STATUS required.
func (e *Entity) PendingStatusSize() int {
	if !e.statusRequired.Load() {
		return 0
	}
	if !e.mu.TryLock() {
		return 0
	}
	defer e.mu.Unlock()
	return e.buildStatusPDU().PackedSize()
}

func (e *Entity) buildStatusPDU() *status.PDU {
	width := e.cfg.SNWidth
	p := status.New(width, e.rxHighestStatus)
	for sn := e.rxNext; width.Less(sn, e.rxHighestStatus); sn = width.Add(sn, 1) {
		r := e.get(sn)
		if r != nil && r.fullyReceived {
			continue
		}
		if r == nil {
			p.Push(status.NACK{SN: sn})
			continue
		}
		for _, rng := range missingRanges(r) {
			p.Push(status.NACK{SN: sn, HasSO: true, SOStart: rng.start, SOEnd: rng.end})
		}
	}
	return p
}

type soRange struct{ start, end uint16 }

func missingRanges(r *sduRecord) []soRange {
	var out []soRange
	expected := uint16(0)
	for _, s := range r.segs {
		if s.so > expected {
			out = append(out, soRange{expected, s.so})
		}
		if s.end > expected {
			expected = s.end
		}
	}
	if !r.sawLast {
		out = append(out, soRange{expected, 0xFFFF})
	}
	return out
}

func overlaps(rec *sduRecord, so, end uint16) bool {
	for _, s := range rec.segs {
		if so < s.end && s.so < end {
			return true
		}
	}
	return false
}

func insertSegment(rec *sduRecord, si wire.SegInfo, so, end uint16, data []byte) {
	owned := append([]byte(nil), data...)
	if si == wire.SegFull {
		rec.segs = []segRange{{so: 0, end: end, data: owned}}
		rec.sawLast = true
		rec.hasGap = false
		rec.fullyReceived = true
		rec.reassembled = owned
		return
	}

	i := 0
	for i < len(rec.segs) && rec.segs[i].so < so {
		i++
	}
	rec.segs = append(rec.segs, segRange{})
	copy(rec.segs[i+1:], rec.segs[i:])
	rec.segs[i] = segRange{so: so, end: end, data: owned}
	if si == wire.SegLast {
		rec.sawLast = true
	}
	recomputeFlags(rec)
}

func recomputeFlags(rec *sduRecord) {
	rec.hasGap = len(rec.segs) == 0 || rec.segs[0].so != 0
	for i := 1; i < len(rec.segs); i++ {
		if rec.segs[i].so != rec.segs[i-1].end {
			rec.hasGap = true
		}
	}
	rec.fullyReceived = !rec.hasGap && rec.sawLast
	if rec.fullyReceived {
		buf := make([]byte, 0, rec.segs[len(rec.segs)-1].end)
		for _, s := range rec.segs {
			buf = append(buf, s.data...)
		}
		rec.reassembled = buf
	}
}
