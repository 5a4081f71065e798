// Package tx implements the RLC AM transmit half of §4.3: the SDU
// queue, segmentation, the sliding tx window and retransmission
// queue, polling policy, and STATUS report interpretation.
package tx

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-rlc/rlcam/pkg/config"
	"github.com/go-rlc/rlcam/pkg/errorcode"
	"github.com/go-rlc/rlcam/pkg/segment"
	"github.com/go-rlc/rlcam/pkg/status"
	"github.com/go-rlc/rlcam/pkg/timer"
	"github.com/go-rlc/rlcam/pkg/wire"
)

// NotStarted is the retransmission-counter sentinel of §3: no retx has
// happened yet for this tx window entry.
const NotStarted = -1

// PDCPSink is the upward interface from Tx to PDCP (§6).
type PDCPSink interface {
	NotifyDelivery(lcid uint32, pdcpSNs []uint32)
	NotifyFailure(lcid uint32, pdcpSNs []uint32)
}

// RRCSink is the upward interface from Tx to RRC (§6).
type RRCSink interface {
	MaxRetxAttempted(lcid uint32)
}

// StatusSource is the cross-half interlock of §5: the local Rx half,
// queried for a pending STATUS report to piggyback into a MAC
// opportunity.
type StatusSource interface {
	TryServiceStatus(maxLen int) ([]byte, bool)
	PendingStatusSize() int
}

// BufferStateFunc is the optional registered callback of §4.3.5,
// invoked with the latest (newtx_bytes, prio_bytes) whenever they may
// have changed.
type BufferStateFunc func(newtxBytes, prioBytes int)

type sduQueueItem struct {
	data   []byte
	pdcpSN uint32
}

// txPDU is one tx_window[sn] entry (§3).
type txPDU struct {
	rlcSN            uint32
	pdcpSN           uint32
	data             []byte
	retxCount        int
	segs             *segment.List
	fullyTransmitted bool
	nextSO           uint16
}

// retxRequest is one entry of the retx queue (§3).
type retxRequest struct {
	sn            uint32
	isSegment     bool
	soStart       uint16
	currentSO     uint16
	segmentLength uint16
}

// built is the in-progress result of one of the three read_pdu
// builders, carrying the header separately from the payload so the
// poll bit (decided only after the PDU's content and counters are
// settled) can be folded in before encoding.
type built struct {
	header   wire.DataHeader
	payload  []byte
	isNewTx  bool // counts toward PDU_WITHOUT_POLL/BYTE_WITHOUT_POLL
	sduBytes int
	sn       uint32
}

// Entity is the Tx half of one AM bearer.
type Entity struct {
	mu     sync.Mutex
	lcid   uint32
	cfg    config.Config
	logger *logrus.Entry

	queue []sduQueueItem

	window    []*txPDU
	txNext    uint32
	txNextAck uint32

	pollSN          uint32
	pduWithoutPoll  uint32
	byteWithoutPoll uint32

	segUnderSN int64 // NotStarted, or the SN currently being segmented
	arena      *segment.Arena

	retxQueue []retxRequest

	pollTimer *timer.Timer

	statusSource  StatusSource
	pdcp          PDCPSink
	rrc           RRCSink
	bufferStateCB BufferStateFunc

	active  bool
	stopped bool
}

// NewEntity constructs an unconfigured Tx half for logical channel
// lcid. Configure must be called before use.
func NewEntity(lcid uint32, statusSource StatusSource, pdcp PDCPSink, rrc RRCSink, bufferStateCB BufferStateFunc, logger *logrus.Entry) *Entity {
	e := &Entity{
		lcid:          lcid,
		statusSource:  statusSource,
		pdcp:          pdcp,
		rrc:           rrc,
		bufferStateCB: bufferStateCB,
		logger:        logger.WithField("half", "tx"),
		segUnderSN:    NotStarted,
	}
	e.pollTimer = timer.NewAuto(0, e.onPollRetxExpiry)
	return e
}

// Configure applies cfg, legal only prior to first use or after
// Reestablish.
func (e *Entity) Configure(cfg config.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return errorcode.New(errorcode.ConfigError, "cannot reconfigure an active tx entity without reestablish")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.pollTimer.SetDuration(cfg.TPollRetx)
	e.arena = segment.NewArena(cfg.SegmentArenaCapacity)
	e.window = make([]*txPDU, cfg.SNWidth.AmWin())
	e.resetState()
	return nil
}

func (e *Entity) resetState() {
	e.queue = nil
	e.txNext = 0
	e.txNextAck = 0
	e.pollSN = 0
	e.pduWithoutPoll = 0
	e.byteWithoutPoll = 0
	e.segUnderSN = NotStarted
	e.retxQueue = nil
	for i := range e.window {
		e.window[i] = nil
	}
	e.active = false
}

// Reestablish discards all buffered data and resets every state
// variable, stopping the poll-retransmit timer, per §6.
func (e *Entity) Reestablish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pollTimer.Stop()
	if e.cfg.SegmentArenaCapacity > 0 {
		e.arena = segment.NewArena(e.cfg.SegmentArenaCapacity)
	}
	e.resetState()
	e.stopped = false
}

// Stop reestablishes and marks the entity non-accepting.
func (e *Entity) Stop() {
	e.mu.Lock()
	e.pollTimer.Stop()
	if e.cfg.SegmentArenaCapacity > 0 {
		e.arena = segment.NewArena(e.cfg.SegmentArenaCapacity)
	}
	e.resetState()
	e.stopped = true
	e.mu.Unlock()
}

func (e *Entity) idx(sn uint32) uint32 { return sn % e.cfg.SNWidth.AmWin() }

func (e *Entity) get(sn uint32) *txPDU {
	r := e.window[e.idx(sn)]
	if r != nil && r.rlcSN == sn {
		return r
	}
	return nil
}

func (e *Entity) setWindow(sn uint32, rec *txPDU) {
	i := e.idx(sn)
	if e.window[i] != nil {
		e.logger.WithField("sn", sn).Error("tx window slot collision")
	}
	e.window[i] = rec
}

func (e *Entity) clear(sn uint32) { e.window[e.idx(sn)] = nil }

func (e *Entity) windowFull() bool {
	width := e.cfg.SNWidth
	return width.Sub(e.txNext, e.txNextAck) >= width.AmWin()
}

func minHeaderLen(cfg config.Config) int { return wire.HeaderLen(cfg.Format, cfg.SNWidth) }
func soFieldLen(cfg config.Config) int   { return wire.SOFieldLen(cfg.Format) }

// WriteSDU enqueues an SDU from PDCP, failing if the tx SDU queue is
// at its configured capacity (§6, §7 resource exhaustion).
func (e *Entity) WriteSDU(data []byte, pdcpSN uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return errorcode.New(errorcode.ProgrammingError, "entity stopped")
	}
	e.active = true
	if len(e.queue) >= e.cfg.TxQueueLength {
		return errorcode.New(errorcode.ResourceExhaustion, "tx sdu queue full")
	}
	e.queue = append(e.queue, sduQueueItem{data: data, pdcpSN: pdcpSN})
	e.reportBufferStateLocked()
	return nil
}

// ReadPDU implements the §4.3 priority pipeline for one MAC
// opportunity of n bytes, returning at most n bytes or nil if nothing
// can be built.
func (e *Entity) ReadPDU(n int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || n <= 0 {
		return nil
	}
	e.active = true

	if e.statusSource != nil {
		if b, ok := e.statusSource.TryServiceStatus(n); ok {
			e.reportBufferStateLocked()
			return b
		}
	}

	var b *built
	if len(e.retxQueue) > 0 {
		b = e.buildRetxPDU(n)
	}
	if b == nil && e.segUnderSN >= 0 {
		b = e.buildSegmentContinuation(n)
	}
	if b == nil && len(e.queue) > 0 && !e.windowFull() {
		b = e.buildNewSDUPDU(n)
	}
	if b == nil {
		return nil
	}

	e.finalizePollAndCounters(b)

	hdrBytes, err := wire.Encode(b.header)
	if err != nil {
		e.logger.WithError(err).Error("failed to encode outgoing data pdu header")
		return nil
	}
	out := make([]byte, 0, len(hdrBytes)+len(b.payload))
	out = append(out, hdrBytes...)
	out = append(out, b.payload...)
	e.reportBufferStateLocked()
	return out
}

func (e *Entity) buildNewSDUPDU(n int) *built {
	item := e.queue[0]
	h := minHeaderLen(e.cfg)
	sn := e.txNext

	if len(item.data)+h <= n {
		e.queue = e.queue[1:]
		rec := &txPDU{
			rlcSN:            sn,
			pdcpSN:           item.pdcpSN,
			data:             item.data,
			retxCount:        NotStarted,
			segs:             segment.NewList(e.arena),
			fullyTransmitted: true,
		}
		e.setWindow(sn, rec)
		e.txNext = e.cfg.SNWidth.Add(sn, 1)
		hdr := wire.DataHeader{Format: e.cfg.Format, SNWidth: e.cfg.SNWidth, DC: wire.DCData, Seg: wire.SegFull, SN: sn}
		return &built{header: hdr, payload: item.data, isNewTx: true, sduBytes: len(item.data), sn: sn}
	}

	payloadLen := n - h
	if payloadLen <= 0 {
		return nil
	}
	rec := &txPDU{rlcSN: sn, pdcpSN: item.pdcpSN, data: item.data, retxCount: NotStarted, segs: segment.NewList(e.arena)}
	if _, err := rec.segs.Append(sn, 0, uint16(payloadLen), item.data[:payloadLen]); err != nil {
		e.logger.WithError(err).Debug("segment arena exhausted, refusing new-sdu pdu")
		return nil
	}
	rec.nextSO = uint16(payloadLen)
	e.queue = e.queue[1:]
	e.setWindow(sn, rec)
	e.segUnderSN = int64(sn)
	e.txNext = e.cfg.SNWidth.Add(sn, 1)
	hdr := wire.DataHeader{Format: e.cfg.Format, SNWidth: e.cfg.SNWidth, DC: wire.DCData, Seg: wire.SegFirst, SN: sn}
	return &built{header: hdr, payload: item.data[:payloadLen], isNewTx: true, sduBytes: payloadLen, sn: sn}
}

func (e *Entity) buildSegmentContinuation(n int) *built {
	sn := uint32(e.segUnderSN)
	rec := e.get(sn)
	if rec == nil {
		e.segUnderSN = NotStarted
		return nil
	}

	so := rec.nextSO
	h := minHeaderLen(e.cfg) + soFieldLen(e.cfg)
	if n <= h {
		return nil
	}
	remaining := len(rec.data) - int(so)
	payloadLen := n - h
	last := false
	if payloadLen >= remaining {
		payloadLen = remaining
		last = true
	}

	si := wire.SegMiddle
	if last {
		si = wire.SegLast
	}
	end := so + uint16(payloadLen)
	if _, err := rec.segs.Append(sn, so, end, rec.data[so:end]); err != nil {
		e.logger.WithError(err).Debug("segment arena exhausted, refusing segment continuation")
		return nil
	}
	rec.nextSO = end

	if last {
		rec.fullyTransmitted = true
		e.segUnderSN = NotStarted
	}

	hdr := wire.DataHeader{Format: e.cfg.Format, SNWidth: e.cfg.SNWidth, DC: wire.DCData, Seg: si, SN: sn, SO: so}
	return &built{header: hdr, payload: rec.data[so:end], isNewTx: true, sduBytes: payloadLen, sn: sn}
}

func (e *Entity) buildRetxPDU(n int) *built {
	for len(e.retxQueue) > 0 {
		req := e.retxQueue[0]
		rec := e.get(req.sn)
		if rec == nil {
			e.retxQueue = e.retxQueue[1:]
			continue
		}

		l := req.segmentLength
		if !req.isSegment {
			l = uint16(len(rec.data))
		}
		remaining := l - (req.currentSO - req.soStart)

		hExp := minHeaderLen(e.cfg)
		hasSO := req.currentSO != 0
		if hasSO {
			hExp += soFieldLen(e.cfg)
		}

		if n < hExp+1 {
			break
		}

		if n >= hExp+int(remaining) {
			payload := rec.data[req.currentSO : req.currentSO+remaining]
			si := siForRetx(req, rec, remaining)
			hdr := wire.DataHeader{Format: e.cfg.Format, SNWidth: e.cfg.SNWidth, DC: wire.DCData, Seg: si, SN: req.sn}
			if hasSO {
				hdr.SO = req.currentSO
			}
			e.retxQueue = e.retxQueue[1:]
			return &built{header: hdr, payload: payload, sn: req.sn}
		}

		payloadLen := uint16(n - hExp)
		if payloadLen == 0 {
			break
		}
		payload := rec.data[req.currentSO : req.currentSO+payloadLen]
		si := siForRetx(req, rec, payloadLen)
		hdr := wire.DataHeader{Format: e.cfg.Format, SNWidth: e.cfg.SNWidth, DC: wire.DCData, Seg: si, SN: req.sn}
		if hasSO {
			hdr.SO = req.currentSO
		}
		e.recordEmittedRange(rec, req.currentSO, payloadLen)
		e.retxQueue[0].currentSO += payloadLen
		return &built{header: hdr, payload: payload, sn: req.sn}
	}
	return nil
}

// siForRetx chooses the SI/FI for a retransmission PDU per §4.3.3.
func siForRetx(req retxRequest, rec *txPDU, emittedLen uint16) wire.SegInfo {
	total := uint16(len(rec.data))
	wholeSDU := !req.isSegment && req.currentSO == 0 && emittedLen == total
	if wholeSDU {
		return wire.SegFull
	}
	if req.currentSO == 0 {
		return wire.SegFirst
	}
	if req.currentSO+emittedLen == total {
		return wire.SegLast
	}
	return wire.SegMiddle
}

// recordEmittedRange appends a descriptor for a resegmented retx's
// emitted sub-range, best-effort: arena exhaustion here does not
// abort the retx PDU already built, since the descriptor is only used
// to align future NACK-driven retx splits, not to deliver data.
func (e *Entity) recordEmittedRange(rec *txPDU, so, length uint16) {
	if _, err := rec.segs.Append(rec.rlcSN, so, so+length, nil); err != nil {
		e.logger.WithError(err).Debug("segment arena exhausted recording retx sub-range")
	}
}

func (e *Entity) queueWholeSDURetx(sn uint32) {
	for _, r := range e.retxQueue {
		if r.sn == sn && !r.isSegment {
			return
		}
	}
	e.retxQueue = append(e.retxQueue, retxRequest{sn: sn, isSegment: false})
}

func (e *Entity) queueSegmentRetx(sn uint32, so, length uint16) {
	for _, r := range e.retxQueue {
		if r.sn == sn && r.isSegment && r.soStart == so {
			return
		}
	}
	e.retxQueue = append(e.retxQueue, retxRequest{sn: sn, isSegment: true, soStart: so, currentSO: so, segmentLength: length})
}

// decidePoll implements §4.5's poll-bit predicate, evaluated for
// every outgoing data PDU (new tx, continuation, or retx) after that
// PDU's content and counters have been settled.
func (e *Entity) decidePoll() bool {
	if e.cfg.PollPDU > 0 && e.pduWithoutPoll >= e.cfg.PollPDU {
		return true
	}
	if e.cfg.PollByte > 0 && e.byteWithoutPoll >= e.cfg.PollByte {
		return true
	}
	if len(e.queue) == 0 && len(e.retxQueue) == 0 && e.segUnderSN < 0 {
		return true
	}
	if e.windowFull() {
		return true
	}
	if e.cfg.Format == wire.FormatLTE && e.cfg.PollPDU == 0 && e.cfg.PollByte == 0 &&
		e.cfg.LTEPollPeriodicity > 0 && e.txNext%e.cfg.LTEPollPeriodicity == 0 {
		return true
	}
	return false
}

func (e *Entity) finalizePollAndCounters(b *built) {
	if b.isNewTx {
		e.pduWithoutPoll++
		e.byteWithoutPoll += uint32(b.sduBytes)
	}
	poll := e.decidePoll()
	if poll {
		e.pduWithoutPoll = 0
		e.byteWithoutPoll = 0
		if b.isNewTx {
			e.pollSN = b.sn
		}
		e.pollTimer.Start()
	}
	b.header.Poll = poll
}

// onPollRetxExpiry implements §4.5's poll-retransmit timer expiry
// rule.
func (e *Entity) onPollRetxExpiry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !(len(e.queue) == 0 && len(e.retxQueue) == 0) && !e.windowFull() {
		return
	}
	rec := e.get(e.txNextAck)
	if rec == nil {
		return
	}
	if d, ok := rec.segs.First(); ok {
		end := d.SOEnd
		if end == 0xFFFF {
			end = uint16(len(rec.data))
		}
		e.queueSegmentRetx(rec.rlcSN, d.SOStart, end-d.SOStart)
	} else {
		e.queueWholeSDURetx(rec.rlcSN)
	}
	e.reportBufferStateLocked()
}

// HandleControlPDU implements §4.3.4: interpretation of a STATUS PDU
// received from the peer (delivered here by the local Rx half, which
// recognizes control PDUs in the data PDU stream). PDCP/RRC
// notifications are accumulated under the lock and fired after it is
// released, per §5's "PDCP callbacks do not execute under the RLC
// lock".
func (e *Entity) HandleControlPDU(buf []byte) error {
	e.mu.Lock()

	if e.stopped {
		e.mu.Unlock()
		return errorcode.New(errorcode.ProgrammingError, "entity stopped")
	}
	e.active = true

	pdu, err := status.Decode(e.cfg.SNWidth, buf)
	if err != nil {
		e.mu.Unlock()
		e.logger.WithError(err).Debug("discarding malformed status pdu")
		return errorcode.New(errorcode.MalformedPDU, err.Error())
	}

	width := e.cfg.SNWidth
	ackSN := pdu.ACKSN
	inRange := width.Less(e.txNextAck, ackSN) && width.LessEq(ackSN, width.Add(e.txNextAck, width.AmWin()))
	tooHigh := width.Less(width.Add(e.txNext, 1), ackSN)
	if !inRange || tooHigh {
		e.mu.Unlock()
		e.logger.WithField("ack_sn", ackSN).Debug("discarding status pdu with out-of-window ack_sn")
		return errorcode.New(errorcode.OutOfWindow, "ack_sn outside valid ack window")
	}

	if width.LessEq(e.txNextAck, e.pollSN) && width.Less(e.pollSN, ackSN) {
		e.pollTimer.Stop()
	}

	e.retxQueue = nil

	firstNackSN := ackSN
	nacks := pdu.Nacks()
	if len(nacks) > 0 {
		firstNackSN = nacks[0].SN
	}

	var delivered []uint32
	for width.Less(e.txNextAck, ackSN) && width.Less(e.txNextAck, firstNackSN) {
		rec := e.get(e.txNextAck)
		if rec == nil {
			break
		}
		delivered = append(delivered, rec.pdcpSN)
		rec.segs.Clear()
		e.clear(e.txNextAck)
		e.txNextAck = width.Add(e.txNextAck, 1)
	}

	var maxRetxHits int
	var failedPDCP []uint32
	for _, nack := range nacks {
		count := uint32(1)
		if nack.HasNACKRange {
			count = uint32(nack.NACKRange)
		}
		for i := uint32(0); i < count; i++ {
			sn := width.Add(nack.SN, i)
			if hit, pdcpSN, ok := e.processNack(sn, nack); ok && hit {
				maxRetxHits++
				failedPDCP = append(failedPDCP, pdcpSN)
			}
		}
	}

	e.reportBufferStateLocked()
	e.mu.Unlock()

	if len(delivered) > 0 && e.pdcp != nil {
		e.pdcp.NotifyDelivery(e.lcid, delivered)
	}
	for i := 0; i < maxRetxHits; i++ {
		if e.rrc != nil {
			e.rrc.MaxRetxAttempted(e.lcid)
		}
	}
	if len(failedPDCP) > 0 && e.pdcp != nil {
		e.pdcp.NotifyFailure(e.lcid, failedPDCP)
	}
	return nil
}

// processNack applies one expanded (non-range) NACK entry to the SN
// it names: queues whatever retransmissions are needed and advances
// that SN's retx counter, reporting whether the counter has reached
// max_retx_thresh (true again on every later NACK of that SN).
func (e *Entity) processNack(sn uint32, nack status.NACK) (hit bool, pdcpSN uint32, ok bool) {
	rec := e.get(sn)
	if rec == nil {
		e.logger.WithField("sn", sn).Debug("status nack for unknown sn, ignoring")
		return false, 0, false
	}

	total := uint16(len(rec.data))
	if nack.HasSO {
		nackEnd := nack.SOEnd
		if nackEnd == 0xFFFF {
			nackEnd = total
		}
		rec.segs.Each(func(d segment.Desc) {
			segEnd := d.SOEnd
			if segEnd == 0xFFFF {
				segEnd = total
			}
			if d.SOStart < nackEnd && nack.SOStart < segEnd {
				e.queueSegmentRetx(sn, d.SOStart, segEnd-d.SOStart)
			}
		})
	} else if rec.segs.Empty() {
		e.queueWholeSDURetx(sn)
	} else {
		rec.segs.Each(func(d segment.Desc) {
			segEnd := d.SOEnd
			if segEnd == 0xFFFF {
				segEnd = total
			}
			e.queueSegmentRetx(sn, d.SOStart, segEnd-d.SOStart)
		})
	}

	if rec.retxCount == NotStarted {
		rec.retxCount = 0
	} else {
		rec.retxCount++
	}
	if rec.retxCount >= int(e.cfg.MaxRetxThresh) {
		return true, rec.pdcpSN, true
	}
	return false, rec.pdcpSN, true
}

// GetBufferState implements §4.3.5.
func (e *Entity) GetBufferState() (newtxBytes int, prioBytes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.computeBufferState()
}

func (e *Entity) computeBufferState() (int, int) {
	prio := 0
	if e.statusSource != nil {
		prio += e.statusSource.PendingStatusSize()
	}
	for _, r := range e.retxQueue {
		h := minHeaderLen(e.cfg)
		if r.currentSO != 0 {
			h += soFieldLen(e.cfg)
		}
		l := r.segmentLength
		if !r.isSegment {
			if rec := e.get(r.sn); rec != nil {
				l = uint16(len(rec.data))
			}
		}
		remaining := l - (r.currentSO - r.soStart)
		prio += h + int(remaining)
	}

	newtx := 0
	if e.segUnderSN >= 0 {
		if rec := e.get(uint32(e.segUnderSN)); rec != nil {
			remaining := len(rec.data) - int(rec.nextSO)
			newtx += remaining + minHeaderLen(e.cfg) + soFieldLen(e.cfg)
		}
	}
	for _, item := range e.queue {
		newtx += len(item.data) + minHeaderLen(e.cfg)
	}
	return newtx, prio
}

func (e *Entity) reportBufferStateLocked() {
	if e.bufferStateCB == nil {
		return
	}
	newtx, prio := e.computeBufferState()
	e.bufferStateCB(newtx, prio)
}
