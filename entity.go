// Package rlcam is the root package: it bundles a Tx half and an Rx
// half into one managed AM bearer, wiring the Rx half into the Tx
// half as its StatusSource and the Tx half into the Rx half as its
// ControlSink per §5's cross-half interlock.
package rlcam

import (
	"github.com/sirupsen/logrus"

	"github.com/go-rlc/rlcam/pkg/config"
	"github.com/go-rlc/rlcam/pkg/rx"
	"github.com/go-rlc/rlcam/pkg/tx"
)

// PDCPSink is the combined upward interface to PDCP: reassembled SDU
// delivery plus delivery/failure notification for SDUs this bearer
// transmitted.
type PDCPSink interface {
	rx.PDCPSink
	tx.PDCPSink
}

// RRCSink is the upward interface to RRC (§6).
type RRCSink = tx.RRCSink

// Entity is one RLC AM bearer: a logical channel id, a Tx half, and
// an Rx half, sharing one configuration and one lifecycle.
type Entity struct {
	lcid   uint32
	logger *logrus.Entry

	Tx *tx.Entity
	Rx *rx.Entity
}

// NewEntity constructs an unconfigured bearer for logical channel
// lcid. Configure must be called before use.
func NewEntity(lcid uint32, pdcp PDCPSink, rrc RRCSink, bufferStateCB tx.BufferStateFunc, logger *logrus.Logger) *Entity {
	if logger == nil {
		logger = logrus.New()
	}
	entry := logger.WithField("lcid", lcid)

	rxEntity := rx.NewEntity(lcid, pdcp, nil, entry)
	txEntity := tx.NewEntity(lcid, rxEntity, pdcp, rrc, bufferStateCB, entry)
	// rxEntity forwards STATUS PDUs it recognizes in the data PDU
	// stream to this bearer's own Tx half; wiring this after both
	// halves exist avoids a chicken-and-egg constructor dependency.
	rxEntity.SetControlSink(txEntity)

	return &Entity{
		lcid:   lcid,
		logger: entry,
		Tx:     txEntity,
		Rx:     rxEntity,
	}
}

// Configure applies cfg to both halves, legal only prior to first use
// or after Reestablish (§6).
func (e *Entity) Configure(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.Tx.Configure(cfg); err != nil {
		return err
	}
	if err := e.Rx.Configure(cfg); err != nil {
		return err
	}
	return nil
}

// Reestablish discards all buffered data and resets both halves'
// state variables, keeping configuration, per §6.
func (e *Entity) Reestablish() {
	e.Tx.Reestablish()
	e.Rx.Reestablish()
}

// Stop reestablishes both halves and marks them non-accepting.
func (e *Entity) Stop() {
	e.Tx.Stop()
	e.Rx.Stop()
}

// WriteSDU enqueues an SDU from PDCP for transmission (§6).
func (e *Entity) WriteSDU(data []byte, pdcpSN uint32) error {
	return e.Tx.WriteSDU(data, pdcpSN)
}

// ReadPDU fills at most n bytes for the next MAC opportunity (§6).
func (e *Entity) ReadPDU(n int) []byte {
	return e.Tx.ReadPDU(n)
}

// GetBufferState reports pending Tx bytes by priority class (§6).
func (e *Entity) GetBufferState() (newtxBytes, prioBytes int) {
	return e.Tx.GetBufferState()
}

// HandleDataPDU delivers a PDU received over MAC to the Rx half,
// which routes control (STATUS) PDUs back to this bearer's Tx half
// (§6).
func (e *Entity) HandleDataPDU(buf []byte) error {
	return e.Rx.HandleDataPDU(buf)
}

// LCID returns the logical channel id this bearer was constructed
// with.
func (e *Entity) LCID() uint32 { return e.lcid }
