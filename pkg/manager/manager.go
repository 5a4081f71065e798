// Package manager manages a set of bearers keyed by logical channel
// id.
package manager

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-rlc/rlcam"
	"github.com/go-rlc/rlcam/pkg/config"
	"github.com/go-rlc/rlcam/pkg/errorcode"
	"github.com/go-rlc/rlcam/pkg/tx"
)

// Manager owns a collection of bearers (one Entity per logical
// channel id) sharing one PDCP/RRC upward wiring and one logger.
type Manager struct {
	mu      sync.Mutex
	bearers map[uint32]*rlcam.Entity
	pdcp    rlcam.PDCPSink
	rrc     rlcam.RRCSink
	logger  *logrus.Logger
}

// New constructs an empty Manager. pdcp and rrc are shared by every
// bearer added via AddBearer.
func New(pdcp rlcam.PDCPSink, rrc rlcam.RRCSink, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		bearers: map[uint32]*rlcam.Entity{},
		pdcp:    pdcp,
		rrc:     rrc,
		logger:  logger,
	}
}

// AddBearer creates and configures a new bearer for lcid, refusing if
// one already exists for that channel (mirroring
// pkg/network.Network.AddNode's ErrIdConflict check).
func (m *Manager) AddBearer(lcid uint32, cfg config.Config, bufferStateCB tx.BufferStateFunc) (*rlcam.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bearers[lcid]; ok {
		return nil, errorcode.New(errorcode.ConfigError, "bearer already exists for this logical channel id")
	}
	e := rlcam.NewEntity(lcid, m.pdcp, m.rrc, bufferStateCB, m.logger)
	if err := e.Configure(cfg); err != nil {
		return nil, err
	}
	m.bearers[lcid] = e
	m.logger.WithField("lcid", lcid).Info("bearer added")
	return e, nil
}

// RemoveBearer stops and discards the bearer for lcid.
func (m *Manager) RemoveBearer(lcid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.bearers[lcid]
	if !ok {
		return errorcode.New(errorcode.ConfigError, "no bearer for this logical channel id")
	}
	e.Stop()
	delete(m.bearers, lcid)
	m.logger.WithField("lcid", lcid).Info("bearer removed")
	return nil
}

// Bearer returns the Entity for lcid, or nil if none exists.
func (m *Manager) Bearer(lcid uint32) *rlcam.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bearers[lcid]
}

// Bearers returns the logical channel ids currently managed, in no
// particular order.
func (m *Manager) Bearers() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint32, 0, len(m.bearers))
	for lcid := range m.bearers {
		out = append(out, lcid)
	}
	return out
}

// ReestablishAll reestablishes every managed bearer, e.g. on RRC
// reconfiguration or handover.
func (m *Manager) ReestablishAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.bearers {
		e.Reestablish()
	}
}
