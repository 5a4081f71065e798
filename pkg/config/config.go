// Package config implements the bearer Config of §6/§10: a plain
// struct validated before being accepted by an Entity, refusing an
// invalid configuration rather than applying it and leaving the
// bearer half-configured.
package config

import (
	"time"

	"github.com/go-rlc/rlcam/pkg/errorcode"
	"github.com/go-rlc/rlcam/pkg/snum"
	"github.com/go-rlc/rlcam/pkg/wire"
)

// Bound on tx_queue_length, above which Validate refuses the config;
// chosen generously above any plausible bearer's in-flight SDU count.
const MaxTxQueueLength = 1 << 16

// Bound on the segment descriptor arena, matching §3's "free pool of
// fixed capacity (16384 by default)".
const DefaultSegmentArenaCapacity = 16384

// Config carries every field enumerated in spec §6.
type Config struct {
	SNWidth snum.Width
	Format  wire.Format

	TPollRetx       time.Duration
	TReassembly     time.Duration
	TStatusProhibit time.Duration

	PollPDU  uint32 // 0 disables
	PollByte uint32 // 0 disables, in bytes

	MaxRetxThresh uint8

	TxQueueLength        int
	SegmentArenaCapacity int

	// LTEPollPeriodicity is the fail-safe periodicity named in §4.5
	// ("LTE only"): when both poll_pdu and poll_byte are disabled,
	// every TX_Next % periodicity == 0 still sets the poll bit. Zero
	// disables the fail-safe entirely (not recommended for LTE).
	LTEPollPeriodicity uint32
}

// Default returns a Config with the values used by the §8 worked
// scenarios (sn_width=12, pollPDU=4, pollByte disabled,
// t_poll_retx=45ms, t_reassembly=35ms, max_retx_thresh=4).
func Default() Config {
	return Config{
		SNWidth:              snum.Width12,
		Format:               wire.FormatNR,
		TPollRetx:            45 * time.Millisecond,
		TReassembly:          35 * time.Millisecond,
		TStatusProhibit:      0,
		PollPDU:              4,
		PollByte:             0,
		MaxRetxThresh:        4,
		TxQueueLength:        256,
		SegmentArenaCapacity: DefaultSegmentArenaCapacity,
		LTEPollPeriodicity:   256,
	}
}

// Validate rejects an invalid SN width, a tx queue length beyond
// MaxTxQueueLength, a zero max retx threshold, or a format/SN-width
// pairing the wire codec does not support (LTE requires width 10; NR
// requires 12 or 18), per §7's "Configuration error" taxonomy entry:
// refuse and keep the previous state.
func (c Config) Validate() error {
	if !c.SNWidth.Valid() {
		return errorcode.New(errorcode.ConfigError, "sn_width must be 10, 12 or 18")
	}
	switch c.Format {
	case wire.FormatLTE:
		if c.SNWidth != snum.Width10 {
			return errorcode.New(errorcode.ConfigError, "lte format requires sn_width=10")
		}
	case wire.FormatNR:
		if c.SNWidth != snum.Width12 && c.SNWidth != snum.Width18 {
			return errorcode.New(errorcode.ConfigError, "nr format requires sn_width=12 or 18")
		}
	default:
		return errorcode.New(errorcode.ConfigError, "unknown pdu format")
	}
	if c.TxQueueLength <= 0 || c.TxQueueLength > MaxTxQueueLength {
		return errorcode.New(errorcode.ConfigError, "tx_queue_length out of range")
	}
	if c.MaxRetxThresh == 0 {
		return errorcode.New(errorcode.ConfigError, "max_retx_thresh must be >= 1")
	}
	if c.SegmentArenaCapacity <= 0 {
		return errorcode.New(errorcode.ConfigError, "segment arena capacity must be positive")
	}
	if c.TPollRetx < 0 || c.TReassembly < 0 || c.TStatusProhibit < 0 {
		return errorcode.New(errorcode.ConfigError, "timer durations must be non-negative")
	}
	return nil
}
