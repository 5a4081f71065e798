package config

import (
	"time"

	"gopkg.in/ini.v1"

	"github.com/go-rlc/rlcam/pkg/errorcode"
	"github.com/go-rlc/rlcam/pkg/snum"
	"github.com/go-rlc/rlcam/pkg/wire"
)

// LoadINI loads a bearer Config from the "[bearer]" section of an ini
// file. Missing keys fall back to Default()'s values; the result is
// NOT validated here — callers pass it through Validate (or
// Entity.Configure, which calls Validate internally) before use.
func LoadINI(path string) (Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Config{}, errorcode.New(errorcode.ConfigError, "cannot load ini file: "+err.Error())
	}
	return FromSection(f.Section("bearer")), nil
}

// FromSection builds a Config by overlaying an ini section's keys onto
// Default(). Exported separately from LoadINI so callers that already
// hold a parsed *ini.File (e.g. one shared with other bearer sections)
// can reuse it without re-reading the file.
func FromSection(sec *ini.Section) Config {
	c := Default()

	if sec.HasKey("sn_width") {
		c.SNWidth = snum.Width(sec.Key("sn_width").MustUint(uint(c.SNWidth)))
	}
	if sec.HasKey("format") {
		if sec.Key("format").MustString("nr") == "lte" {
			c.Format = wire.FormatLTE
		} else {
			c.Format = wire.FormatNR
		}
	}
	c.TPollRetx = time.Duration(sec.Key("t_poll_retx_ms").MustInt64(int64(c.TPollRetx/time.Millisecond))) * time.Millisecond
	c.TReassembly = time.Duration(sec.Key("t_reassembly_ms").MustInt64(int64(c.TReassembly/time.Millisecond))) * time.Millisecond
	c.TStatusProhibit = time.Duration(sec.Key("t_status_prohibit_ms").MustInt64(int64(c.TStatusProhibit/time.Millisecond))) * time.Millisecond
	c.PollPDU = uint32(sec.Key("poll_pdu").MustUint(uint(c.PollPDU)))
	c.PollByte = uint32(sec.Key("poll_byte").MustUint(uint(c.PollByte)))
	c.MaxRetxThresh = uint8(sec.Key("max_retx_thresh").MustUint(uint(c.MaxRetxThresh)))
	c.TxQueueLength = sec.Key("tx_queue_length").MustInt(c.TxQueueLength)
	c.SegmentArenaCapacity = sec.Key("segment_arena_capacity").MustInt(c.SegmentArenaCapacity)
	c.LTEPollPeriodicity = uint32(sec.Key("lte_poll_periodicity").MustUint(uint(c.LTEPollPeriodicity)))

	return c
}
