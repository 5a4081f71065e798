// Package errorcode implements the error taxonomy of §7: a small set
// of typed codes plus a description map and an Error() string method,
// favoring "classify, describe, keep running" over aborting.
package errorcode

import "fmt"

// Code classifies why an RLC AM operation was refused or a PDU was
// discarded, per §7's error taxonomy.
type Code int

const (
	// MalformedPDU covers reserved bits set, a truncated header, or a
	// segment offset overflowing the advertised length.
	MalformedPDU Code = iota
	// OutOfWindow covers an SN outside the receive window, an ACK_SN
	// outside the valid ACK window, or a retx request for an unknown SN.
	OutOfWindow
	// Duplicate covers an SN already fully received or a retx request
	// already queued.
	Duplicate
	// ResourceExhaustion covers segment-pool exhaustion or a full SDU
	// queue.
	ResourceExhaustion
	// ConfigError covers an invalid configuration value.
	ConfigError
	// MaxRetx covers the SN's retransmission count reaching
	// max_retx_thresh.
	MaxRetx
	// ProgrammingError covers an invariant break the implementation
	// detected in its own state (e.g. a window slot collision).
	ProgrammingError
)

var descriptions = map[Code]string{
	MalformedPDU:       "malformed pdu",
	OutOfWindow:        "out of window",
	Duplicate:          "duplicate",
	ResourceExhaustion: "resource exhaustion",
	ConfigError:        "invalid configuration",
	MaxRetx:            "max retx threshold reached",
	ProgrammingError:   "programming error",
}

// String returns the human-readable description of c.
func (c Code) String() string {
	if s, ok := descriptions[c]; ok {
		return s
	}
	return "unknown error"
}

// Error is a sentinel error carrying a Code plus a short, specific
// message, so callers can test error classes with errors.As while
// still getting a useful log line.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// New constructs an *Error of the given code with a specific message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Is reports whether err is an *Error of code c, for errors.Is-style
// callers that only care about the class.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
