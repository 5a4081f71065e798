package errorcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := New(OutOfWindow, "sn outside window")
	assert.Equal(t, "out of window: sn outside window", err.Error())
	assert.Equal(t, OutOfWindow, err.Code)
}

func TestIs(t *testing.T) {
	err := New(Duplicate, "already received")
	assert.True(t, Is(err, Duplicate))
	assert.False(t, Is(err, MalformedPDU))
	assert.False(t, Is(nil, Duplicate))
}

func TestCodeStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "malformed pdu", MalformedPDU.String())
	assert.Equal(t, "programming error", ProgrammingError.String())
	assert.NotEmpty(t, Code(999).String())
}
