package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rlc/rlcam/pkg/errorcode"
	"github.com/go-rlc/rlcam/pkg/snum"
	"github.com/go-rlc/rlcam/pkg/wire"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadSNWidth(t *testing.T) {
	cfg := Default()
	cfg.SNWidth = snum.Width(11)
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errorcode.Is(err, errorcode.ConfigError))
}

func TestValidateRejectsMismatchedFormatWidth(t *testing.T) {
	cfg := Default()
	cfg.Format = wire.FormatLTE
	cfg.SNWidth = snum.Width12
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errorcode.Is(err, errorcode.ConfigError))
}

func TestValidateRejectsZeroMaxRetx(t *testing.T) {
	cfg := Default()
	cfg.MaxRetxThresh = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsTxQueueLengthOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.TxQueueLength = 0
	assert.Error(t, cfg.Validate())

	cfg.TxQueueLength = MaxTxQueueLength + 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeTimers(t *testing.T) {
	cfg := Default()
	cfg.TPollRetx = -1
	assert.Error(t, cfg.Validate())
}

func TestFromSectionOverlaysDefaults(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "bearer-*.ini")
	require.NoError(t, err)
	_, err = tmp.WriteString("[bearer]\nsn_width = 18\nformat = nr\npoll_pdu = 8\n")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	cfg, err := LoadINI(tmp.Name())
	require.NoError(t, err)
	assert.Equal(t, snum.Width18, cfg.SNWidth)
	assert.Equal(t, wire.FormatNR, cfg.Format)
	assert.EqualValues(t, 8, cfg.PollPDU)
	// Untouched keys keep Default()'s values.
	assert.Equal(t, Default().MaxRetxThresh, cfg.MaxRetxThresh)
	assert.NoError(t, cfg.Validate())
}

func TestLoadINIMissingFile(t *testing.T) {
	_, err := LoadINI("/nonexistent/path/bearer.ini")
	require.Error(t, err)
	assert.True(t, errorcode.Is(err, errorcode.ConfigError))
}
