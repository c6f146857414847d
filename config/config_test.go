package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesWireConstants(t *testing.T) {
	cfg := Default()
	assert.Equal(t, float64(70), cfg.StartingDatagramRate)
	assert.Equal(t, float64(50), cfg.NominalCeilingRate)
	assert.Equal(t, 33*time.Millisecond, cfg.MaxAckDelay)
	assert.Equal(t, 33, cfg.MaxPendingAcks)
	assert.Equal(t, 65536, cfg.DuplicateWindowSize)
}

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":19132", cfg.ListenAddr)
	assert.Equal(t, 1200, cfg.MaxSendSize)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/knet-config.yaml")
	assert.Error(t, err, "Load() with a missing file should fail")
}
