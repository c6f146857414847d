package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/packetflow/knet/config"
)

func TestNewLoggerFallsBackToConfigLevelWhenFlagUnset(t *testing.T) {
	origLevel, origCfg := logLevel, activeConfig
	defer func() { logLevel, activeConfig = origLevel, origCfg }()

	logLevel = ""
	activeConfig = config.Config{LogLevel: "debug"}

	log := newLogger()
	assert.NotNil(t, log)
}

func TestNewLoggerPrefersExplicitFlagOverConfig(t *testing.T) {
	origLevel, origCfg := logLevel, activeConfig
	defer func() { logLevel, activeConfig = origLevel, origCfg }()

	logLevel = "warn"
	activeConfig = config.Config{LogLevel: "debug"}

	log := newLogger()
	assert.NotNil(t, log)
}
