// Package config loads the wire-format and tuning constants a knet peer
// must agree on to interoperate, exposed as an overridable, viper-backed
// configuration surface rather than hard-coded values.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable value that is part of the wire contract, plus
// the transport-level knobs (buffer sizes, timeouts) a deployment may
// reasonably want to adjust without recompiling.
type Config struct {
	// ListenAddr is the local UDP address a Listener binds to.
	ListenAddr string `mapstructure:"listen_addr"`

	// StartingDatagramRate is the send rate a freshly initialized
	// connection uses, in datagrams/sec.
	StartingDatagramRate float64 `mapstructure:"starting_datagram_rate"`

	// NominalCeilingRate is the additive-increase ceiling the flow
	// controller climbs toward.
	NominalCeilingRate float64 `mapstructure:"nominal_ceiling_rate"`

	// MaxAckDelay is how long a pending ack may wait before it is flushed.
	MaxAckDelay time.Duration `mapstructure:"max_ack_delay"`

	// MaxPendingAcks is how many buffered acks force an early flush.
	MaxPendingAcks int `mapstructure:"max_pending_acks"`

	// MaxSendSize is the assumed socket maximum send size used to decide
	// when a message must be fragmented.
	MaxSendSize int `mapstructure:"max_send_size"`

	// ConnectionLostTimeout is the no-inbound-traffic deadline after which
	// a connection is forced Closed.
	ConnectionLostTimeout time.Duration `mapstructure:"connection_lost_timeout"`

	// DuplicateWindowSize bounds the inbound packet-id duplicate-detection
	// set.
	DuplicateWindowSize int `mapstructure:"duplicate_window_size"`

	// LogLevel is the logrus level name ("debug", "info", "warn", "error").
	LogLevel string `mapstructure:"log_level"`
}

// Default returns the wire-compatible default tuning values.
func Default() Config {
	return Config{
		ListenAddr:            ":19132",
		StartingDatagramRate:  70,
		NominalCeilingRate:    50,
		MaxAckDelay:           33 * time.Millisecond,
		MaxPendingAcks:        33,
		MaxSendSize:           1200,
		ConnectionLostTimeout: 15 * time.Second,
		DuplicateWindowSize:   65536,
		LogLevel:              "info",
	}
}

// Load resolves configuration from environment variables prefixed KNET_,
// the file at path (if non-empty), and the built-in defaults, in that order
// of precedence: an environment variable overrides the file, and the file
// overrides the defaults — the common viper config-file-then-env idiom.
func Load(path string) (Config, error) {
	v := viper.New()
	cfg := Default()
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("starting_datagram_rate", cfg.StartingDatagramRate)
	v.SetDefault("nominal_ceiling_rate", cfg.NominalCeilingRate)
	v.SetDefault("max_ack_delay", cfg.MaxAckDelay)
	v.SetDefault("max_pending_acks", cfg.MaxPendingAcks)
	v.SetDefault("max_send_size", cfg.MaxSendSize)
	v.SetDefault("connection_lost_timeout", cfg.ConnectionLostTimeout)
	v.SetDefault("duplicate_window_size", cfg.DuplicateWindowSize)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetEnvPrefix("knet")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return out, nil
}
