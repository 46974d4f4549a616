package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lnrelay/errors"
	"github.com/c360/lnrelay/node"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, node.Eclair, cfg.Implementation)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.Floor)
	assert.Equal(t, 64*time.Second, cfg.Backoff.Ceiling)
	assert.Equal(t, 2.0, cfg.Backoff.Multiplier)
	assert.True(t, cfg.PerNodeBackoff)
	assert.False(t, cfg.CancelPendingOnDisconnect)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing implementation", func(c *Config) { c.Implementation = node.Unknown }},
		{"unknown implementation", func(c *Config) { c.Implementation = "BTCD" }},
		{"zero floor", func(c *Config) { c.Backoff.Floor = 0 }},
		{"ceiling below floor", func(c *Config) { c.Backoff.Ceiling = 100 * time.Millisecond }},
		{"multiplier below one", func(c *Config) { c.Backoff.Multiplier = 0.5 }},
		{"negative handshake timeout", func(c *Config) { c.HandshakeTimeout = -time.Second }},
		{"negative queue size", func(c *Config) { c.EventQueueSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_ValidateAcceptsOtherImplementations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Implementation = node.LND
	assert.NoError(t, cfg.Validate())
}
