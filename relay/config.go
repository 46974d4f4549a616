package relay

import (
	"fmt"
	"time"

	"github.com/c360/lnrelay/errors"
	"github.com/c360/lnrelay/node"
)

// BackoffConfig bounds the reconnect wait
type BackoffConfig struct {
	Floor      time.Duration `json:"floor"`
	Ceiling    time.Duration `json:"ceiling"`
	Multiplier float64       `json:"multiplier"`
}

// Config configures a Supervisor
type Config struct {
	// Implementation is the node implementation this relay serves; it is
	// stamped as "source" on every forwarded event.
	Implementation node.Implementation `json:"implementation"`

	Backoff BackoffConfig `json:"backoff"`

	// PerNodeBackoff gives each node its own wait value and pending retry.
	// When false a single wait value and pending retry is shared by all nodes.
	PerNodeBackoff bool `json:"per_node_backoff"`

	// CancelPendingOnDisconnect lets Disconnect tear down entries whose
	// socket is not open, cancelling their pending retry.
	CancelPendingOnDisconnect bool `json:"cancel_pending_on_disconnect"`

	// ConnectOnStart connects every registry node of this implementation on Start
	ConnectOnStart bool `json:"connect_on_start"`

	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	EventQueueSize   int           `json:"event_queue_size"`
}

// DefaultConfig returns the relay defaults for Eclair nodes
func DefaultConfig() Config {
	return Config{
		Implementation: node.Eclair,
		Backoff: BackoffConfig{
			Floor:      500 * time.Millisecond,
			Ceiling:    64 * time.Second,
			Multiplier: 2,
		},
		PerNodeBackoff:   true,
		HandshakeTimeout: 45 * time.Second,
		EventQueueSize:   256,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Implementation == node.Unknown {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "check implementation")
	}
	if _, err := node.ParseImplementation(string(c.Implementation)); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "check implementation")
	}
	if c.Backoff.Floor <= 0 {
		return errors.WrapInvalid(fmt.Errorf("backoff floor must be positive, got %v", c.Backoff.Floor),
			"Config", "Validate", "check backoff")
	}
	if c.Backoff.Ceiling < c.Backoff.Floor {
		return errors.WrapInvalid(
			fmt.Errorf("backoff ceiling %v below floor %v", c.Backoff.Ceiling, c.Backoff.Floor),
			"Config", "Validate", "check backoff")
	}
	if c.Backoff.Multiplier < 1 {
		return errors.WrapInvalid(fmt.Errorf("backoff multiplier must be >= 1, got %v", c.Backoff.Multiplier),
			"Config", "Validate", "check backoff")
	}
	if c.HandshakeTimeout < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative handshake timeout"), "Config", "Validate", "check handshake")
	}
	if c.EventQueueSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative event queue size"), "Config", "Validate", "check queue")
	}
	return nil
}
