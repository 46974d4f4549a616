package control

import (
	"context"
	"log/slog"

	"github.com/c360/lnrelay/errors"
	"github.com/c360/lnrelay/metric"
	"github.com/c360/lnrelay/natsclient"
)

// Subscriber subscribes a handler to a subject
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (natsclient.Subscription, error)
}

// NATSChannel receives commands on a NATS subject
type NATSChannel struct {
	sub     Subscriber
	subject string
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewNATSChannel creates a channel listening on subject
func NewNATSChannel(sub Subscriber, subject string, logger *slog.Logger, metrics *metric.Metrics) *NATSChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSChannel{
		sub:     sub,
		subject: subject,
		logger:  logger.With("component", "control", "subject", subject),
		metrics: metrics,
	}
}

// Listen subscribes and delivers commands to h until ctx is done.
// Malformed payloads and handler failures are logged, never returned.
func (c *NATSChannel) Listen(ctx context.Context, h Handler) error {
	subscription, err := c.sub.Subscribe(ctx, c.subject, func(msgCtx context.Context, data []byte) {
		c.handle(msgCtx, data, h)
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSChannel", "Listen", "subscribe to control subject")
	}

	c.logger.Info("Listening for control commands")
	<-ctx.Done()

	if err := subscription.Unsubscribe(); err != nil {
		c.logger.Debug("Control unsubscribe failed", "error", err)
	}
	return nil
}

func (c *NATSChannel) handle(ctx context.Context, data []byte, h Handler) {
	cmd, err := ParseCommand(data)
	if err != nil {
		c.logger.Warn("Dropping malformed control command", "error", err)
		c.record("invalid", err)
		return
	}

	err = h(ctx, cmd)
	c.record(string(cmd.Action), err)
	if err != nil {
		c.logger.Error("Control command failed",
			"action", cmd.Action, "node_index", cmd.NodeIndex, "error", err)
	}
}

func (c *NATSChannel) record(action string, err error) {
	if c.metrics != nil {
		c.metrics.RecordCommand(action, err)
	}
}
