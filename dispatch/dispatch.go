// Package dispatch forwards relayed node events and errors to dashboard
// clients. The NATS dispatcher publishes them on per-node subjects; LogSink
// and Fanout cover local development and multiple downstreams.
package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/lnrelay/errors"
	"github.com/c360/lnrelay/metric"
	"github.com/c360/lnrelay/node"
)

// Dispatcher is the sink the relay pushes node events and errors into
type Dispatcher interface {
	SendEvent(ctx context.Context, payload []byte, n *node.Descriptor) error
	SendError(ctx context.Context, err error, n *node.Descriptor) error
}

// Publisher publishes raw data to a subject
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// DefaultPrefix is the subject prefix used when none is configured
const DefaultPrefix = "lnrelay"

// ErrorEvent is the payload published for a node transport error
type ErrorEvent struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	NodeIndex int       `json:"node_index"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSubject returns the subject carrying events for a node
func EventSubject(prefix string, index int) string {
	return fmt.Sprintf("%s.node.%d.events", prefix, index)
}

// ErrorSubject returns the subject carrying errors for a node
func ErrorSubject(prefix string, index int) string {
	return fmt.Sprintf("%s.node.%d.errors", prefix, index)
}

// NATS publishes events and errors through a Publisher
type NATS struct {
	pub     Publisher
	prefix  string
	metrics *metric.Metrics
	now     func() time.Time
}

// Option configures the NATS dispatcher
type Option func(*NATS)

// WithMetrics records dispatch counts in m
func WithMetrics(m *metric.Metrics) Option {
	return func(d *NATS) {
		d.metrics = m
	}
}

// NewNATS creates a dispatcher publishing under prefix
func NewNATS(pub Publisher, prefix string, opts ...Option) *NATS {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	d := &NATS{pub: pub, prefix: prefix, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendEvent publishes an already-stamped event payload
func (d *NATS) SendEvent(ctx context.Context, payload []byte, n *node.Descriptor) error {
	if n == nil {
		return errors.WrapInvalid(errors.ErrUnknownNode, "NATS", "SendEvent", "resolve node")
	}

	err := d.pub.Publish(ctx, EventSubject(d.prefix, n.Index), payload)
	d.record("event", err)
	if err != nil {
		return errors.WrapTransient(err, "NATS", "SendEvent", "publish event")
	}
	return nil
}

// SendError publishes an ErrorEvent describing err
func (d *NATS) SendError(ctx context.Context, err error, n *node.Descriptor) error {
	if n == nil {
		return errors.WrapInvalid(errors.ErrUnknownNode, "NATS", "SendError", "resolve node")
	}

	data, marshalErr := json.Marshal(NewErrorEvent(err, n, d.now()))
	if marshalErr != nil {
		return errors.WrapInvalid(marshalErr, "NATS", "SendError", "marshal error event")
	}

	pubErr := d.pub.Publish(ctx, ErrorSubject(d.prefix, n.Index), data)
	d.record("error", pubErr)
	if pubErr != nil {
		return errors.WrapTransient(pubErr, "NATS", "SendError", "publish error event")
	}
	return nil
}

func (d *NATS) record(kind string, err error) {
	if d.metrics != nil {
		d.metrics.RecordDispatch(kind, err)
	}
}

// NewErrorEvent builds the error payload for node n
func NewErrorEvent(err error, n *node.Descriptor, at time.Time) ErrorEvent {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ErrorEvent{
		Type:      "error",
		Source:    string(n.Implementation),
		NodeIndex: n.Index,
		Message:   msg,
		Timestamp: at.UTC(),
	}
}

// LogSink logs events instead of delivering them
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "dispatch")}
}

// SendEvent logs the event at debug level
func (s *LogSink) SendEvent(ctx context.Context, payload []byte, n *node.Descriptor) error {
	s.logger.DebugContext(ctx, "Node event", append(n.LogAttrs(), "payload", string(payload))...)
	return nil
}

// SendError logs the error
func (s *LogSink) SendError(ctx context.Context, err error, n *node.Descriptor) error {
	s.logger.ErrorContext(ctx, "Node error", append(n.LogAttrs(), "error", err)...)
	return nil
}

// Fanout forwards to every dispatcher and joins their errors
type Fanout []Dispatcher

// SendEvent forwards the event to every dispatcher
func (f Fanout) SendEvent(ctx context.Context, payload []byte, n *node.Descriptor) error {
	var errs []error
	for _, d := range f {
		if err := d.SendEvent(ctx, payload, n); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// SendError forwards the error to every dispatcher
func (f Fanout) SendError(ctx context.Context, err error, n *node.Descriptor) error {
	var errs []error
	for _, d := range f {
		if sendErr := d.SendError(ctx, err, n); sendErr != nil {
			errs = append(errs, sendErr)
		}
	}
	return stderrors.Join(errs...)
}
