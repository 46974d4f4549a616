package relay

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/lnrelay/metric"
)

// Metrics holds Prometheus metrics for the supervisor
type Metrics struct {
	connectAttempts *prometheus.CounterVec
	opens           *prometheus.CounterVec
	reconnectsSched *prometheus.CounterVec
	messagesRelayed *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	backoffSeconds  *prometheus.GaugeVec
	connectionState *prometheus.GaugeVec
	entriesActive   prometheus.Gauge
}

func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	m := &Metrics{
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "connect_attempts_total",
			Help:      "Socket open attempts",
		}, []string{"node_index"}),
		opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "opens_total",
			Help:      "Successful socket opens",
		}, []string{"node_index"}),
		reconnectsSched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnects scheduled after a close or error",
		}, []string{"node_index"}),
		messagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "messages_relayed_total",
			Help:      "Messages forwarded to the dispatcher",
		}, []string{"node_index"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "decode_errors_total",
			Help:      "Inbound messages dropped because they could not be decoded",
		}, []string{"node_index"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "transport_errors_total",
			Help:      "Socket errors forwarded to clients",
		}, []string{"node_index"}),
		backoffSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "backoff_seconds",
			Help:      "Wait before the most recently scheduled reconnect",
		}, []string{"scope"}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "connection_state",
			Help:      "Node socket state (0=connecting, 1=open, 2=closed)",
		}, []string{"node_index"}),
		entriesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "relay",
			Name:      "entries",
			Help:      "Nodes currently supervised",
		}),
	}

	if registry == nil {
		return m, nil
	}

	vecs := map[string]*prometheus.CounterVec{
		"connect_attempts_total":     m.connectAttempts,
		"opens_total":                m.opens,
		"reconnects_scheduled_total": m.reconnectsSched,
		"messages_relayed_total":     m.messagesRelayed,
		"decode_errors_total":        m.decodeErrors,
		"transport_errors_total":     m.transportErrors,
	}
	for name, vec := range vecs {
		if err := registry.RegisterCounterVec("relay", name, vec); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGaugeVec("relay", "backoff_seconds", m.backoffSeconds); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("relay", "connection_state", m.connectionState); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("relay", "entries", m.entriesActive); err != nil {
		return nil, err
	}
	return m, nil
}

func label(index int) string {
	return strconv.Itoa(index)
}

func (m *Metrics) recordState(index int, state SocketState) {
	if m == nil {
		return
	}
	m.connectionState.WithLabelValues(label(index)).Set(float64(state))
}

func (m *Metrics) recordAttempt(index int) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(label(index)).Inc()
	m.recordState(index, StateConnecting)
}

func (m *Metrics) recordOpen(index int) {
	if m == nil {
		return
	}
	m.opens.WithLabelValues(label(index)).Inc()
	m.recordState(index, StateOpen)
}

func (m *Metrics) recordReconnect(index int, scope string, seconds float64) {
	if m == nil {
		return
	}
	m.reconnectsSched.WithLabelValues(label(index)).Inc()
	m.backoffSeconds.WithLabelValues(scope).Set(seconds)
}

func (m *Metrics) recordMessage(index int) {
	if m == nil {
		return
	}
	m.messagesRelayed.WithLabelValues(label(index)).Inc()
}

func (m *Metrics) recordDecodeError(index int) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(label(index)).Inc()
}

func (m *Metrics) recordTransportError(index int) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(label(index)).Inc()
}

func (m *Metrics) recordRemoved(index int) {
	if m == nil {
		return
	}
	m.connectionState.DeleteLabelValues(label(index))
}

func (m *Metrics) recordEntries(n int) {
	if m == nil {
		return
	}
	m.entriesActive.Set(float64(n))
}
