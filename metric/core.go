package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every relay metric
const Namespace = "lnrelay"

// Metrics contains process-wide metrics shared by the relay packages
type Metrics struct {
	DispatchedTotal *prometheus.CounterVec
	DispatchErrors  *prometheus.CounterVec
	CommandsTotal   *prometheus.CounterVec
	HealthStatus    *prometheus.GaugeVec

	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates the core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		DispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "dispatch",
				Name:      "published_total",
				Help:      "Payloads forwarded to dashboard clients",
			},
			[]string{"kind"},
		),

		DispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "dispatch",
				Name:      "errors_total",
				Help:      "Payloads that could not be forwarded",
			},
			[]string{"kind"},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "control",
				Name:      "commands_total",
				Help:      "Control commands received",
			},
			[]string{"action", "status"},
		),

		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health status (0=unhealthy, 1=degraded, 2=healthy)",
			},
			[]string{"component"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open)",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DispatchedTotal,
		m.DispatchErrors,
		m.CommandsTotal,
		m.HealthStatus,
		m.NATSConnected,
		m.NATSReconnects,
		m.NATSCircuitBreaker,
	}
}

// RecordDispatch counts a forwarded payload of kind ("event" or "error")
func (m *Metrics) RecordDispatch(kind string, err error) {
	if err != nil {
		m.DispatchErrors.WithLabelValues(kind).Inc()
		return
	}
	m.DispatchedTotal.WithLabelValues(kind).Inc()
}

// RecordCommand counts a control command by action and outcome
func (m *Metrics) RecordCommand(action string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CommandsTotal.WithLabelValues(action, status).Inc()
}

// RecordHealth sets the health gauge for component
func (m *Metrics) RecordHealth(component, status string) {
	value := 0.0
	switch status {
	case "healthy":
		value = 2
	case "degraded":
		value = 1
	}
	m.HealthStatus.WithLabelValues(component).Set(value)
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSReconnect increments the reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (m *Metrics) RecordCircuitBreakerState(open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	m.NATSCircuitBreaker.Set(value)
}
