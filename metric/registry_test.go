package metric

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lnrelay/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.Same(t, registry.Metrics, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounterVec(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lnrelay",
		Subsystem: "test",
		Name:      "events_total",
		Help:      "A test counter",
	}, []string{"node_index"})

	require.NoError(t, registry.RegisterCounterVec("test", "events_total", counter))
	counter.WithLabelValues("0").Inc()

	assert.True(t, gatheredNames(t, registry)["lnrelay_test_events_total"])
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("0")))
}

func TestMetricsRegistry_RegisterGauge(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	require.NoError(t, registry.RegisterGauge("test", "test_gauge", gauge))

	gauge.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(gauge))
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "first"})
	second := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "second"})

	require.NoError(t, registry.RegisterCounter("svc", "dup_counter", first))

	err := registry.RegisterCounter("svc", "dup_counter", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same collector name under a different key collides in prometheus
	err = registry.RegisterCounter("other", "dup_counter", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "unreg_gauge", Help: "x"}, []string{"a"})
	require.NoError(t, registry.RegisterGaugeVec("svc", "unreg_gauge", gauge))
	gauge.WithLabelValues("1").Set(1)
	require.True(t, gatheredNames(t, registry)["unreg_gauge"])

	assert.True(t, registry.Unregister("svc", "unreg_gauge"))
	assert.False(t, gatheredNames(t, registry)["unreg_gauge"])
	assert.False(t, registry.Unregister("svc", "unreg_gauge"))

	// Re-registration works after unregister
	require.NoError(t, registry.RegisterGaugeVec("svc", "unreg_gauge", gauge))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent_%d", i)
			h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: "x"}, []string{"op"})
			errs <- registry.RegisterHistogramVec("svc", name, h)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMetricsRegistrar_Interface(t *testing.T) {
	var _ MetricsRegistrar = NewMetricsRegistry()
}

func TestCoreMetrics_Registered(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordDispatch("event", nil)
	m.RecordDispatch("error", assert.AnError)
	m.RecordCommand("CONNECT", nil)
	m.RecordHealth("relay", "degraded")
	m.RecordNATSStatus(true)
	m.RecordNATSReconnect()
	m.RecordCircuitBreakerState(false)

	names := gatheredNames(t, registry)
	for _, name := range []string{
		"lnrelay_dispatch_published_total",
		"lnrelay_dispatch_errors_total",
		"lnrelay_control_commands_total",
		"lnrelay_health_status",
		"lnrelay_nats_connected",
		"lnrelay_nats_reconnects_total",
		"lnrelay_nats_circuit_breaker",
		"go_goroutines",
	} {
		assert.True(t, names[name], "missing %s", name)
	}
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	m := NewMetrics()

	m.RecordDispatch("event", nil)
	m.RecordDispatch("event", nil)
	m.RecordDispatch("event", assert.AnError)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DispatchedTotal.WithLabelValues("event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchErrors.WithLabelValues("event")))

	m.RecordCommand("DISCONNECT", assert.AnError)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("DISCONNECT", "error")))

	m.RecordHealth("relay", "healthy")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HealthStatus.WithLabelValues("relay")))
	m.RecordHealth("relay", "unhealthy")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HealthStatus.WithLabelValues("relay")))

	m.RecordNATSStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSConnected))
	m.RecordCircuitBreakerState(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSCircuitBreaker))
}
