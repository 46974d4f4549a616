// Package metric provides the Prometheus registry and the HTTP server that
// exposes relay metrics and health.
//
// Core metrics cover process-wide concerns (NATS connectivity, dispatch
// counts, aggregated health). Packages register their own collectors through
// the MetricsRegistrar interface, keyed by service and metric name so a
// duplicate registration is reported instead of panicking:
//
//	registry := metric.NewMetricsRegistry()
//	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
//	    Namespace: "lnrelay",
//	    Subsystem: "relay",
//	    Name:      "reconnects_total",
//	    Help:      "Reconnect attempts scheduled",
//	}, []string{"node_index"})
//	if err := registry.RegisterCounterVec("relay", "reconnects_total", counter); err != nil {
//	    return err
//	}
//
// The Server serves the registry on the configured path and the aggregated
// health status on /health:
//
//	server := metric.NewServer(9090, "/metrics", registry,
//	    metric.WithHealth(supervisor.Health))
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop()
package metric
