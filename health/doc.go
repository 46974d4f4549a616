// Package health provides health status values, aggregation and a monitor that
// combines the health of the relay's parts.
//
// Three states are reported:
//   - healthy: operating normally
//   - degraded: working toward a usable state, such as a socket reconnecting
//   - unhealthy: not functioning
//
// Aggregate folds sub-statuses: any unhealthy child makes the parent
// unhealthy, otherwise any degraded child makes it degraded.
//
// Components register a provider with a Monitor and the monitor evaluates
// providers on demand:
//
//	monitor := health.NewMonitor()
//	monitor.Register("relay", supervisor.Health)
//	monitor.Register("nats", func() health.Status {
//	    return health.FromConnection("nats", client.IsHealthy(), client.Status().String())
//	})
//	status := monitor.AggregateHealth("lnrelay")
//
// Messages built from errors pass through FromError, which strips URLs,
// addresses and credentials so node passwords never reach a health endpoint.
package health
