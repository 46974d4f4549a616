// Package lnrelay relays live events from Lightning node WebSocket APIs to a
// dashboard backend, keeping one socket per registered node and reconnecting
// with exponential backoff when a socket drops.
//
// # Architecture
//
// A single relay process serves one node implementation (Eclair by default).
// Nodes come from a registry, either static configuration or a NATS KV bucket
// that dashboards edit at runtime. Connect and disconnect commands arrive on a
// NATS control subject and are applied by the supervisor's event loop. Without
// NATS the relay serves only the nodes opened by relay.connect_on_start:
//
//	control (NATS subject)
//	        |
//	        v
//	relay.Supervisor ---- dial ----> node WebSocket API
//	        |                              |
//	        |<------- frames / close ------+
//	        v
//	dispatch (NATS subjects + log sink)
//
// Every inbound frame is stamped with the node index and forwarded as an
// event. Transport errors are forwarded as error notifications, then the
// socket is closed and a retry is scheduled.
//
// # Reconnection
//
// Waits start at the configured floor and double on every failed attempt up
// to the ceiling. A successful open resets the sequence. Backoff is tracked
// per node by default; the single shared scope is available through
// relay.Config.PerNodeBackoff.
//
// # Packages
//
//	relay       connection supervisor, backoff timers, link construction
//	node        node descriptors and registries (static, NATS KV)
//	dispatch    event and error forwarding
//	control     connect/disconnect command channels
//	config      layered JSON/YAML configuration with env overrides
//	natsclient  NATS connection management with a circuit breaker
//	metric      Prometheus registry and HTTP endpoint
//	health      component health aggregation
//	errors      error classification (invalid, transient, fatal)
//
// The lnrelay command in cmd/lnrelay wires these together.
package lnrelay
