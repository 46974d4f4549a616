// Package testutil provides in-memory doubles for relay tests that would
// otherwise need a NATS server or a Lightning node.
//
// MockNATSClient satisfies the Publish and Subscribe halves of
// natsclient.Client, so dispatchers and control channels can be wired to it
// directly. Published messages are kept per subject for assertions and are
// delivered synchronously to current subscribers.
//
// NodeServer is an httptest server speaking the Eclair WebSocket API: it
// checks the Basic-auth password, upgrades the connection and lets the test
// push frames or drop the socket.
//
//	bus := testutil.NewMockNATSClient()
//	srv := testutil.NewNodeServer(t, "secret")
//	...
//	msg := testutil.WaitForMessage(t, bus, "lnrelay.events.ecl.1", time.Second)
package testutil
