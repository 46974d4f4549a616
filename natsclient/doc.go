// Package natsclient wraps the NATS Go client with a circuit breaker,
// structured logging and helpers for the subjects and KV buckets the relay uses.
//
// The relay publishes node events and errors through Publish, listens for
// control commands through Subscribe, and reads the node registry from a
// JetStream KV bucket obtained with KeyValueBucket.
//
// Circuit breaker: after a threshold of consecutive failures (default 5) the
// client fails fast with ErrCircuitOpen. After the backoff elapses the next
// Connect is allowed through; the backoff doubles each time the circuit opens,
// capped by WithMaxBackoff.
//
// Basic usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("lnrelay"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// Tests that need a real server use NewTestClient, which starts a NATS
// container through testcontainers.
package natsclient
