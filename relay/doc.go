// Package relay keeps a WebSocket connection open to each Lightning node's
// event feed and forwards what it receives to dashboard clients.
//
// A Supervisor owns one entry per node, keyed by node index. All state
// changes happen on a single event-loop goroutine: Connect and Disconnect
// requests, socket open/message/close/error notifications and backoff
// timer firings are queued and handled one at a time, so entries need no
// locking. Each connection attempt gets its own socket record; events from
// a socket that has since been replaced or removed are ignored.
//
// # Socket lifecycle
//
//	Connecting --open--> Open --message--> Open
//	    |                 |
//	    +----error--------+--close/error--> Closed --(desired)--> retry after backoff
//
// On open the backoff is reset to its floor. On close (for nodes of the
// relay's implementation) or error the socket is discarded and, while the
// connection is still desired, a retry is scheduled. Errors are also
// forwarded to the dispatcher so dashboard clients see them.
//
// # Backoff
//
// The wait doubles from a 0.5s floor up to a 64s ceiling, so the first retry
// waits 1s. Only one retry is pending at a time per backoff scope. By default
// each node has its own scope; with PerNodeBackoff disabled a single scope is
// shared by every node and a pending retry for one node suppresses retries
// for the others.
//
// # Link construction
//
// BuildLink turns a node's HTTP(S) endpoint and API password into the
// WebSocket URL, for example https://host:1234/ with password pw becomes
// wss://:pw@host:1234/ws. WebsocketDialer moves the credential into a Basic
// Authorization header before dialing.
//
// # Usage
//
//	sup, err := relay.New(cfg.Relay, registry, dispatcher,
//	    relay.WithLogger(logger),
//	    relay.WithMetrics(metricsRegistry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop(5 * time.Second)
//
//	go controlChannel.Listen(ctx, sup.HandleCommand)
package relay
