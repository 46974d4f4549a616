// Package retry provides exponential backoff primitives.
//
// Backoff is the bare arithmetic: a wait value that starts at a floor, grows by
// a multiplier on every Next and is pinned at a ceiling. The relay's
// reconnection timer owns one Backoff per scope and arms its own timers with
// the returned durations:
//
//	b := retry.NewBackoff(500*time.Millisecond, 64*time.Second, 2)
//	b.Next() // 1s
//	b.Next() // 2s
//	b.Reset()
//	b.Next() // 1s
//
// Do runs a function until it succeeds, the attempts run out, or the context is
// cancelled, sleeping with jittered exponential backoff in between:
//
//	err := retry.Do(ctx, retry.Startup(), func() error {
//	    return natsClient.Connect(ctx)
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately.
package retry
