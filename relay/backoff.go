package relay

import (
	"time"

	"github.com/c360/lnrelay/pkg/retry"
)

// Timer is a scheduled retry that can be cancelled
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// backoffScope is one wait value with at most one pending retry.
// It is owned by the event loop.
type backoffScope struct {
	wait    *retry.Backoff
	pending bool
	target  int
	timer   Timer

	// generation invalidates firings of stopped timers
	generation uint64
}

func newBackoffScope(cfg BackoffConfig) *backoffScope {
	return &backoffScope{
		wait: retry.NewBackoff(cfg.Floor, cfg.Ceiling, cfg.Multiplier),
	}
}

// arm advances the wait and marks a retry pending for target.
// It returns false when a retry is already pending.
func (b *backoffScope) arm(target int) (time.Duration, uint64, bool) {
	if b.pending {
		return 0, 0, false
	}
	b.pending = true
	b.target = target
	b.generation++
	return b.wait.Next(), b.generation, true
}

// fired clears the pending marker if gen is the current arming
func (b *backoffScope) fired(gen uint64) bool {
	if !b.pending || gen != b.generation {
		return false
	}
	b.pending = false
	b.timer = nil
	return true
}

// cancel stops a pending retry
func (b *backoffScope) cancel() {
	if !b.pending {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.pending = false
	b.timer = nil
	b.generation++
}

func (b *backoffScope) reset() {
	b.wait.Reset()
}

func (b *backoffScope) pendingFor(index int) bool {
	return b.pending && b.target == index
}
