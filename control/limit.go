package control

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/c360/lnrelay/errors"
)

// RateLimited wraps h so that commands beyond the limiter's rate are
// rejected with ErrRateLimited instead of reaching the relay.
// A nil limiter returns h unchanged.
func RateLimited(h Handler, limiter *rate.Limiter) Handler {
	if limiter == nil {
		return h
	}
	return func(ctx context.Context, cmd Command) error {
		if !limiter.Allow() {
			return errors.WrapTransient(
				fmt.Errorf("%w: %s node %d", errors.ErrRateLimited, cmd.Action, cmd.NodeIndex),
				"control", "RateLimited", "admit command")
		}
		return h(ctx, cmd)
	}
}

// NewLimiter returns a limiter for perSecond commands with the given burst,
// or nil when perSecond is zero
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
