// Package ratelimit spaces out calls to rate-limited upstream services.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Sequencer lets one caller through per interval. The first call is not delayed.
type Sequencer struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// NewSequencer creates a Sequencer. A non-positive interval disables waiting.
func NewSequencer(interval time.Duration) *Sequencer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Sequencer{
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the next call is allowed or ctx is done.
func (s *Sequencer) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// Interval returns the configured minimum spacing between calls.
func (s *Sequencer) Interval() time.Duration {
	return s.interval
}
