/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// SlidingWindowLimiter implements the weighted two-bucket sliding window algorithm.
// It uses constant memory but only approximates the number of requests in the window,
// so it may admit slightly more than rate.Count requests within some windows.
type SlidingWindowLimiter struct {
	limiter *slidingwindow.Limiter
	stop    slidingwindow.StopFunc
	clock   Clock
	maxRate Rate
}

var _ Limiter = (*SlidingWindowLimiter)(nil)

// SlidingWindowLimiterOpts represents options for SlidingWindowLimiter.
type SlidingWindowLimiterOpts struct {
	Clock Clock
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
func NewSlidingWindowLimiter(maxRate Rate) (*SlidingWindowLimiter, error) {
	return NewSlidingWindowLimiterWithOpts(maxRate, SlidingWindowLimiterOpts{})
}

// NewSlidingWindowLimiterWithOpts creates a new sliding window rate limiter with the provided options.
func NewSlidingWindowLimiterWithOpts(maxRate Rate, opts SlidingWindowLimiterOpts) (*SlidingWindowLimiter, error) {
	if err := maxRate.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	lim, stop := slidingwindow.NewLimiter(
		maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	return &SlidingWindowLimiter{limiter: lim, stop: stop, clock: opts.Clock, maxRate: maxRate}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
// If not, retryAfter is the time left until the current fixed window ends.
func (l *SlidingWindowLimiter) Allow(_ context.Context) (allow bool, retryAfter time.Duration, err error) {
	now := l.clock.Now()
	if l.limiter.AllowN(now, 1) {
		return true, 0, nil
	}
	retryAfter = now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now)
	return false, retryAfter, nil
}

// Close stops the synchronization of the current window.
func (l *SlidingWindowLimiter) Close() error {
	l.stop()
	return nil
}
