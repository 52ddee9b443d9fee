/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

const leakyBucketKey = "admission"

// LeakyBucketLimiter implements GCRA (Generic Cell Rate Algorithm), a leaky bucket variant algorithm.
// More details and good explanation of this alg is provided here: https://brandur.org/rate-limiting#gcra.
//
// The bucket allows a burst of maxRate.Count requests, after that requests are spread evenly
// with maxRate.Duration/maxRate.Count between them.
type LeakyBucketLimiter struct {
	limiter *throttled.GCRARateLimiterCtx
}

var _ Limiter = (*LeakyBucketLimiter)(nil)

// NewLeakyBucketLimiter creates a new leaky bucket rate limiter.
func NewLeakyBucketLimiter(maxRate Rate) (*LeakyBucketLimiter, error) {
	if err := maxRate.Validate(); err != nil {
		return nil, err
	}
	gcraStore, err := memstore.NewCtx(1)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	reqQuota := throttled.RateQuota{
		MaxRate:  throttled.PerDuration(maxRate.Count, maxRate.Duration),
		MaxBurst: maxRate.Count - 1, // MaxBurst counts requests in excess of the first one.
	}
	gcraLimiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, reqQuota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &LeakyBucketLimiter{gcraLimiter}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
func (l *LeakyBucketLimiter) Allow(ctx context.Context) (allow bool, retryAfter time.Duration, err error) {
	limited, res, err := l.limiter.RateLimitCtx(ctx, leakyBucketKey, 1)
	if err != nil {
		return false, 0, err
	}
	return !limited, res.RetryAfter, nil
}
