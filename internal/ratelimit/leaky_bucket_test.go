/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// LeakyBucketLimiterTestSuite contains tests for LeakyBucketLimiter
type LeakyBucketLimiterTestSuite struct {
	suite.Suite
}

func TestLeakyBucketLimiter(t *testing.T) {
	suite.Run(t, new(LeakyBucketLimiterTestSuite))
}

func (ts *LeakyBucketLimiterTestSuite) TestInvalidRate() {
	_, err := NewLeakyBucketLimiter(Rate{Count: 1, Duration: 0})
	ts.EqualError(err, "rate duration should be positive, got 0s")
}

func (ts *LeakyBucketLimiterTestSuite) TestAllowBurstOfCount() {
	limiter, err := NewLeakyBucketLimiter(Rate{Count: 3, Duration: time.Second})
	ts.Require().NoError(err)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allow, retryAfter, err := limiter.Allow(ctx)
		ts.NoError(err)
		ts.True(allow)
		ts.GreaterOrEqual(retryAfter, time.Duration(-1)) // Can be -1ns for allowed requests
	}

	allow, retryAfter, err := limiter.Allow(ctx)
	ts.NoError(err)
	ts.False(allow)
	ts.Greater(retryAfter, time.Duration(0))
	ts.LessOrEqual(retryAfter, time.Second/3)
}
