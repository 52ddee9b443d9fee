/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-crptapi/testutil"
)

type limiterFunc func(ctx context.Context) (bool, time.Duration, error)

func (f limiterFunc) Allow(ctx context.Context) (bool, time.Duration, error) {
	return f(ctx)
}

func TestWaitingAdmitter(t *testing.T) {
	t.Run("retries after advised delay", func(t *testing.T) {
		var calls atomic.Int32
		mc := NewPrometheusMetricsCollector()
		admitter := NewWaitingAdmitterWithOpts(limiterFunc(func(context.Context) (bool, time.Duration, error) {
			if calls.Inc() < 3 {
				return false, 20 * time.Millisecond, nil
			}
			return true, 0, nil
		}), WaitingAdmitterOpts{MetricsCollector: mc})
		defer func() { require.NoError(t, admitter.Close()) }()

		startedAt := time.Now()
		require.NoError(t, admitter.Admit(context.Background()))
		require.GreaterOrEqual(t, time.Since(startedAt), 40*time.Millisecond)
		require.Equal(t, int32(3), calls.Load())
		testutil.RequireSamplesCountInCounter(t, mc.Admissions, 1)
	})

	t.Run("cancellation", func(t *testing.T) {
		admitter := NewWaitingAdmitter(limiterFunc(func(context.Context) (bool, time.Duration, error) {
			return false, time.Hour, nil
		}))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := admitter.Admit(ctx)
		require.ErrorIs(t, err, ErrAdmissionCancelled)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("close wakes blocked callers", func(t *testing.T) {
		admitter := NewWaitingAdmitter(limiterFunc(func(context.Context) (bool, time.Duration, error) {
			return false, time.Hour, nil
		}))
		result := admitAsync(context.Background(), admitter)
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, admitter.Close())
		require.ErrorIs(t, <-result, ErrAdmitterClosed)
		require.ErrorIs(t, admitter.Admit(context.Background()), ErrAdmitterClosed)
	})

	t.Run("close stops sliding window limiter", func(t *testing.T) {
		limiter, err := NewSlidingWindowLimiter(Rate{Count: 1, Duration: time.Second})
		require.NoError(t, err)
		var stopped atomic.Int32
		limiter.stop = func() { stopped.Inc() }
		admitter := NewWaitingAdmitter(limiter)

		require.NoError(t, admitter.Close())
		require.NoError(t, admitter.Close())
		require.Equal(t, int32(1), stopped.Load())
	})

	t.Run("limiter error", func(t *testing.T) {
		limiterErr := errors.New("store is unavailable")
		admitter := NewWaitingAdmitter(limiterFunc(func(context.Context) (bool, time.Duration, error) {
			return false, 0, limiterErr
		}))
		err := admitter.Admit(context.Background())
		require.ErrorIs(t, err, limiterErr)
		require.EqualError(t, err, "rate limit: store is unavailable")
	})

	t.Run("leaky bucket", func(t *testing.T) {
		limiter, err := NewLeakyBucketLimiter(Rate{Count: 2, Duration: 100 * time.Millisecond})
		require.NoError(t, err)
		admitter := NewWaitingAdmitter(limiter)

		startedAt := time.Now()
		for i := 0; i < 4; i++ {
			require.NoError(t, admitter.Admit(context.Background()))
		}
		// Burst of 2, then one request per 50ms.
		require.GreaterOrEqual(t, time.Since(startedAt), 80*time.Millisecond)
	})
}
