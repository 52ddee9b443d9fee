/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/acronis/go-crptapi/log"
)

// minRetryAfter prevents busy looping when a limiter advises a zero or negative retry delay.
const minRetryAfter = time.Millisecond

// WaitingAdmitterOpts represents options for WaitingAdmitter.
type WaitingAdmitterOpts struct {
	Clock            Clock
	Logger           log.FieldLogger
	MetricsCollector MetricsCollector
}

// WaitingAdmitter turns a non-blocking Limiter into a blocking Admitter.
// When the limiter rejects a call, the admitter sleeps for the advised retry delay and checks again
// until the call is allowed or the context is done.
type WaitingAdmitter struct {
	limiter   Limiter
	clock     Clock
	logger    log.FieldLogger
	metrics   MetricsCollector
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Admitter = (*WaitingAdmitter)(nil)

// NewWaitingAdmitter creates a new WaitingAdmitter.
func NewWaitingAdmitter(limiter Limiter) *WaitingAdmitter {
	return NewWaitingAdmitterWithOpts(limiter, WaitingAdmitterOpts{})
}

// NewWaitingAdmitterWithOpts creates a new WaitingAdmitter with the provided options.
func NewWaitingAdmitterWithOpts(limiter Limiter, opts WaitingAdmitterOpts) *WaitingAdmitter {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	return &WaitingAdmitter{
		limiter: limiter,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.MetricsCollector,
		closed:  make(chan struct{}),
	}
}

// Admit blocks until the underlying limiter allows the call.
func (a *WaitingAdmitter) Admit(ctx context.Context) error {
	startedAt := a.clock.Now()

	allow, retryAfter, err := a.allow(ctx)
	if err != nil {
		return err
	}
	if allow {
		a.observeAdmission(startedAt)
		return nil
	}

	a.logger.Debug("admission blocked, retrying later", log.Duration("retry_after", retryAfter))

	retryTimer := time.NewTimer(normalizeRetryAfter(retryAfter))
	defer retryTimer.Stop()

	for {
		select {
		case <-retryTimer.C:
			// Will do another check of the rate limit.
		case <-ctx.Done():
			a.metrics.IncAdmissionCancellations()
			return makeCancelledErr(ctx)
		case <-a.closed:
			return ErrAdmitterClosed
		}

		if allow, retryAfter, err = a.allow(ctx); err != nil {
			return err
		}
		if allow {
			a.observeAdmission(startedAt)
			a.logger.Debug("admission unblocked", log.DurationIn(a.clock.Now().Sub(startedAt), time.Millisecond))
			return nil
		}
		retryTimer.Reset(normalizeRetryAfter(retryAfter))
	}
}

// Close fails all blocked and subsequent Admit calls with ErrAdmitterClosed.
// The underlying limiter is closed too if it implements io.Closer.
func (a *WaitingAdmitter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		if closer, ok := a.limiter.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

func (a *WaitingAdmitter) allow(ctx context.Context) (bool, time.Duration, error) {
	select {
	case <-a.closed:
		return false, 0, ErrAdmitterClosed
	default:
	}
	if ctx.Err() != nil {
		a.metrics.IncAdmissionCancellations()
		return false, 0, makeCancelledErr(ctx)
	}
	allow, retryAfter, err := a.limiter.Allow(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("rate limit: %w", err)
	}
	return allow, retryAfter, nil
}

func (a *WaitingAdmitter) observeAdmission(startedAt time.Time) {
	a.metrics.IncAdmissions()
	a.metrics.ObserveAdmissionWait(a.clock.Now().Sub(startedAt))
}

func normalizeRetryAfter(d time.Duration) time.Duration {
	if d < minRetryAfter {
		return minRetryAfter
	}
	return d
}
