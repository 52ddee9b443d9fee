/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAdmissionCancelled is returned by Admitter.Admit when the context is done before a slot becomes available.
// The returned error also wraps the context error, so errors.Is(err, context.Canceled) works as well.
var ErrAdmissionCancelled = errors.New("admission cancelled")

// ErrAdmitterClosed is returned by Admitter.Admit after the admitter has been closed.
var ErrAdmitterClosed = errors.New("admitter closed")

// Rate describes the maximum number of requests (Count) allowed within any window of the given Duration.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Validate checks that both parts of the rate are positive.
func (r Rate) Validate() error {
	if r.Count <= 0 {
		return fmt.Errorf("rate count should be positive, got %d", r.Count)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("rate duration should be positive, got %s", r.Duration)
	}
	return nil
}

// String returns a human-readable representation of the rate (e.g. "5/1s").
func (r Rate) String() string {
	return fmt.Sprintf("%d/%s", r.Count, r.Duration)
}

// Limiter interface defines the non-blocking rate limiting contract.
type Limiter interface {
	Allow(ctx context.Context) (allow bool, retryAfter time.Duration, err error)
}

// Admitter is a blocking gate in front of rate limited operations.
type Admitter interface {
	// Admit blocks until the call is allowed by the rate limit or ctx is done.
	Admit(ctx context.Context) error

	// Close releases background resources. Blocked and subsequent Admit calls fail with ErrAdmitterClosed.
	Close() error
}

func makeCancelledErr(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrAdmissionCancelled, ctx.Err())
}
