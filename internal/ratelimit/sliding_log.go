/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-crptapi/log"
	"github.com/acronis/go-crptapi/service"
)

var evictionIntervalUnits = []time.Duration{
	time.Hour, time.Minute, time.Second, 100 * time.Millisecond, 10 * time.Millisecond, time.Millisecond,
}

// DefaultEvictionInterval returns the base time unit of the window: the largest of
// 1h, 1m, 1s, 100ms, 10ms and 1ms that doesn't exceed the window and divides it evenly.
// The window itself is returned if there is no such unit.
func DefaultEvictionInterval(window time.Duration) time.Duration {
	for _, unit := range evictionIntervalUnits {
		if unit <= window && window%unit == 0 {
			return unit
		}
	}
	return window
}

// SlidingLogAdmitterOpts represents options for SlidingLogAdmitter.
type SlidingLogAdmitterOpts struct {
	// EvictionInterval is how often expired timestamps are pruned from the window.
	// DefaultEvictionInterval(rate.Duration) is used if zero.
	EvictionInterval time.Duration

	// DisableEvictionWorker prevents starting the background eviction worker.
	// The owner has to call Evict itself then.
	DisableEvictionWorker bool

	Clock            Clock
	Logger           log.FieldLogger
	MetricsCollector MetricsCollector
}

// SlidingLogAdmitter admits at most rate.Count calls within any window of rate.Duration.
//
// Timestamps of admitted calls are kept in WindowTracker. Callers that find the window full
// wait until the eviction worker prunes expired timestamps and signals them.
// Admission order of waiting callers is not guaranteed to be FIFO.
type SlidingLogAdmitter struct {
	rate             Rate
	clock            Clock
	logger           log.FieldLogger
	metrics          MetricsCollector
	evictionInterval time.Duration
	evictionUnit     *service.WorkerUnit

	mu      sync.Mutex
	tracker *WindowTracker
	freed   chan struct{} // Closed (and replaced) when eviction frees at least one slot or the admitter is closed.
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

var _ Admitter = (*SlidingLogAdmitter)(nil)

// NewSlidingLogAdmitter creates a new SlidingLogAdmitter and starts its eviction worker.
func NewSlidingLogAdmitter(rate Rate) (*SlidingLogAdmitter, error) {
	return NewSlidingLogAdmitterWithOpts(rate, SlidingLogAdmitterOpts{})
}

// NewSlidingLogAdmitterWithOpts creates a new SlidingLogAdmitter with the provided options.
func NewSlidingLogAdmitterWithOpts(rate Rate, opts SlidingLogAdmitterOpts) (*SlidingLogAdmitter, error) {
	if err := rate.Validate(); err != nil {
		return nil, err
	}
	if opts.EvictionInterval < 0 {
		return nil, fmt.Errorf("eviction interval should not be negative, got %s", opts.EvictionInterval)
	}
	if opts.EvictionInterval == 0 {
		opts.EvictionInterval = DefaultEvictionInterval(rate.Duration)
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}

	a := &SlidingLogAdmitter{
		rate:             rate,
		clock:            opts.Clock,
		logger:           opts.Logger,
		metrics:          opts.MetricsCollector,
		evictionInterval: opts.EvictionInterval,
		tracker:          NewWindowTracker(rate.Count),
		freed:            make(chan struct{}),
	}

	if !opts.DisableEvictionWorker {
		evictor := service.NewPeriodicWorkerWithOpts(service.WorkerFunc(func(_ context.Context) error {
			a.Evict()
			return nil
		}), a.evictionInterval, a.logger, service.PeriodicWorkerOpts{Name: "rate_limit_eviction"})
		a.evictionUnit = service.NewWorkerUnit(evictor)
		go func() {
			fatalErr := make(chan error, 1)
			a.evictionUnit.Start(fatalErr)
			select {
			case err := <-fatalErr:
				a.logger.Error("eviction worker failed", log.Error(err))
			default:
			}
		}()
	}

	return a, nil
}

// Rate returns the admitter's rate.
func (a *SlidingLogAdmitter) Rate() Rate {
	return a.rate
}

// EvictionInterval returns the interval of the eviction worker.
func (a *SlidingLogAdmitter) EvictionInterval() time.Duration {
	return a.evictionInterval
}

// Admit blocks until there are fewer than rate.Count admissions in the window and records a new one.
// It returns an error wrapping ErrAdmissionCancelled and ctx.Err() if ctx is done first,
// or ErrAdmitterClosed if the admitter is (or gets) closed.
func (a *SlidingLogAdmitter) Admit(ctx context.Context) error {
	startedAt := a.clock.Now()
	blocked := false
	for {
		if ctx.Err() != nil {
			a.metrics.IncAdmissionCancellations()
			return makeCancelledErr(ctx)
		}

		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return ErrAdmitterClosed
		}
		if a.tracker.Size() < a.rate.Count {
			now := a.clock.Now()
			a.tracker.RecordAdmission(now)
			size := a.tracker.Size()
			a.mu.Unlock()

			a.metrics.IncAdmissions()
			a.metrics.SetWindowSize(size)
			a.metrics.ObserveAdmissionWait(now.Sub(startedAt))
			if blocked {
				a.logger.Debug("admission unblocked", log.DurationIn(now.Sub(startedAt), time.Millisecond))
			}
			return nil
		}
		freed := a.freed
		oldest, _ := a.tracker.Oldest()
		a.mu.Unlock()

		if !blocked {
			blocked = true
			a.logger.AtLevel(log.LevelDebug, func(logFunc log.LogFunc) {
				estimatedWait := oldest.Add(a.rate.Duration).Sub(a.clock.Now())
				logFunc("admission blocked, window is full",
					log.Int("max_requests", a.rate.Count),
					log.Duration("window", a.rate.Duration),
					log.Duration("estimated_wait", estimatedWait))
			})
		}

		select {
		case <-ctx.Done():
			a.metrics.IncAdmissionCancellations()
			return makeCancelledErr(ctx)
		case <-freed:
		}
	}
}

// Evict removes timestamps older than the window and wakes blocked callers if any slot was freed.
// It returns the number of removed timestamps.
func (a *SlidingLogAdmitter) Evict() int {
	a.mu.Lock()
	removed := a.tracker.EvictExpired(a.clock.Now(), a.rate.Duration)
	size := a.tracker.Size()
	if removed > 0 && !a.closed {
		close(a.freed)
		a.freed = make(chan struct{})
	}
	a.mu.Unlock()

	if removed > 0 {
		a.metrics.AddEvictions(removed)
		a.metrics.SetWindowSize(size)
	}
	return removed
}

// Size returns the number of admissions tracked within the current window.
func (a *SlidingLogAdmitter) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker.Size()
}

// Close stops the eviction worker and fails all blocked and subsequent Admit calls with ErrAdmitterClosed.
// It's safe to call Close multiple times.
func (a *SlidingLogAdmitter) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.freed)
		a.mu.Unlock()

		if a.evictionUnit != nil {
			if err := a.evictionUnit.Stop(true); err != nil {
				a.closeErr = fmt.Errorf("stop eviction worker: %w", err)
			}
		}
	})
	return a.closeErr
}
