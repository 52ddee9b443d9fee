/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/acronis/go-crptapi/log"
)

// ErrPeriodicWorkerStop is an error that may be used for interrupting PeriodicWorker's loop.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker error")

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run is a part of Worker interface.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker represents a worker that runs underlying worker periodically.
//
// Runs are scheduled at a fixed rate: the interval is measured between the starts of
// two consecutive runs, so a slow run doesn't shift the following ticks.
// Ticks missed while a run is in progress are dropped.
type PeriodicWorker struct {
	worker       Worker
	logger       log.FieldLogger
	name         string
	initialDelay time.Duration
	interval     time.Duration
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// Name is added to all log messages of the worker.
	Name string

	// InitialDelay is a delay before the first run. Zero means the first run happens immediately.
	InitialDelay time.Duration
}

// NewPeriodicWorker creates a new instance of PeriodicWorker.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, interval, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts creates a new instance of PeriodicWorker
// with an ability to specify different optional parameters.
func NewPeriodicWorkerWithOpts(
	worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.Name != "" {
		logger = logger.With(log.String("worker", opts.Name))
	}
	return &PeriodicWorker{
		worker:       worker,
		logger:       logger,
		name:         opts.Name,
		initialDelay: opts.InitialDelay,
		interval:     interval,
	}
}

// Interval returns the interval between two consecutive runs.
func (pw *PeriodicWorker) Interval() time.Duration {
	return pw.interval
}

// Run runs PeriodicWorker loop until ctx is done or the underlying worker returns ErrPeriodicWorkerStop.
func (pw *PeriodicWorker) Run(ctx context.Context) (resErr error) {
	if pw.interval <= 0 {
		return fmt.Errorf("periodic worker interval must be positive, got %s", pw.interval)
	}

	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", stack))
			panic(p)
		}
		if resErr != nil {
			pw.logger.Error("periodic worker stopped with error", log.Error(resErr))
			return
		}
		pw.logger.Info("periodic worker stopped successfully")
	}()

	pw.logger.Infof("running periodic worker (initialDelay=%s, interval=%s)...", pw.initialDelay, pw.interval)

	if pw.initialDelay > 0 {
		timer := time.NewTimer(pw.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		if err := pw.worker.Run(ctx); err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) {
				return nil
			}
			pw.logger.Error("periodically running worker finished with error", log.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
