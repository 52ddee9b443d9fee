/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-crptapi/log/logtest"
)

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("runs immediately and then periodically", func(t *testing.T) {
		var runs atomic.Int32
		worker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			runs.Inc()
			return nil
		}), 20*time.Millisecond, logtest.NewRecorder())

		ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
		defer cancel()
		require.NoError(t, worker.Run(ctx))
		require.GreaterOrEqual(t, runs.Load(), int32(3))
		require.LessOrEqual(t, runs.Load(), int32(8))
	})

	t.Run("initial delay", func(t *testing.T) {
		var runs atomic.Int32
		worker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			runs.Inc()
			return nil
		}), 10*time.Millisecond, nil, PeriodicWorkerOpts{InitialDelay: time.Second})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.NoError(t, worker.Run(ctx))
		require.Equal(t, int32(0), runs.Load())
	})

	t.Run("stop by ErrPeriodicWorkerStop", func(t *testing.T) {
		var runs atomic.Int32
		logger := logtest.NewRecorder()
		worker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			if runs.Inc() == 3 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond, logger, PeriodicWorkerOpts{Name: "evictor"})

		require.NoError(t, worker.Run(context.Background()))
		require.Equal(t, int32(3), runs.Load())

		entry, found := logger.FindEntry("periodic worker stopped successfully")
		require.True(t, found)
		field, found := entry.FindField("worker")
		require.True(t, found)
		require.Equal(t, "evictor", string(field.Bytes))
	})

	t.Run("worker error doesn't stop the loop", func(t *testing.T) {
		var runs atomic.Int32
		logger := logtest.NewRecorder()
		worker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			if runs.Inc() == 2 {
				return ErrPeriodicWorkerStop
			}
			return errors.New("boom")
		}), time.Millisecond, logger)

		require.NoError(t, worker.Run(context.Background()))
		require.Equal(t, int32(2), runs.Load())
		_, found := logger.FindEntry("periodically running worker finished with error")
		require.True(t, found)
	})

	t.Run("non-positive interval", func(t *testing.T) {
		worker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error { return nil }), 0, nil)
		require.EqualError(t, worker.Run(context.Background()), "periodic worker interval must be positive, got 0s")
	})
}
