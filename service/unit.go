/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service provides lifecycle primitives (units, workers) for long-running parts of the client,
// such as the background eviction of the admission window and the demo harness.
package service

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start runs the unit and blocks the calling goroutine until the unit finishes its work or is stopped.
	//
	// If the unit fails, the error is written to fatalErr before Start returns.
	// The channel must not be used after Start has returned.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
