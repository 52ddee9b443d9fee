/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"
)

// CompositeUnit groups several units so they can be started and stopped together,
// e.g. the fake registry and the demo submission worker.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{units}
}

// Start launches all units concurrently and blocks until every Start call returns.
//
// When any unit reports a fatal error, the rest of the units are stopped non-gracefully
// and a single CompositeUnitError (including the stop errors, if any) is sent to fatalError.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	unitErrs := make(chan error, len(cu.Units)+1)
	var failOnce sync.Once

	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, u := range cu.Units {
		go func(u Unit) {
			defer wg.Done()
			unitFatal := make(chan error, 1)
			u.Start(unitFatal)
			select {
			case err := <-unitFatal:
				unitErrs <- err
				failOnce.Do(func() {
					if stopErr := cu.Stop(false); stopErr != nil {
						unitErrs <- stopErr
					}
				})
			default:
			}
		}(u)
	}
	wg.Wait()
	close(unitErrs)

	var errs []error
	for err := range unitErrs {
		if cue, ok := err.(*CompositeUnitError); ok {
			errs = append(errs, cue.UnitErrors...)
			continue
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		fatalError <- &CompositeUnitError{errs}
	}
}

// Stop stops all units concurrently and collects their errors into a single CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	results := make(chan error, len(cu.Units))

	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, u := range cu.Units {
		go func(u Unit) {
			defer wg.Done()
			results <- u.Stop(gracefully)
		}(u)
	}
	wg.Wait()
	close(results)

	var errs []error
	for err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &CompositeUnitError{errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of all units that are able to do it.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units that are able to do it.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError is an error which may occur in CompositeUnit's methods.
type CompositeUnitError struct {
	UnitErrors []error
}

// Error returns a string representation of a units composition error.
func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(cue.UnitErrors))
	for _, err := range cue.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap returns errors of the units, so errors.Is and errors.As can inspect them.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
