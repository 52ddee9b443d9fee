/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock provides the current time.
// Any clockwork.Clock satisfies it, so clockwork.NewFakeClock() may be used to control time in tests.
type Clock interface {
	Now() time.Time
}

var _ Clock = clockwork.Clock(nil)

// RealClock returns Clock backed by time.Now.
func RealClock() Clock {
	return clockwork.NewRealClock()
}
