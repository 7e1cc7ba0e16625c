// Package clock abstracts time for the session core. Coordinators stamp
// history items and catalog snapshots through a Clock so tests can pin the
// timestamps they assert on.
package clock

import "time"

// Clock provides the current time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Fixed is a Clock pinned to a single instant. Useful in tests asserting on
// persisted timestamps.
type Fixed struct {
	T time.Time
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time {
	return f.T
}

var (
	_ Clock = RealClock{}
	_ Clock = Fixed{}
)
