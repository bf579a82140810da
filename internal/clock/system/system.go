// Package system provides the wall clock used outside tests.
package system

import "time"

// Precision is the resolution of every reading; it matches the unix
// millisecond created_at columns.
const Precision = time.Millisecond

// Clock implements roast.Clock: UTC, truncated to Precision.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now reports the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(Precision)
}
