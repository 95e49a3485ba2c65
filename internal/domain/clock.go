package domain

import "time"

// Clock supplies the current time. Substituted in tests for deterministic timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time {
	return time.Now()
}
