package engine

import "time"

// Clock abstracts wall-clock reads so tests drive time deterministically.
// Every now() the engine and scheduler take goes through an injected Clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
