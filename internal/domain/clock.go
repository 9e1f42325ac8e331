package domain

import "time"

// Clock abstracts time reads so eligibility, schedule, and backoff logic stay
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
