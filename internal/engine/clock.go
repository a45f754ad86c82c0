package engine

import "time"

// Clock abstracts the current time so window transitions can be driven
// through fixed instants in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MockClock reports a settable instant.
type MockClock struct {
	MockTime time.Time
}

func (m MockClock) Now() time.Time { return m.MockTime }
