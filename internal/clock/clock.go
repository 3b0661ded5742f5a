package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock allows injecting time into the engine and workers.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	clockwork.Clock
}

// NewSystem returns a clock backed by the wall clock, in UTC.
func NewSystem() Clock {
	return systemClock{Clock: clockwork.NewRealClock()}
}

func (c systemClock) Now() time.Time {
	return c.Clock.Now().UTC()
}

// Mock is a manually driven clock for tests.
type Mock struct {
	fc *clockwork.FakeClock
}

// NewMock returns a mock clock frozen at t.
func NewMock(t time.Time) *Mock {
	return &Mock{fc: clockwork.NewFakeClockAt(t.UTC())}
}

func (m *Mock) Now() time.Time {
	return m.fc.Now().UTC()
}

// Advance moves the clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.fc.Advance(d)
}
