package util

import "time"

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// FakeClock is a manually advanced clock for deterministic tests.
type FakeClock struct {
	Current time.Time
}

func NewFakeClock(start time.Time) *FakeClock { return &FakeClock{Current: start} }

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Current.Add(d)
	return ch
}

func (c *FakeClock) Now() time.Time { return c.Current }

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) { c.Current = c.Current.Add(d) }
