package stream

import "time"

// Clock abstracts wall-clock time so session timing can be driven by tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the Clock backed by package time.
var RealClock Clock = realClock{}
