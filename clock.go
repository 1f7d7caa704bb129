package coop

import "time"

// Clock supplies the scheduler's notion of "now". The default is the system
// clock; tests pin it to a fixed instant so the virtual timeline is
// deterministic.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the [Clock] interface.
type ClockFunc func() time.Time

// Now implements [Clock].
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
