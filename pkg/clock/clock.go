// Package clock injects wall-clock time so statusstore, monitor, and pool
// polling loops are deterministic under test, the same dependency-
// injection shape used elsewhere in this codebase to swap a fake client
// in for runtime tests.
package clock

import "time"

// Clock abstracts time.Now, time.Sleep, time.After and time.NewTicker.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker abstracts *time.Ticker so fake clocks can control delivery.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the production Clock, backed directly by the time package.
type Real struct{}

func (Real) Now() time.Time                     { return time.Now() }
func (Real) Sleep(d time.Duration)               { time.Sleep(d) }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Default is the process-wide real clock, shared by components that don't
// need to inject a fake one.
var Default Clock = Real{}
