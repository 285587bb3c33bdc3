// Package clock abstracts wall time and one-shot timers so that
// time-driven transitions can be driven deterministically in tests.
package clock

import "time"

// Timer is the subset of *time.Timer used by callers.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Real schedules with time.AfterFunc.
func Real(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
