package session

import "time"

// Timer is the subset of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. The default is time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// advanceScheduler holds at most one pending auto-advance, keyed by the
// question index it was scheduled for. Guarded by the session mutex.
type advanceScheduler struct {
	after AfterFunc
	delay time.Duration
	timer Timer
	token uint64
	index int
}

func (a *advanceScheduler) enabled() bool { return a.delay > 0 }

// schedule replaces any pending task with a new one for index.
func (a *advanceScheduler) schedule(index int, fire func(token uint64, index int)) {
	a.cancel()
	token := a.token
	a.index = index
	a.timer = a.after(a.delay, func() { fire(token, index) })
}

// cancel stops the pending task. A callback that already fired and is waiting
// for the session lock will fail its claim.
func (a *advanceScheduler) cancel() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.token++
}

// claim consumes the pending task if token still identifies it.
func (a *advanceScheduler) claim(token uint64) bool {
	if a.timer == nil || token != a.token {
		return false
	}
	a.timer = nil
	a.token++
	return true
}

func (a *advanceScheduler) pending() bool { return a.timer != nil }
