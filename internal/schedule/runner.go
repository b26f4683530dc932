package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimerRunner implements Runner on an in-process timer. It holds at most one
// pending run; Submit while a run is pending replaces the timer.
type TimerRunner struct {
	clock clockwork.Clock
	fire  func()

	mu      sync.Mutex
	pending *PendingRun
	timer   clockwork.Timer
}

// NewTimerRunner creates a runner that invokes fire when a submitted run
// comes due. fire is called on the timer goroutine.
func NewTimerRunner(clock clockwork.Clock, fire func()) *TimerRunner {
	return &TimerRunner{clock: clock, fire: fire}
}

// Pending reports the currently scheduled run, if any.
func (r *TimerRunner) Pending() (PendingRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return PendingRun{}, false
	}
	return *r.pending, true
}

// Submit schedules a run at the given time, replacing any pending run.
// Times at or before now fire immediately.
func (r *TimerRunner) Submit(at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	d := at.Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}
	r.pending = &PendingRun{At: at}
	r.timer = r.clock.AfterFunc(d, func() {
		r.mu.Lock()
		r.pending = nil
		r.timer = nil
		r.mu.Unlock()
		r.fire()
	})
	return nil
}

// Cancel drops the pending run, if any.
func (r *TimerRunner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *TimerRunner) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.pending = nil
}
