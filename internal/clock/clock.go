// Package clock provides the time source and repeating-callback scheduler used by
// the state stores. Real drives callbacks from wall-clock tickers; Virtual only
// moves when a caller advances it, so transition tests are deterministic.
package clock

import (
	"sort"
	"sync"
	"time"
)

// CancelFunc unschedules a callback. Calling it more than once is a no-op.
type CancelFunc func()

// Scheduler is a logical clock plus repeating scheduled callbacks.
type Scheduler interface {
	Now() time.Time
	Every(interval time.Duration, fn func()) CancelFunc
}

// Real schedules callbacks on wall-clock time.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Every runs fn on its own goroutine once per interval until cancelled. A tick
// already selected when cancel is called may still run; callers guard against
// that with their own generation check.
func (Real) Every(interval time.Duration, fn func()) CancelFunc {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

type task struct {
	id       uint64
	due      time.Time
	interval time.Duration
	fn       func()
}

// Virtual is a manually advanced scheduler.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	nextID uint64
	tasks  map[uint64]*task
}

func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start, tasks: make(map[uint64]*task)}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) Every(interval time.Duration, fn func()) CancelFunc {
	if interval <= 0 {
		interval = time.Nanosecond
	}
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.tasks[id] = &task{id: id, due: v.now.Add(interval), interval: interval, fn: fn}
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.tasks, id)
		v.mu.Unlock()
	}
}

// Advance moves the clock forward by d, running every callback that falls due
// in due-time order on the calling goroutine. Callbacks may schedule or cancel
// other callbacks.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		next := v.nextDue(target)
		if next == nil {
			v.now = target
			v.mu.Unlock()
			return
		}
		v.now = next.due
		next.due = next.due.Add(next.interval)
		fn := next.fn
		v.mu.Unlock()

		fn()
	}
}

// Pending reports how many callbacks are scheduled.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tasks)
}

func (v *Virtual) nextDue(limit time.Time) *task {
	due := make([]*task, 0, len(v.tasks))
	for _, t := range v.tasks {
		if !t.due.After(limit) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})
	return due[0]
}
