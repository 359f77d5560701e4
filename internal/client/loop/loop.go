// Package loop provides the single-threaded execution model the sync core
// runs on. Every state mutation happens inside a task delivered by a Runner,
// one at a time, so components need no locks of their own.
package loop

import (
	"sync"
	"time"
)

// Timer is a cancellable handle to a scheduled task.
type Timer interface {
	// Stop prevents the task from running. It reports whether the call stopped
	// the timer, false if it already fired or was stopped.
	Stop() bool
}

// Runner serialises tasks. Post may be called from any goroutine; tasks and
// timer callbacks always run on the runner's own thread of execution.
type Runner interface {
	Post(task func())
	// Go runs blocking work outside the loop. The work posts its result back.
	Go(work func())
	AfterFunc(d time.Duration, task func()) Timer
}

// Loop is a Runner backed by an unbounded FIFO queue. Tasks are handed to a
// deliver function in order, from a single goroutine.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	deliver func(task func())
	started bool
	closed  bool
}

// New returns a Loop that runs its tasks on a dedicated goroutine.
func New() *Loop {
	return NewExternal(func(task func()) { task() })
}

// NewExternal returns a Loop whose tasks are handed to deliver, which must run
// them on the external event loop (for example a UI program) in order.
func NewExternal(deliver func(task func())) *Loop {
	l := &Loop{deliver: deliver}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Loop) Post(task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, task)
	if !l.started {
		l.started = true
		go l.run()
	}
	l.cond.Signal()
}

func (l *Loop) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.deliver(task)
	}
}

func (l *Loop) Go(work func()) {
	go work()
}

func (l *Loop) AfterFunc(d time.Duration, task func()) Timer {
	t := &timer{}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.fired = true
			task()
		})
	})
	return t
}

// Close drops queued tasks and stops delivery. Posts after Close are ignored.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.queue = nil
	l.cond.Broadcast()
}

// timer state is only touched from inside the loop.
type timer struct {
	t       *time.Timer
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.t.Stop()
	return true
}
