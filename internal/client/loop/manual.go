package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Runner for tests. Posted tasks run on Flush,
// Go runs work inline, and timers fire only when the virtual clock is advanced.
type Manual struct {
	mu     sync.Mutex
	queue  []func()
	now    time.Time
	seq    int
	timers []*manualTimer
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Post(task func()) {
	m.mu.Lock()
	m.queue = append(m.queue, task)
	m.mu.Unlock()
}

func (m *Manual) Go(work func()) {
	work()
}

func (m *Manual) AfterFunc(d time.Duration, task func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, task: task}
	m.timers = append(m.timers, t)
	return t
}

// Now returns the virtual clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Flush runs queued tasks, including tasks they post, until the queue is empty.
func (m *Manual) Flush() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		task := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		task()
	}
}

// Advance moves the clock forward by d, firing due timers in order and
// flushing the queue around each of them.
func (m *Manual) Advance(d time.Duration) {
	m.Flush()
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(i, j int) bool {
			if m.timers[i].at.Equal(m.timers[j].at) {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at.Before(m.timers[j].at)
		})
		if len(m.timers) == 0 || m.timers[0].at.After(target) {
			m.now = target
			m.mu.Unlock()
			break
		}
		t := m.timers[0]
		m.timers = m.timers[1:]
		m.now = t.at
		t.fired = true
		m.mu.Unlock()

		t.task()
		m.Flush()
	}
	m.Flush()
}

// Pending returns the number of live timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

type manualTimer struct {
	m       *Manual
	at      time.Time
	seq     int
	task    func()
	fired   bool
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	for i, other := range t.m.timers {
		if other == t {
			t.m.timers = append(t.m.timers[:i], t.m.timers[i+1:]...)
			break
		}
	}
	return true
}
