package challenge

import (
	"sync"
	"time"
)

// Task is a scheduled callback that can be cancelled.
type Task interface {
	Stop()
}

// Scheduler runs the machine's countdown and delayed navigation. Every task
// it hands out is owned by the machine and stopped on teardown.
type Scheduler interface {
	Every(d time.Duration, fn func()) Task
	After(d time.Duration, fn func()) Task
}

// RealScheduler schedules on wall-clock time.
type RealScheduler struct{}

func (RealScheduler) Every(d time.Duration, fn func()) Task {
	t := &tickerTask{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.ticker.C:
				fn()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

func (RealScheduler) After(d time.Duration, fn func()) Task {
	return timerTask{timer: time.AfterFunc(d, fn)}
}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

type timerTask struct {
	timer *time.Timer
}

func (t timerTask) Stop() { t.timer.Stop() }

// ManualScheduler is deterministic and test-friendly: time only moves when
// Advance is called, and due callbacks run on the caller's goroutine.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []*manualTask
}

type manualTask struct {
	s       *ManualScheduler
	next    time.Duration
	period  time.Duration
	fn      func()
	stopped bool
}

func (t *manualTask) Stop() {
	t.s.mu.Lock()
	t.stopped = true
	t.s.mu.Unlock()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Every(d time.Duration, fn func()) Task {
	return s.add(d, d, fn)
}

func (s *ManualScheduler) After(d time.Duration, fn func()) Task {
	return s.add(d, 0, fn)
}

func (s *ManualScheduler) add(d, period time.Duration, fn func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{s: s, next: s.now + d, period: period, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Advance moves time forward by d, running every callback that falls due in
// order of due time.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	for {
		var due *manualTask
		for _, t := range s.tasks {
			if t.stopped || t.next > target {
				continue
			}
			if due == nil || t.next < due.next {
				due = t
			}
		}
		if due == nil {
			break
		}

		s.now = due.next
		if due.period > 0 {
			due.next += due.period
		} else {
			due.stopped = true
		}
		fn := due.fn
		s.mu.Unlock()
		fn()
		s.mu.Lock()
	}
	s.now = target
	s.prune()
	s.mu.Unlock()
}

// Pending returns the number of tasks that have not been stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	return len(s.tasks)
}

func (s *ManualScheduler) prune() {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.tasks = live
}
