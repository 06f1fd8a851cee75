package challenge

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualScheduler_EveryAndAfter(t *testing.T) {
	s := NewManualScheduler()
	var order []string

	tick := s.Every(time.Second, func() { order = append(order, "tick") })
	s.After(1500*time.Millisecond, func() { order = append(order, "after") })
	assert.Equal(t, 2, s.Pending())

	s.Advance(2 * time.Second)
	assert.Equal(t, []string{"tick", "after", "tick"}, order)
	assert.Equal(t, 1, s.Pending())

	tick.Stop()
	s.Advance(time.Minute)
	assert.Len(t, order, 3)
	assert.Equal(t, 0, s.Pending())
}

func TestManualScheduler_CallbackMayStopItself(t *testing.T) {
	s := NewManualScheduler()
	n := 0
	var task Task
	task = s.Every(time.Second, func() {
		n++
		if n == 3 {
			task.Stop()
		}
	})
	s.Advance(10 * time.Second)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, s.Pending())
}

func TestRealScheduler_StopHaltsTicker(t *testing.T) {
	var n atomic.Int32
	task := RealScheduler{}.Every(time.Millisecond, func() { n.Add(1) })
	assert.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, time.Millisecond)
	task.Stop()
	task.Stop()

	time.Sleep(5 * time.Millisecond)
	seen := n.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, seen, n.Load())
}

func TestRealScheduler_AfterStop(t *testing.T) {
	var fired atomic.Bool
	task := RealScheduler{}.After(20*time.Millisecond, func() { fired.Store(true) })
	task.Stop()
	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load())
}
