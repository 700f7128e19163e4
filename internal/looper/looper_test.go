package looper

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New("test")
	defer l.Quit()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Call(func() {})

	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestTasksNeverOverlap(t *testing.T) {
	l := New("test")
	defer l.Quit()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Call(func() {
				n := active.Add(1)
				if n > maxActive.Load() {
					maxActive.Store(n)
				}
				time.Sleep(100 * time.Microsecond)
				active.Add(-1)
			})
		}()
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxActive.Load())
	}
}

func TestQuitDrainsQueue(t *testing.T) {
	l := New("test")

	block := make(chan struct{})
	l.Post(func() { <-block })

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		l.Post(func() { ran.Add(1) })
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(block)
	}()
	l.Quit()

	if ran.Load() != 10 {
		t.Errorf("drained %d tasks, want 10", ran.Load())
	}
}

func TestPostAfterQuit(t *testing.T) {
	l := New("test")
	l.Quit()
	l.Quit() // idempotent

	if l.Post(func() { t.Error("task must not run after Quit") }) {
		t.Error("Post should return false after Quit")
	}
	if l.Call(func() {}) {
		t.Error("Call should return false after Quit")
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done should be closed after Quit")
	}
}

func TestPanicDoesNotKillLooper(t *testing.T) {
	l := New("test")
	defer l.Quit()

	l.Post(func() { panic("boom") })

	ran := false
	l.Call(func() { ran = true })
	if !ran {
		t.Error("looper should keep running after a task panics")
	}
}
