// Package looper provides single-goroutine executors.
//
// A Looper owns one goroutine and runs posted tasks one at a time in FIFO
// order. State confined to a looper needs no further locking as long as it is
// only touched from tasks running on it. eyeguard runs two of them: the
// analysis looper (frame delivery, detection dispatch, evaluation) and the
// surface looper (lifecycle state and the overlay).
package looper

import (
	"log/slog"
	"sync"
)

// Looper runs tasks sequentially on a dedicated goroutine.
type Looper struct {
	name string

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func()
	quitting bool

	done chan struct{}
}

// New starts a looper. The name only appears in logs.
func New(name string) *Looper {
	l := &Looper{name: name, done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.loop()
	return l
}

// Name returns the looper name.
func (l *Looper) Name() string { return l.name }

// Post enqueues fn without blocking. It returns false once Quit has been
// called, in which case fn will never run.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quitting {
		return false
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return true
}

// Call posts fn and waits for it to finish. It must not be called from a task
// running on the same looper. Returns false if the looper has quit.
func (l *Looper) Call(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	// accepted tasks always run, Quit drains the queue first
	<-finished
	return true
}

// Quit stops accepting tasks, runs everything already queued, then waits for
// the goroutine to exit. Safe to call more than once.
func (l *Looper) Quit() {
	l.mu.Lock()
	l.quitting = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.done
}

// Done is closed when the looper goroutine has exited.
func (l *Looper) Done() <-chan struct{} { return l.done }

func (l *Looper) loop() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.quitting {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(fn)
	}
}

func (l *Looper) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("looper task panicked", "looper", l.name, "panic", r)
		}
	}()
	fn()
}
