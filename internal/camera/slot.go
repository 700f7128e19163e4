package camera

import "sync"

// slot is the keep-latest mailbox between the capture goroutine and the
// analyzer. It holds at most one pending frame; a newer frame replaces it.
// The pending frame is handed out only while no frame is in flight, so the
// analyzer never sees more than one live frame.
type slot struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  *Frame
	inFlight *Frame
	closed   bool
}

func newSlot() *slot {
	s := &slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// offer stores f as the pending frame and returns the frame it displaced, if
// any. After close, f itself is returned. The caller releases what it gets.
func (s *slot) offer(f *Frame) *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return f
	}
	replaced := s.pending
	s.pending = f
	s.cond.Signal()
	return replaced
}

// take blocks until a pending frame exists and nothing is in flight, then
// marks it in flight. Returns nil once closed.
func (s *slot) take() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	for (s.pending == nil || s.inFlight != nil) && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil
	}
	f := s.pending
	s.pending = nil
	s.inFlight = f
	return f
}

// finish clears f from flight. Frames that were dropped without delivery
// pass through harmlessly.
func (s *slot) finish(f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight == f {
		s.inFlight = nil
		s.cond.Signal()
	}
}

// close wakes take and returns the undelivered pending frame.
func (s *slot) close() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	p := s.pending
	s.pending = nil
	s.cond.Broadcast()
	return p
}
