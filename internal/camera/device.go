package camera

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Lens selects which physical camera to bind.
type Lens int

const (
	LensFront Lens = iota
	LensBack
)

func (l Lens) String() string {
	switch l {
	case LensFront:
		return "front"
	case LensBack:
		return "back"
	default:
		return fmt.Sprintf("lens(%d)", int(l))
	}
}

// Device is a capture source that can be opened into a frame stream.
type Device interface {
	Open(ctx context.Context) (Stream, error)
	Lens() Lens
	String() string
}

// Stream yields JPEG-encoded frames. ReadFrame fills buf (which may grow) and
// returns it. Close unblocks a pending ReadFrame.
type Stream interface {
	ReadFrame(buf []byte) ([]byte, error)
	Close() error
}

// MemoryDevice is an in-process device fed through Push. Tests use it in
// place of a real camera.
type MemoryDevice struct {
	Name   string
	Facing Lens
	// OpenErr, when set, is returned from Open.
	OpenErr error

	mu     sync.Mutex
	stream *memoryStream
}

// NewMemoryDevice returns a front-facing in-memory device.
func NewMemoryDevice(name string) *MemoryDevice {
	return &MemoryDevice{Name: name, Facing: LensFront}
}

func (d *MemoryDevice) Lens() Lens     { return d.Facing }
func (d *MemoryDevice) String() string { return "memory:" + d.Name }

func (d *MemoryDevice) Open(ctx context.Context) (Stream, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memoryStream{frames: make(chan []byte), done: make(chan struct{})}
	d.mu.Lock()
	d.stream = s
	d.mu.Unlock()
	return s, nil
}

// Push hands a frame to the open stream, blocking until the session reads it.
// Returns false if no stream is open or it has been closed.
func (d *MemoryDevice) Push(data []byte) bool {
	d.mu.Lock()
	s := d.stream
	d.mu.Unlock()
	if s == nil {
		return false
	}
	select {
	case s.frames <- data:
		return true
	case <-s.done:
		return false
	}
}

// Fail ends the open stream with err, as a disconnected camera would.
func (d *MemoryDevice) Fail(err error) {
	d.mu.Lock()
	s := d.stream
	d.mu.Unlock()
	if s != nil {
		s.fail(err)
	}
}

type memoryStream struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *memoryStream) ReadFrame(buf []byte) ([]byte, error) {
	select {
	case data := <-s.frames:
		return append(buf[:0], data...), nil
	case <-s.done:
		if s.err != nil {
			return buf, s.err
		}
		return buf, io.EOF
	}
}

func (s *memoryStream) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *memoryStream) Close() error {
	s.fail(nil)
	return nil
}
