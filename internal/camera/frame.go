// Package camera binds a capture device to an analyzer with keep-latest
// backpressure.
package camera

import (
	"sync"
	"time"
)

// Frame is one captured image plus geometry. The pipeline owns it for exactly
// one analysis pass and must call Release once when done, on success or
// failure. Data is invalid after Release.
type Frame struct {
	// Data holds the JPEG-encoded image. Must not be modified.
	Data []byte

	Width    int
	Height   int
	Rotation int // degrees clockwise to upright

	// Seq is assigned by the session and increases monotonically.
	Seq       uint64
	Timestamp time.Time

	once    sync.Once
	release func(*Frame)
}

// Release returns the frame to the session buffer pool. Only the first call
// has any effect.
func (f *Frame) Release() {
	f.once.Do(func() {
		if f.release != nil {
			f.release(f)
		}
	})
}

const (
	frameBufferSize = 256 * 1024
	maxPooledBuffer = 4 * frameBufferSize
)

var frameBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, frameBufferSize)
		return &b
	},
}

func getBuffer() []byte {
	return (*frameBufferPool.Get().(*[]byte))[:0]
}

func putBuffer(b []byte) {
	if cap(b) == 0 || cap(b) > maxPooledBuffer {
		return
	}
	b = b[:0]
	frameBufferPool.Put(&b)
}
