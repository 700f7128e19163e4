package camera

import (
	"bytes"
	"image/jpeg"
	"log/slog"
	"sync"

	"github.com/corona10/goimagehash"
)

// FreezeChecks is how many samples in a row must match their predecessor
// before the feed counts as frozen.
const FreezeChecks = 3

// FreezeWatch samples every Nth frame and compares perceptual hashes to spot a
// camera that keeps delivering the same picture. It is diagnostic only.
type FreezeWatch struct {
	every uint64

	mu     sync.Mutex
	last   *goimagehash.ImageHash
	still  int
	frozen bool
}

// NewFreezeWatch returns nil when every is not positive.
func NewFreezeWatch(every int) *FreezeWatch {
	if every <= 0 {
		return nil
	}
	return &FreezeWatch{every: uint64(every)}
}

// Observe hashes data if seq falls on the sampling interval.
func (w *FreezeWatch) Observe(seq uint64, data []byte) {
	if w == nil || seq%w.every != 0 {
		return
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		slog.Debug("freeze hash failed", "seq", seq, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	same := false
	if w.last != nil {
		if d, err := w.last.Distance(hash); err == nil && d == 0 {
			same = true
		}
	}
	w.last = hash

	if !same {
		if w.frozen {
			slog.Info("camera feed resumed", "seq", seq)
		}
		w.still = 0
		w.frozen = false
		return
	}
	w.still++
	if w.still >= FreezeChecks && !w.frozen {
		w.frozen = true
		slog.Warn("camera feed appears frozen", "seq", seq, "checks", w.still)
	}
}

// Frozen reports whether the feed is currently considered frozen.
func (w *FreezeWatch) Frozen() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frozen
}
