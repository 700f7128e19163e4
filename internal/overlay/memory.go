package overlay

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownHandle is returned when removing an overlay that is not shown.
var ErrUnknownHandle = errors.New("unknown overlay handle")

// MemorySurface keeps overlays in memory. Tests inject failures with
// SetErrors.
type MemorySurface struct {
	mu        sync.Mutex
	shown     map[Handle]Content
	adds      int
	removes   int
	addErr    error
	removeErr error
}

func NewMemorySurface() *MemorySurface {
	return &MemorySurface{shown: make(map[Handle]Content)}
}

func (m *MemorySurface) Add(_ Layout, content Content) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds++
	if m.addErr != nil {
		return "", m.addErr
	}
	h := Handle(uuid.NewString())
	m.shown[h] = content
	return h, nil
}

func (m *MemorySurface) Remove(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes++
	if m.removeErr != nil {
		return m.removeErr
	}
	if _, ok := m.shown[h]; !ok {
		return ErrUnknownHandle
	}
	delete(m.shown, h)
	return nil
}

// Shown returns how many overlays are currently on screen.
func (m *MemorySurface) Shown() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shown)
}

// Calls returns the number of Add and Remove calls so far.
func (m *MemorySurface) Calls() (adds, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds, m.removes
}

// SetErrors replaces the injected failures.
func (m *MemorySurface) SetErrors(add, remove error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addErr = add
	m.removeErr = remove
}
