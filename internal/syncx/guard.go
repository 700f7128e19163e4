// Package syncx provides extended synchronization primitives
package syncx

import "sync"

// Value guards a value of type T behind an RWMutex.
type Value[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewValue creates a guarded value.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{value: initial}
}

// Load returns a copy of the value (T should be a value type or immutable).
func (v *Value[T]) Load() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Store replaces the value.
func (v *Value[T]) Store(x T) {
	v.mu.Lock()
	v.value = x
	v.mu.Unlock()
}

// CompareAndSwap stores next only if eq reports the current value matches.
func (v *Value[T]) CompareAndSwap(eq func(T) bool, next T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !eq(v.value) {
		return false
	}
	v.value = next
	return true
}
