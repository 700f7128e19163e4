//go:build windows

package main

// hookSignals has no user signals to offer on Windows; use the HTTP API.
func hookSignals() (<-chan hook, func()) {
	return nil, func() {}
}
