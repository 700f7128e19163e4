//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// hookSignals maps SIGUSR1 to an interrupt and SIGUSR2 to a reconnect.
func hookSignals() (<-chan hook, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2)

	out := make(chan hook, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigCh:
				h := hookConnect
				if sig == syscall.SIGUSR1 {
					h = hookInterrupt
				}
				select {
				case out <- h:
				case <-done:
					return
				}
			}
		}
	}()
	return out, func() {
		signal.Stop(sigCh)
		close(done)
	}
}
