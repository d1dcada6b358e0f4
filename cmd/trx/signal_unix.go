//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyStats forwards SIGUSR1 to trigger until the returned function is
// called. A request arriving while one is pending is coalesced.
func notifyStats(trigger chan<- struct{}) func() {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, syscall.SIGUSR1)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigs:
				select {
				case trigger <- struct{}{}:
				default:
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
