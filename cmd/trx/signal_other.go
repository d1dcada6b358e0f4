//go:build !unix

package main

// notifyStats is a no-op where SIGUSR1 does not exist; use
// --stats-interval instead.
func notifyStats(chan<- struct{}) func() {
	return func() {}
}
