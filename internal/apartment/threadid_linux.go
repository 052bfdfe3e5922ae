//go:build linux

package apartment

import "golang.org/x/sys/unix"

// osThreadID returns the kernel id of the calling thread. The worker is
// locked to its thread, so the value is stable for the worker's lifetime.
func osThreadID() int {
	return unix.Gettid()
}
