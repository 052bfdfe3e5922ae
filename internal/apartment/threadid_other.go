//go:build !linux

package apartment

// osThreadID is not available on this platform.
func osThreadID() int {
	return 0
}
