package apartment

import "runtime"

// goroutineID returns the id of the calling goroutine, parsed from the header
// line of its stack trace ("goroutine 123 [running]:"). Ids are never zero.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
