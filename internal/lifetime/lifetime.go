// Package lifetime counts the outstanding references that keep an object host
// loaded: live objects and explicit server locks.
package lifetime

import (
	"fmt"
	"sync/atomic"
)

// Counter is an atomic reference count. The zero value is ready to use.
type Counter struct {
	n atomic.Int64
}

// Acquire records one more outstanding reference and returns the new count.
func (c *Counter) Acquire() int64 {
	return c.n.Add(1)
}

// Release drops one reference and returns the new count. Releasing more
// references than were acquired is a programming error and panics.
func (c *Counter) Release() int64 {
	n := c.n.Add(-1)
	if n < 0 {
		c.n.Add(1)
		panic(fmt.Sprintf("lifetime: release below zero (count %d)", n))
	}
	return n
}

// Lock acquires a reference when lock is true and releases one otherwise.
func (c *Counter) Lock(lock bool) int64 {
	if lock {
		return c.Acquire()
	}
	return c.Release()
}

// Count returns the current number of references.
func (c *Counter) Count() int64 {
	return c.n.Load()
}

// CanUnload reports whether no references are outstanding.
func (c *Counter) CanUnload() bool {
	return c.n.Load() == 0
}
