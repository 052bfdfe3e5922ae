package apartment

import (
	"container/list"
	"errors"
	"fmt"
	"sync/atomic"
)

// Resource is anything created on the worker that other goroutines may hold
// references to. Sever cuts every such reference; afterwards the resource
// must refuse further use. Sever runs on the worker.
type Resource interface {
	Sever() error
}

// ResourceFunc adapts a function to Resource.
type ResourceFunc func() error

// Sever calls f.
func (f ResourceFunc) Sever() error { return f() }

// Token identifies a tracked resource within its guard.
type Token uint64

// Guard is the apartment's resource guard context. It is created on the
// worker before the apartment becomes ready and keeps an inventory of the
// resources created through it, so that shutdown can sever them as a batch
// before the worker's runtime is torn down.
//
// A Guard is owned by the worker. Track and Untrack fail when called from any
// other goroutine; Len and Severed may be read from anywhere.
type Guard struct {
	onWorker func() bool
	entries  *list.List
	index    map[Token]*list.Element
	next     Token
	count    atomic.Int64
	severed  atomic.Bool
}

type guardEntry struct {
	token Token
	res   Resource
}

func newGuard(onWorker func() bool) *Guard {
	return &Guard{
		onWorker: onWorker,
		entries:  list.New(),
		index:    make(map[Token]*list.Element),
	}
}

// Track adds r to the inventory. If the guard has already been severed, r is
// severed immediately and the returned error wraps ErrSevered.
func (g *Guard) Track(r Resource) (Token, error) {
	if !g.onWorker() {
		return 0, ErrWrongContext
	}
	if g.severed.Load() {
		if err := r.Sever(); err != nil {
			return 0, errors.Join(ErrSevered, err)
		}
		return 0, ErrSevered
	}

	g.next++
	tok := g.next
	g.index[tok] = g.entries.PushBack(guardEntry{token: tok, res: r})
	g.count.Add(1)
	resourcesTracked.Inc()
	return tok, nil
}

// Untrack removes a resource that was released normally. It reports whether
// the token was tracked.
func (g *Guard) Untrack(tok Token) bool {
	if !g.onWorker() {
		return false
	}
	e, ok := g.index[tok]
	if !ok {
		return false
	}
	g.entries.Remove(e)
	delete(g.index, tok)
	g.count.Add(-1)
	resourcesTracked.Dec()
	return true
}

// Len returns the number of tracked resources.
func (g *Guard) Len() int {
	return int(g.count.Load())
}

// Severed reports whether the guard has been severed.
func (g *Guard) Severed() bool {
	return g.severed.Load()
}

// sever cuts every tracked resource in creation order and empties the
// inventory. Errors from individual resources are joined; one failure does not
// stop the rest from being severed.
func (g *Guard) sever() error {
	if !g.onWorker() {
		return ErrWrongContext
	}
	g.severed.Store(true)

	var errs []error
	for e := g.entries.Front(); e != nil; e = g.entries.Front() {
		entry := g.entries.Remove(e).(guardEntry)
		delete(g.index, entry.token)
		g.count.Add(-1)
		resourcesTracked.Dec()
		if err := entry.res.Sever(); err != nil {
			errs = append(errs, fmt.Errorf("sever resource %d: %w", entry.token, err))
		}
	}
	return errors.Join(errs...)
}
