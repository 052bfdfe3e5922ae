package apartment

import (
	"context"
	"fmt"
)

// Mailbox is the notification queue of a goroutine that is not an apartment
// worker, typically the goroutine that owns an apartment. Other goroutines,
// including apartment workers, post callbacks to it; they run only while the
// owner serves the mailbox.
//
// Apartment.Shutdown serves the owner's mailbox while it waits, so that a
// resource whose release has to run on the owner can complete during
// teardown.
type Mailbox struct {
	ch chan func()
}

// NewMailbox creates a mailbox that holds up to capacity pending callbacks.
func NewMailbox(capacity int) *Mailbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox{ch: make(chan func(), capacity)}
}

// Post queues fn without waiting for it to run.
func (m *Mailbox) Post(fn func()) error {
	select {
	case m.ch <- fn:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Call queues fn and blocks until the owner has run it, or ctx is done.
// A panic in fn is returned as a *PanicError.
func (m *Mailbox) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- &PanicError{Value: r}
			}
		}()
		result <- fn()
	}

	select {
	case m.ch <- wrapped:
	case <-ctx.Done():
		return fmt.Errorf("post to mailbox: %w", ctx.Err())
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve runs posted callbacks until ctx is done.
func (m *Mailbox) Serve(ctx context.Context) error {
	for {
		select {
		case fn := <-m.ch:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ServeUntil runs posted callbacks until done is closed. Callbacks already
// queued when done closes may remain queued.
func (m *Mailbox) ServeUntil(done <-chan struct{}) {
	for {
		select {
		case fn := <-m.ch:
			fn()
		case <-done:
			return
		}
	}
}

// Drain runs every callback currently queued and returns how many ran.
func (m *Mailbox) Drain() int {
	n := 0
	for {
		select {
		case fn := <-m.ch:
			fn()
			n++
		default:
			return n
		}
	}
}

// Pending returns the number of queued callbacks.
func (m *Mailbox) Pending() int {
	return len(m.ch)
}
