package apartment

import (
	"errors"
	"fmt"
)

var (
	// ErrWakeQueueFull is returned when the worker's wake channel has no free
	// capacity. The submission was reverted and may be retried.
	ErrWakeQueueFull = errors.New("apartment: wake queue is full")

	// ErrNotRunning is returned when work is submitted to an apartment that is
	// not ready or has begun shutting down.
	ErrNotRunning = errors.New("apartment: not running")

	// ErrTerminated is delivered through the future of a task that was still
	// queued when the worker exited.
	ErrTerminated = errors.New("apartment: worker terminated")

	// ErrInitFailed wraps the error returned by Runtime.Init on the worker.
	ErrInitFailed = errors.New("apartment: worker initialization failed")

	// ErrWrongContext is returned when a worker-only operation is attempted
	// from another goroutine.
	ErrWrongContext = errors.New("apartment: called outside the worker")

	// ErrSevered is returned when a resource is tracked by a guard that has
	// already been severed.
	ErrSevered = errors.New("apartment: guard already severed")

	// ErrMailboxFull is returned when a mailbox has no free capacity.
	ErrMailboxFull = errors.New("apartment: mailbox is full")
)

// PanicError wraps a value recovered from a panicking unit of work.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("apartment: task panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, so errors.Is and errors.As
// see through the panic.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// InvariantError describes a lifetime violation detected during shutdown.
// These are not recoverable and are passed to the fatal handler.
type InvariantError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Err == nil {
		return "apartment: invariant violated in " + e.Op
	}
	return fmt.Sprintf("apartment: invariant violated in %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InvariantError) Unwrap() error {
	return e.Err
}
