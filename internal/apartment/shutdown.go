package apartment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errWorkerGone = errors.New("worker identity is zero before termination")

// Shutdown retires the apartment. It must be called once, from the goroutine
// that owns the apartment, never from the worker. The steps run strictly in
// order:
//
//  1. Submissions are closed and a final unit of work severs every resource
//     tracked by the guard, then uninitializes the runtime, on the worker.
//  2. The quit signal is posted, retrying while the wake channel is full.
//  3. The owner's mailbox is served until the worker reports termination.
//  4. The worker goroutine is joined.
//
// The owner's mailbox is served during every wait, so a resource whose
// release calls back into the owner cannot deadlock the teardown.
//
// Shutdown returns the errors reported while severing resources. If ctx ends
// first, the quit signal is still posted and ctx.Err() is returned without
// joining the worker. A second call returns ErrNotRunning.
func (a *Apartment) Shutdown(ctx context.Context) error {
	if a.IsWorker() {
		return fmt.Errorf("shutdown: %w", ErrWrongContext)
	}

	a.gate.Lock()
	if a.closing {
		a.gate.Unlock()
		return ErrNotRunning
	}
	a.closing = true
	a.gate.Unlock()

	start := time.Now()
	a.logger.Info("apartment shutting down",
		"queued", a.QueueLen(),
		"tracked", a.guard.Len(),
	)

	disconnect, err := a.disconnect()
	if err != nil {
		return err
	}

	var severErr error
	if err := a.serveOwnerUntil(ctx, disconnect.Done()); err != nil {
		if qerr := a.postQuit(context.Background()); qerr != nil {
			return qerr
		}
		return fmt.Errorf("await disconnect: %w", err)
	}
	if _, err := disconnect.Wait(ctx); err != nil {
		severErr = err
		a.logger.Error("severing guarded resources failed", "error", err)
	}

	if err := a.postQuit(ctx); err != nil {
		return err
	}

	if err := a.serveOwnerUntil(ctx, a.terminated); err != nil {
		return fmt.Errorf("await termination: %w", err)
	}
	a.wg.Wait()

	a.logger.Info("apartment shut down", "duration", time.Since(start))
	return severErr
}

// disconnect enqueues the unit of work that severs the guard and releases the
// runtime. It bypasses the closed gate; FIFO order places it after every unit
// of work accepted before the gate closed.
func (a *Apartment) disconnect() (*Future[struct{}], error) {
	f, t := bind(a, func() (struct{}, error) {
		defer a.opts.runtime.Uninit()
		return struct{}{}, a.guard.sever()
	})

	var err error
	for {
		if err = a.enqueue(t); !errors.Is(err, ErrWakeQueueFull) {
			break
		}
		a.logger.Warn("wake queue full, retrying disconnect")
		a.pause(context.Background())
	}
	if err != nil {
		return nil, a.violation("enqueue disconnect", err)
	}
	return f, nil
}

// postQuit posts the quit signal. A full wake channel is transient and is
// retried after a pause during which the owner's mailbox is served. Any other
// failure means the worker vanished, which is an invariant violation.
func (a *Apartment) postQuit(ctx context.Context) error {
	for {
		if a.workerID.Load() == 0 {
			return a.violation("post quit", errWorkerGone)
		}

		err := a.post(signalQuit)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrWakeQueueFull) {
			return a.violation("post quit", err)
		}

		a.logger.Warn("wake queue full, retrying quit", "retry_in", a.opts.stopRetryInterval)
		if err := a.pause(ctx); err != nil {
			return fmt.Errorf("post quit: %w", err)
		}
	}
}

// pause waits for the stop retry interval while serving the owner.
func (a *Apartment) pause(ctx context.Context) error {
	elapsed := make(chan struct{})
	t := time.AfterFunc(a.opts.stopRetryInterval, func() { close(elapsed) })
	defer t.Stop()
	return a.serveOwnerUntil(ctx, elapsed)
}

// serveOwnerUntil runs callbacks posted to the owner's mailbox until done is
// closed or ctx ends. Without an owner mailbox it only waits.
func (a *Apartment) serveOwnerUntil(ctx context.Context, done <-chan struct{}) error {
	var inbox chan func()
	if a.opts.owner != nil {
		inbox = a.opts.owner.ch
	}

	for {
		select {
		case <-done:
			return nil
		case fn := <-inbox:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// violation reports a lifetime invariant violation to the fatal handler. If
// the handler returns, the violation is returned as an error.
func (a *Apartment) violation(op string, err error) error {
	v := &InvariantError{Op: op, Err: err}
	a.logger.Error("apartment invariant violated", "op", op, "error", err)
	a.opts.fatal(v)
	return v
}
