package apartment

import (
	"fmt"
	"runtime"
	"time"
)

// run is the body of the worker goroutine.
func (a *Apartment) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	a.workerID.Store(goroutineID())
	a.threadID.Store(int64(osThreadID()))

	if err := a.initRuntime(); err != nil {
		a.initErr = fmt.Errorf("%w: %w", ErrInitFailed, err)
		a.workerID.Store(0)
		a.state.store(StateTerminated)
		close(a.terminated)
		close(a.ready)
		return
	}

	a.guard = newGuard(a.IsWorker)
	a.state.store(StateReady)
	close(a.ready)

	a.pump()

	a.rejectRemaining()
	a.logger.Info("apartment worker exiting", "executed", a.executed.Load())
	a.workerID.Store(0)
	a.state.store(StateTerminated)
	close(a.terminated)
}

// initRuntime initializes the per-context runtime, converting a panic into an
// error.
func (a *Apartment) initRuntime() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return a.opts.runtime.Init()
}

// pump waits for wake signals and runs one queued task per new-task signal.
// Once woken it keeps consuming already-pending signals, so a burst of
// submissions drains in FIFO order before the worker blocks again. It returns
// when the quit signal arrives.
func (a *Apartment) pump() {
	for {
		sig := <-a.wake
		for sig == signalNewTask {
			a.state.store(StateRunning)
			a.runNext()
			sig = a.pollSignal()
		}
		if sig == signalQuit {
			a.state.store(StateStopping)
			return
		}
		a.state.store(StateReady)
	}
}

// pollSignal returns the next pending signal, or signalNone.
func (a *Apartment) pollSignal() signal {
	select {
	case s := <-a.wake:
		return s
	default:
		return signalNone
	}
}

func (a *Apartment) runNext() {
	t, ok := a.queue.PopFront()
	if !ok {
		a.logger.Warn("wake signal without a queued task")
		return
	}
	queueDepth.WithLabelValues(a.opts.name).Dec()
	t.run()
}

// rejectRemaining fails the futures of tasks still queued after the loop
// exited. Shutdown closes submissions before posting quit, so under correct
// use there are none.
func (a *Apartment) rejectRemaining() {
	for {
		t, ok := a.queue.PopFront()
		if !ok {
			return
		}
		queueDepth.WithLabelValues(a.opts.name).Dec()
		a.reject(reasonTerminated)
		a.logger.Warn("rejecting task queued after quit")
		t.reject(ErrTerminated)
	}
}

// execute runs fn on the worker, recovering a panic into a *PanicError and
// recording metrics.
func execute[T any](a *Apartment, fn func() (T, error)) (v T, err error) {
	start := time.Now()
	defer func() {
		outcome := outcomeOK
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
			outcome = outcomePanic
			a.logger.Error("task panicked", "panic", r)
		} else if err != nil {
			outcome = outcomeError
		}

		a.executed.Add(1)
		tasksExecuted.WithLabelValues(a.opts.name, outcome).Inc()
		taskDuration.WithLabelValues(a.opts.name).Observe(time.Since(start).Seconds())
		a.logger.Debug("task executed", "outcome", outcome, "duration", time.Since(start))
	}()
	return fn()
}
