package apartment

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/seantiz/apartment/internal/queue"
)

// signal is a value posted to the worker's wake channel.
type signal uint8

const (
	signalNone signal = iota
	signalNewTask
	signalQuit
)

// task is a unit of work bound to its future.
type task struct {
	// run executes the work on the worker and completes the future.
	run func()
	// reject completes the future with err without running the work.
	reject func(err error)
}

// Apartment executes units of work on a single dedicated worker goroutine in
// submission order. Create one with Start and retire it with Shutdown.
type Apartment struct {
	opts   options
	logger *slog.Logger

	queue *queue.Queue[*task]
	wake  chan signal
	state stateCell

	// workerID is the goroutine id of the worker. It is non-zero from the moment
	// the worker starts until it has finished tearing down.
	workerID atomic.Uint64
	threadID atomic.Int64

	ready      chan struct{}
	terminated chan struct{}
	wg         sync.WaitGroup

	// initErr is written by the worker before ready is closed.
	initErr error

	// guard is created by the worker before ready is closed and is only
	// mutated on the worker afterwards.
	guard *Guard

	// gate orders submissions against the start of shutdown. Producers hold
	// the read side only while enqueueing.
	gate    sync.RWMutex
	closing bool

	// pushMu makes push, wake and revert one step with respect to other
	// producers, so a revert always removes the caller's own task.
	pushMu sync.Mutex

	submitted atomic.Uint64
	executed  atomic.Uint64
	rejected  atomic.Uint64
}

// Stats is a point-in-time snapshot of an apartment's counters.
type Stats struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	WorkerID  uint64 `json:"worker_id"`
	ThreadID  int    `json:"thread_id"`
	Queued    int    `json:"queued"`
	Tracked   int    `json:"tracked"`
	Submitted uint64 `json:"submitted"`
	Executed  uint64 `json:"executed"`
	Rejected  uint64 `json:"rejected"`
}

// Start creates an apartment and blocks until its worker is ready. If the
// runtime fails to initialize on the worker, the worker is joined and the
// returned error wraps ErrInitFailed.
func Start(opts ...Option) (*Apartment, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	a := &Apartment{
		opts:       o,
		logger:     o.logger.With("apartment", o.name),
		queue:      queue.New[*task](),
		wake:       make(chan signal, o.wakeCapacity),
		ready:      make(chan struct{}),
		terminated: make(chan struct{}),
	}

	a.wg.Go(a.run)
	<-a.ready

	if a.initErr != nil {
		a.wg.Wait()
		a.logger.Error("apartment failed to start", "error", a.initErr)
		return nil, a.initErr
	}

	a.logger.Info("apartment ready",
		"worker_id", a.WorkerID(),
		"thread_id", a.ThreadID(),
		"wake_capacity", o.wakeCapacity,
	)
	return a, nil
}

// Invoke submits fn for execution on the worker and returns a future for its
// error. It fails synchronously, without fn ever running, if the apartment is
// not accepting work or the worker cannot be woken.
func (a *Apartment) Invoke(fn func() error) (*Future[struct{}], error) {
	return Call(a, func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

// InvokeGuarded is Invoke with access to the apartment's guard, so that
// resources created by fn can be tracked and severed at shutdown.
func (a *Apartment) InvokeGuarded(fn func(g *Guard) error) (*Future[struct{}], error) {
	return CallGuarded(a, func(g *Guard) (struct{}, error) {
		return struct{}{}, fn(g)
	})
}

// Call submits a value-returning unit of work to a. See Apartment.Invoke.
func Call[T any](a *Apartment, fn func() (T, error)) (*Future[T], error) {
	f, t := bind(a, fn)
	if err := a.submit(t); err != nil {
		return nil, err
	}
	return f, nil
}

// CallGuarded submits a value-returning unit of work that runs with the
// apartment's guard. See Apartment.InvokeGuarded.
func CallGuarded[T any](a *Apartment, fn func(g *Guard) (T, error)) (*Future[T], error) {
	return Call(a, func() (T, error) {
		return fn(a.guard)
	})
}

// bind wraps fn and a fresh future into a task.
func bind[T any](a *Apartment, fn func() (T, error)) (*Future[T], *task) {
	f := newFuture[T]()
	t := &task{
		run: func() {
			v, err := execute(a, fn)
			f.complete(v, err)
		},
		reject: func(err error) {
			var zero T
			f.complete(zero, err)
		},
	}
	return f, t
}

// submit enqueues t unless the apartment is closing.
func (a *Apartment) submit(t *task) error {
	a.gate.RLock()
	defer a.gate.RUnlock()

	if a.closing {
		a.reject(reasonNotRunning)
		return ErrNotRunning
	}
	return a.enqueue(t)
}

// enqueue pushes t and wakes the worker. If the wake signal cannot be posted
// the push is reverted and the error is returned.
func (a *Apartment) enqueue(t *task) error {
	a.pushMu.Lock()
	defer a.pushMu.Unlock()

	if a.workerID.Load() == 0 {
		a.reject(reasonNotRunning)
		return ErrNotRunning
	}

	a.queue.PushBack(t)
	if err := a.post(signalNewTask); err != nil {
		if reverted, ok := a.queue.RevertLastPush(); !ok || reverted != t {
			// Each delivered signal pops exactly one task and the worker
			// cannot outrun the signals, so the back is always t.
			return a.violation("revert push", errors.New("queue back is not the submitted task"))
		}
		if errors.Is(err, ErrWakeQueueFull) {
			a.reject(reasonWakeFull)
		} else {
			a.reject(reasonTerminated)
		}
		a.logger.Warn("task rejected", "error", err, "queued", a.queue.Len())
		return fmt.Errorf("submit task: %w", err)
	}

	a.submitted.Add(1)
	tasksSubmitted.WithLabelValues(a.opts.name).Inc()
	queueDepth.WithLabelValues(a.opts.name).Inc()
	return nil
}

// post delivers s to the worker without blocking.
func (a *Apartment) post(s signal) error {
	select {
	case <-a.terminated:
		return ErrTerminated
	default:
	}

	select {
	case a.wake <- s:
		return nil
	default:
		return ErrWakeQueueFull
	}
}

func (a *Apartment) reject(reason string) {
	a.rejected.Add(1)
	tasksRejected.WithLabelValues(a.opts.name, reason).Inc()
}

// Name returns the apartment's name.
func (a *Apartment) Name() string {
	return a.opts.name
}

// State returns the worker's current lifecycle state.
func (a *Apartment) State() State {
	return a.state.load()
}

// WorkerID returns the goroutine id of the worker, or 0 once it has
// terminated.
func (a *Apartment) WorkerID() uint64 {
	return a.workerID.Load()
}

// ThreadID returns the OS thread id the worker is locked to, where the
// platform exposes one.
func (a *Apartment) ThreadID() int {
	return int(a.threadID.Load())
}

// IsWorker reports whether the caller is running on the worker goroutine.
func (a *Apartment) IsWorker() bool {
	id := a.workerID.Load()
	return id != 0 && goroutineID() == id
}

// QueueLen returns the number of units of work waiting to run.
func (a *Apartment) QueueLen() int {
	return a.queue.Len()
}

// Terminated returns a channel that is closed once the worker has exited.
func (a *Apartment) Terminated() <-chan struct{} {
	return a.terminated
}

// Stats returns a snapshot of the apartment's counters.
func (a *Apartment) Stats() Stats {
	s := Stats{
		Name:      a.opts.name,
		State:     a.State().String(),
		WorkerID:  a.WorkerID(),
		ThreadID:  a.ThreadID(),
		Queued:    a.QueueLen(),
		Submitted: a.submitted.Load(),
		Executed:  a.executed.Load(),
		Rejected:  a.rejected.Load(),
	}
	if a.guard != nil {
		s.Tracked = a.guard.Len()
	}
	return s
}
