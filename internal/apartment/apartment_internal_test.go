package apartment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startForTest(t *testing.T, opts ...Option) *Apartment {
	t.Helper()
	opts = append([]Option{WithName(t.Name())}, opts...)
	a, err := Start(opts...)
	require.NoError(t, err)
	return a
}

func TestGoroutineIDIsStable(t *testing.T) {
	id := goroutineID()
	require.NotZero(t, id)
	assert.Equal(t, id, goroutineID())

	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, id, <-other)
}

func TestOwnerCallbackRunsOnShutdownCaller(t *testing.T) {
	owner := NewMailbox(1)
	a := startForTest(t, WithOwner(owner))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var releasedOn uint64
	fut, err := a.InvokeGuarded(func(g *Guard) error {
		_, err := g.Track(ResourceFunc(func() error {
			return owner.Call(ctx, func() error {
				releasedOn = goroutineID()
				return nil
			})
		}))
		return err
	})
	require.NoError(t, err)
	_, err = fut.Wait(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Shutdown(ctx))
	assert.Equal(t, goroutineID(), releasedOn)
}

func TestPostQuitReportsVanishedWorker(t *testing.T) {
	var reported []error
	a := startForTest(t, WithFatalHandler(func(err error) {
		reported = append(reported, err)
	}))

	id := a.workerID.Load()
	a.workerID.Store(0)
	err := a.postQuit(context.Background())
	a.workerID.Store(id)

	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "post quit", inv.Op)
	assert.ErrorIs(t, err, errWorkerGone)
	require.Len(t, reported, 1)
	assert.Same(t, err, reported[0])

	require.NoError(t, a.Shutdown(context.Background()))
}

func TestDefaultFatalHandlerPanics(t *testing.T) {
	o := defaultOptions()
	assert.Panics(t, func() { o.fatal(errors.New("boom")) })
}

func TestPostAfterTerminationFails(t *testing.T) {
	a := startForTest(t)
	require.NoError(t, a.Shutdown(context.Background()))

	assert.ErrorIs(t, a.post(signalNewTask), ErrTerminated)
}

func TestRejectRemainingFailsQueuedFutures(t *testing.T) {
	a := startForTest(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	_, err := a.Invoke(func() error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	// Quit is posted ahead of the orphan, which has no wake signal of its own.
	require.NoError(t, a.post(signalQuit))
	f, orphan := bind(a, func() (int, error) { return 1, nil })
	a.queue.PushBack(orphan)
	queueDepth.WithLabelValues(a.opts.name).Inc()
	close(release)

	<-a.Terminated()
	a.wg.Wait()

	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, ErrTerminated)
	assert.Zero(t, a.QueueLen())
	assert.Zero(t, a.WorkerID())
}

func TestWaitPrefersCompletedResult(t *testing.T) {
	f := newFuture[int]()
	f.complete(7, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Both cases are ready; a select alone would pick either.
	for range 100 {
		v, err := f.Wait(ctx)
		require.NoError(t, err)
		require.Equal(t, 7, v)
	}
}

func TestTaskMetrics(t *testing.T) {
	a := startForTest(t)
	name := a.Name()
	ctx := context.Background()

	// The collectors are process-wide and the name repeats across -count runs.
	reader := func(c prometheus.Collector) func() float64 {
		return func() float64 { return testutil.ToFloat64(c) }
	}
	metrics := map[string]func() float64{
		"submitted":   reader(tasksSubmitted.WithLabelValues(name)),
		"ok":          reader(tasksExecuted.WithLabelValues(name, outcomeOK)),
		"error":       reader(tasksExecuted.WithLabelValues(name, outcomeError)),
		"panic":       reader(tasksExecuted.WithLabelValues(name, outcomePanic)),
		"not_running": reader(tasksRejected.WithLabelValues(name, reasonNotRunning)),
		"queue_depth": reader(queueDepth.WithLabelValues(name)),
	}
	before := make(map[string]float64, len(metrics))
	for k, read := range metrics {
		before[k] = read()
	}

	ok, err := a.Invoke(func() error { return nil })
	require.NoError(t, err)
	failed, err := a.Invoke(func() error { return errors.New("nope") })
	require.NoError(t, err)
	panicked, err := a.Invoke(func() error { panic("boom") })
	require.NoError(t, err)

	for _, f := range []*Future[struct{}]{ok, failed, panicked} {
		_, _ = f.Wait(ctx)
	}

	require.NoError(t, a.Shutdown(ctx))

	_, err = a.Invoke(func() error { return nil })
	require.ErrorIs(t, err, ErrNotRunning)

	// The disconnect task counts as submitted and executed.
	want := map[string]float64{
		"submitted":   4,
		"ok":          2,
		"error":       1,
		"panic":       1,
		"not_running": 1,
		"queue_depth": 0,
	}
	for k, read := range metrics {
		assert.Equal(t, want[k], read()-before[k], k)
	}

	s := a.Stats()
	assert.Equal(t, StateTerminated.String(), s.State)
	assert.Equal(t, uint64(4), s.Submitted)
	assert.Equal(t, uint64(4), s.Executed)
	assert.Equal(t, uint64(1), s.Rejected)
}

func TestTrackOnSeveredGuardSeversImmediately(t *testing.T) {
	a := startForTest(t)
	ctx := context.Background()

	fut, err := CallGuarded(a, func(g *Guard) (bool, error) {
		if err := g.sever(); err != nil {
			return false, err
		}
		severed := false
		_, err := g.Track(ResourceFunc(func() error {
			severed = true
			return nil
		}))
		if !errors.Is(err, ErrSevered) {
			return false, err
		}
		return severed && g.Severed(), nil
	})
	require.NoError(t, err)
	ok, err := fut.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.Shutdown(ctx))
}
