package factory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/apartment/internal/apartment"
	"github.com/seantiz/apartment/internal/lifetime"
)

type widget struct {
	apt     *apartment.Apartment
	calls   int
	closed  *bool
	severFn func() error
}

func (w *widget) Close() error {
	*w.closed = true
	return nil
}

func (w *widget) Sever() error {
	if w.severFn == nil {
		return nil
	}
	return w.severFn()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestFactory(t *testing.T, opts ...apartment.Option) *Factory {
	t.Helper()
	opts = append([]apartment.Option{apartment.WithName(t.Name())}, opts...)
	f, err := Start(new(lifetime.Counter), testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close(context.Background()) })
	return f
}

func TestCreateRunsOnWorker(t *testing.T) {
	f := newTestFactory(t)
	ctx := testContext(t)

	var closed bool
	var builtOnWorker bool
	p, err := Create(ctx, f, func() (*widget, error) {
		builtOnWorker = f.Apartment().IsWorker()
		return &widget{apt: f.Apartment(), closed: &closed}, nil
	})
	require.NoError(t, err)
	assert.True(t, builtOnWorker)
	assert.True(t, p.Connected())

	// One reference for the factory, one for the object.
	assert.Equal(t, int64(2), f.Lifetime().Count())

	n, err := Query(ctx, p, func(w *widget) (int, error) {
		if !w.apt.IsWorker() {
			return 0, errors.New("call not on worker")
		}
		w.calls++
		return w.calls, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newTestFactory(t)
	ctx := testContext(t)

	var closed bool
	p, err := Create(ctx, f, func() (*widget, error) {
		return &widget{closed: &closed}, nil
	})
	require.NoError(t, err)

	require.NoError(t, p.Release(ctx))
	require.NoError(t, p.Release(ctx))
	assert.True(t, closed)
	assert.False(t, p.Connected())
	assert.Equal(t, int64(1), f.Lifetime().Count())
	assert.Zero(t, f.Apartment().Stats().Tracked)

	err = p.Call(ctx, func(*widget) error { return nil })
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestCreatePropagatesConstructorError(t *testing.T) {
	f := newTestFactory(t)
	errCtor := errors.New("ctor failed")

	_, err := Create(testContext(t), f, func() (*widget, error) { return nil, errCtor })
	assert.ErrorIs(t, err, errCtor)
	assert.Equal(t, int64(1), f.Lifetime().Count())
}

func TestCloseDisconnectsOutstandingProxies(t *testing.T) {
	f, err := Start(new(lifetime.Counter), testLogger(), apartment.WithName(t.Name()))
	require.NoError(t, err)
	ctx := testContext(t)

	var closed bool
	p, err := Create(ctx, f, func() (*widget, error) {
		return &widget{closed: &closed}, nil
	})
	require.NoError(t, err)

	require.NoError(t, f.Close(ctx))
	assert.True(t, closed)
	assert.True(t, f.CanUnloadNow())

	err = p.Call(ctx, func(*widget) error { return nil })
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.NoError(t, p.Release(ctx))

	_, err = Create(ctx, f, func() (*widget, error) { return &widget{closed: &closed}, nil })
	assert.ErrorIs(t, err, ErrClosed)

	// Close is idempotent.
	assert.NoError(t, f.Close(ctx))
	assert.True(t, f.CanUnloadNow())
}

func TestSeverCallsBackIntoOwner(t *testing.T) {
	owner := apartment.NewMailbox(1)
	f, err := Start(new(lifetime.Counter), testLogger(),
		apartment.WithName(t.Name()), apartment.WithOwner(owner))
	require.NoError(t, err)
	ctx := testContext(t)

	var closed, notified bool
	_, err = Create(ctx, f, func() (*widget, error) {
		return &widget{
			closed: &closed,
			severFn: func() error {
				return owner.Call(ctx, func() error {
					notified = true
					return nil
				})
			},
		}, nil
	})
	require.NoError(t, err)

	require.NoError(t, f.Close(ctx))
	assert.True(t, notified)
	assert.True(t, closed)
}

func TestLockServer(t *testing.T) {
	life := new(lifetime.Counter)
	f, err := Start(life, testLogger(), apartment.WithName(t.Name()))
	require.NoError(t, err)
	ctx := testContext(t)

	f.LockServer(true)
	require.NoError(t, f.Close(ctx))
	assert.False(t, f.CanUnloadNow(), "server lock must keep the host loaded")

	f.LockServer(false)
	assert.True(t, f.CanUnloadNow())
}

func TestBorrowedApartmentOutlivesFactory(t *testing.T) {
	apt, err := apartment.Start(apartment.WithName(t.Name()))
	require.NoError(t, err)
	ctx := testContext(t)

	life := new(lifetime.Counter)
	f := New(apt, life, testLogger())
	require.NoError(t, f.Close(ctx))
	assert.True(t, life.CanUnload())
	assert.Equal(t, apartment.StateReady, apt.State())

	require.NoError(t, apt.Shutdown(ctx))
}
