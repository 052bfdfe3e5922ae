// Package factory constructs objects on an apartment's worker and hands out
// proxies that marshal every call back to it. Objects are tracked by the
// apartment's guard, so shutting the apartment down disconnects every proxy
// that is still outstanding.
package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/seantiz/apartment/internal/apartment"
	"github.com/seantiz/apartment/internal/lifetime"
)

var (
	// ErrDisconnected is returned by proxy operations once the object was
	// severed or its apartment is gone.
	ErrDisconnected = errors.New("factory: object disconnected")

	// ErrClosed is returned when creating objects through a closed factory.
	ErrClosed = errors.New("factory: closed")
)

// Factory creates objects that live on a single apartment. A factory holds
// one reference on its lifetime counter from New until Close.
type Factory struct {
	apt    *apartment.Apartment
	owned  bool
	life   *lifetime.Counter
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// New returns a factory that creates objects on apt. The caller keeps
// ownership of apt.
func New(apt *apartment.Apartment, life *lifetime.Counter, logger *slog.Logger) *Factory {
	return newFactory(apt, false, life, logger)
}

// Start creates a factory with its own apartment, which Close shuts down.
func Start(life *lifetime.Counter, logger *slog.Logger, opts ...apartment.Option) (*Factory, error) {
	opts = append([]apartment.Option{apartment.WithLogger(logger)}, opts...)
	apt, err := apartment.Start(opts...)
	if err != nil {
		return nil, fmt.Errorf("start factory apartment: %w", err)
	}
	return newFactory(apt, true, life, logger), nil
}

func newFactory(apt *apartment.Apartment, owned bool, life *lifetime.Counter, logger *slog.Logger) *Factory {
	if life == nil {
		life = new(lifetime.Counter)
	}
	life.Acquire()
	return &Factory{
		apt:    apt,
		owned:  owned,
		life:   life,
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Apartment returns the apartment objects are created on.
func (f *Factory) Apartment() *apartment.Apartment {
	return f.apt
}

// Lifetime returns the counter tracking this factory's references.
func (f *Factory) Lifetime() *lifetime.Counter {
	return f.life
}

// LockServer keeps the host loaded while no objects exist (lock true) or
// undoes an earlier lock (lock false).
func (f *Factory) LockServer(lock bool) {
	n := f.life.Lock(lock)
	f.logger.Debug("server lock changed", "lock", lock, "count", n)
}

// CanUnloadNow reports whether no objects, locks or open factories remain.
func (f *Factory) CanUnloadNow() bool {
	return f.life.CanUnload()
}

// Close releases the factory's own reference and, if the factory owns its
// apartment, shuts the apartment down, which disconnects every object still
// outstanding. Close must be called from the goroutine that owns the
// apartment. Later calls return the first result.
func (f *Factory) Close(ctx context.Context) error {
	f.closeOnce.Do(func() {
		close(f.closed)
		if f.owned {
			if err := f.apt.Shutdown(ctx); err != nil {
				f.closeErr = fmt.Errorf("shut down factory apartment: %w", err)
			}
		}
		f.life.Release()
	})
	return f.closeErr
}

func (f *Factory) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// Create runs ctor on the factory's apartment and returns a proxy to the
// object it built. The object is counted as a lifetime reference until it is
// released or severed.
func Create[T any](ctx context.Context, f *Factory, ctor func() (T, error)) (*Proxy[T], error) {
	if f.isClosed() {
		return nil, ErrClosed
	}

	fut, err := apartment.CallGuarded(f.apt, func(g *apartment.Guard) (*Proxy[T], error) {
		obj, err := ctor()
		if err != nil {
			return nil, err
		}
		p := &Proxy[T]{f: f, obj: obj}
		p.state.Store(stateLive)
		f.life.Acquire()

		tok, err := g.Track(apartment.ResourceFunc(p.sever))
		if err != nil {
			return nil, fmt.Errorf("track object: %w", err)
		}
		p.token = tok
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create object: %w", disconnected(err))
	}

	p, err := fut.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("create object: %w", disconnected(err))
	}
	f.logger.Debug("object created", "token", p.token, "count", f.life.Count())
	return p, nil
}

// disconnected maps apartment lifecycle errors to ErrDisconnected.
func disconnected(err error) error {
	if errors.Is(err, apartment.ErrNotRunning) || errors.Is(err, apartment.ErrTerminated) {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	return err
}
