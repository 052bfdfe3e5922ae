package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/seantiz/apartment/internal/apartment"
)

const (
	stateLive uint32 = iota + 1
	stateReleased
	stateSevered
)

// Severer is implemented by objects that hold references into other
// goroutines, such as callbacks registered with an owner's mailbox. Sever is
// called on the worker when the object is disconnected during shutdown,
// before Close.
type Severer interface {
	Sever() error
}

// Proxy is a handle to an object living on a factory's apartment. It may be
// used from any goroutine; every call is marshaled to the worker.
type Proxy[T any] struct {
	f *Factory
	// obj is only touched on the worker.
	obj   T
	token apartment.Token
	state atomic.Uint32
}

// Call runs fn with the object on the worker and waits for it.
func (p *Proxy[T]) Call(ctx context.Context, fn func(obj T) error) error {
	_, err := Query(ctx, p, func(obj T) (struct{}, error) {
		return struct{}{}, fn(obj)
	})
	return err
}

// Query runs fn with the object on the worker and returns its result.
func Query[T, R any](ctx context.Context, p *Proxy[T], fn func(obj T) (R, error)) (R, error) {
	var zero R
	if p.state.Load() != stateLive {
		return zero, ErrDisconnected
	}

	fut, err := apartment.Call(p.f.apt, func() (R, error) {
		if p.state.Load() != stateLive {
			return zero, ErrDisconnected
		}
		return fn(p.obj)
	})
	if err != nil {
		return zero, disconnected(err)
	}
	v, err := fut.Wait(ctx)
	if err != nil {
		return zero, disconnected(err)
	}
	return v, nil
}

// Connected reports whether the object is still reachable through p.
func (p *Proxy[T]) Connected() bool {
	return p.state.Load() == stateLive
}

// Release destroys the object on the worker and drops its lifetime
// reference. Releasing a proxy that was already released or severed is a
// no-op.
func (p *Proxy[T]) Release(ctx context.Context) error {
	if p.state.Load() != stateLive {
		return nil
	}

	fut, err := apartment.CallGuarded(p.f.apt, func(g *apartment.Guard) (struct{}, error) {
		if !p.state.CompareAndSwap(stateLive, stateReleased) {
			return struct{}{}, nil
		}
		g.Untrack(p.token)
		err := closeObject(p.obj)
		p.drop()
		return struct{}{}, err
	})
	if err != nil {
		if errors.Is(disconnected(err), ErrDisconnected) {
			// Shutdown is severing or has severed the object.
			return nil
		}
		return fmt.Errorf("release object: %w", err)
	}
	if _, err := fut.Wait(ctx); err != nil {
		return fmt.Errorf("release object: %w", err)
	}
	return nil
}

// sever disconnects the object during shutdown. It runs on the worker.
func (p *Proxy[T]) sever() error {
	if !p.state.CompareAndSwap(stateLive, stateSevered) {
		return nil
	}

	var errs []error
	if s, ok := any(p.obj).(Severer); ok {
		if err := s.Sever(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := closeObject(p.obj); err != nil {
		errs = append(errs, err)
	}
	p.drop()
	p.f.logger.Debug("object severed", "token", p.token)
	return errors.Join(errs...)
}

// drop clears the object and gives back its lifetime reference.
func (p *Proxy[T]) drop() {
	var zero T
	p.obj = zero
	p.f.life.Release()
}

func closeObject(obj any) error {
	if c, ok := obj.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
