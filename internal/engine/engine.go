package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/apartment/internal/apartment"
	"github.com/seantiz/apartment/internal/factory"
	"github.com/seantiz/apartment/internal/kind"
	"github.com/seantiz/apartment/internal/model"
	"github.com/seantiz/apartment/internal/store"
)

var (
	// ErrNotLive is returned when operating on an object that was released
	// or disconnected.
	ErrNotLive = errors.New("object is not live")

	// ErrClosed is returned once the engine has begun shutting down.
	ErrClosed = errors.New("engine is shut down")
)

// disconnectReason is recorded on objects severed by shutdown.
const disconnectReason = "apartment shut down"

// Engine hosts objects on the factory's apartment.
type Engine struct {
	store   store.Store
	kinds   *kind.Registry
	factory *factory.Factory
	owner   *apartment.Mailbox
	logger  *slog.Logger
	broker  *EventBroker

	mu      sync.Mutex
	objects map[string]*factory.Proxy[kind.Object]
	severed map[string]struct{}
	closed  bool
	// severCtx bounds the reports of objects severed during shutdown.
	severCtx context.Context
}

// Status summarizes the engine's apartment and host lifetime.
type Status struct {
	Apartment   apartment.Stats `json:"apartment"`
	LiveObjects int             `json:"live_objects"`
	Lifetime    int64           `json:"lifetime_refs"`
	CanUnload   bool            `json:"can_unload"`
}

// NewEngine creates an object host engine. owner, if non-nil, is the mailbox
// of the goroutine that will call Shutdown; objects severed during shutdown
// report their disconnection through it.
func NewEngine(s store.Store, kinds *kind.Registry, f *factory.Factory, owner *apartment.Mailbox, logger *slog.Logger) *Engine {
	return &Engine{
		store:   s,
		kinds:   kinds,
		factory: f,
		owner:   owner,
		logger:  logger,
		broker:  NewEventBroker(),
		objects: make(map[string]*factory.Proxy[kind.Object]),
		severed: make(map[string]struct{}),
	}
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Kinds returns the kinds this engine can create.
func (e *Engine) Kinds() []kind.Info {
	return e.kinds.List()
}

// Create constructs an object of the named kind on the apartment. The object
// record is stored as live before construction; a failed construction marks
// it failed.
func (e *Engine) Create(ctx context.Context, kindName string) (*model.Object, error) {
	k, err := e.kinds.Resolve(kindName)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	now := time.Now().UTC()
	rec := &model.Object{
		ID:        model.NewID(),
		Kind:      kindName,
		Status:    model.StatusLive,
		Apartment: e.factory.Apartment().Name(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateObject(ctx, rec); err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}

	id := rec.ID
	p, err := factory.Create(ctx, e.factory, func() (kind.Object, error) {
		obj, err := k.New()
		if err != nil {
			return nil, err
		}
		return &hostedObject{Object: obj, id: id, engine: e}, nil
	})
	if err != nil {
		e.finish(id, model.StatusFailed, err.Error())
		return nil, fmt.Errorf("construct %s: %w", kindName, err)
	}

	// Shutdown may have severed the object between construction and here; its
	// sever hook already recorded the disconnection.
	e.mu.Lock()
	connected := p.Connected()
	if connected {
		e.objects[id] = p
	}
	e.mu.Unlock()
	if !connected {
		return nil, fmt.Errorf("construct %s: %w", kindName, ErrClosed)
	}

	e.broker.Publish(Event{Type: EventCreated, ObjectID: id, Time: now})
	e.logger.Info("object created", "object_id", id, "kind", kindName)
	return rec, nil
}

// Invoke runs op on the object and records the invocation. An error returned
// by the object itself is returned alongside the recorded invocation.
func (e *Engine) Invoke(ctx context.Context, id, op string, args json.RawMessage) (*model.Invocation, error) {
	p, err := e.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	// The sequence number is taken on the worker, so it follows execution order
	// whatever order the callers record in.
	out, err := factory.Query(ctx, p, func(obj kind.Object) (callOutcome, error) {
		h := obj.(*hostedObject)
		h.seq++
		result, err := h.Object.Invoke(op, args)
		return callOutcome{result: result, seq: h.seq, err: err}, nil
	})
	if errors.Is(err, factory.ErrDisconnected) {
		return nil, fmt.Errorf("%w: %w", ErrNotLive, err)
	}
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", op, err)
	}
	callErr := out.err

	inv := &model.Invocation{
		ObjectID:   id,
		Seq:        out.seq,
		Op:         op,
		Args:       string(args),
		Result:     string(out.result),
		DurationMS: int(time.Since(start).Milliseconds()),
		CreatedAt:  start.UTC(),
	}
	if callErr != nil {
		inv.Error = callErr.Error()
	}

	// The call already ran; record it even if the caller has gone away.
	if err := e.store.RecordInvocation(context.WithoutCancel(ctx), inv); err != nil {
		e.logger.Error("failed to record invocation", "object_id", id, "op", op, "seq", inv.Seq, "error", err)
		return inv, errors.Join(callErr, fmt.Errorf("record invocation: %w", err))
	}
	e.broker.Publish(Event{
		Type:     EventInvoked,
		ObjectID: id,
		Op:       op,
		Seq:      inv.Seq,
		Error:    inv.Error,
		Time:     time.Now().UTC(),
	})

	return inv, callErr
}

// Release destroys the object on the apartment and marks it released.
func (e *Engine) Release(ctx context.Context, id string) error {
	p, err := e.lookup(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.objects, id)
	e.mu.Unlock()

	if err := p.Release(ctx); err != nil {
		e.finish(id, model.StatusFailed, err.Error())
		return fmt.Errorf("release object: %w", err)
	}
	e.finish(id, model.StatusReleased, "")
	e.logger.Info("object released", "object_id", id)
	return nil
}

// Shutdown stops accepting objects and retires the factory, which severs
// every live object on the apartment. It must be called from the goroutine
// that owns the apartment.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	e.severCtx = ctx
	live := len(e.objects)
	e.mu.Unlock()

	e.logger.Info("engine shutting down", "live_objects", live)
	err := e.factory.Close(ctx)

	// Objects whose sever hook could not report back.
	e.mu.Lock()
	remaining := make([]string, 0, len(e.objects))
	for id := range e.objects {
		remaining = append(remaining, id)
	}
	e.mu.Unlock()
	for _, id := range remaining {
		e.disconnected(id)
	}

	if err != nil {
		return fmt.Errorf("close factory: %w", err)
	}
	return nil
}

// Status returns a snapshot of the apartment and lifetime counters.
func (e *Engine) Status() Status {
	e.mu.Lock()
	live := len(e.objects)
	e.mu.Unlock()

	return Status{
		Apartment:   e.factory.Apartment().Stats(),
		LiveObjects: live,
		Lifetime:    e.factory.Lifetime().Count(),
		CanUnload:   e.factory.CanUnloadNow(),
	}
}

// lookup returns the proxy of a live object, ErrNotLive for a known object
// that is gone, or store.ErrNotFound.
func (e *Engine) lookup(ctx context.Context, id string) (*factory.Proxy[kind.Object], error) {
	e.mu.Lock()
	p, ok := e.objects[id]
	e.mu.Unlock()
	if ok {
		return p, nil
	}

	if _, err := e.store.GetObject(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrNotLive
}

// disconnected records that shutdown severed the object. The object may not
// be in the live map yet if Create has not returned; it is recorded once
// either way.
func (e *Engine) disconnected(id string) {
	e.mu.Lock()
	delete(e.objects, id)
	_, done := e.severed[id]
	e.severed[id] = struct{}{}
	e.mu.Unlock()
	if done {
		return
	}
	e.finish(id, model.StatusDisconnected, disconnectReason)
}

// severContext returns the context passed to Shutdown.
func (e *Engine) severContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.severCtx == nil {
		return context.Background()
	}
	return e.severCtx
}

// callOutcome carries an object's result and error out of the worker along
// with the invocation's sequence number.
type callOutcome struct {
	result json.RawMessage
	seq    int
	err    error
}

// finish persists a terminal status, publishes it and closes the object's
// event stream.
func (e *Engine) finish(id, status, errMsg string) {
	if err := e.store.UpdateObjectStatus(context.Background(), id, status, errMsg); err != nil {
		e.logger.Error("failed to update object status", "object_id", id, "status", status, "error", err)
	}

	evType := EventDisconnected
	switch status {
	case model.StatusReleased:
		evType = EventReleased
	case model.StatusFailed:
		evType = EventFailed
	}
	e.broker.Publish(Event{Type: evType, ObjectID: id, Error: errMsg, Time: time.Now().UTC()})
	e.broker.Close(id)
}

// hostedObject wraps an object with the hook that reports its severing.
type hostedObject struct {
	kind.Object
	id     string
	engine *Engine
	// seq counts invocations. Only touched on the worker.
	seq int
}

// Sever runs on the worker during shutdown. The disconnection is reported on
// the owner goroutine when there is one, which serves its mailbox while the
// apartment shuts down. If the owner stops serving before the Shutdown
// context ends, the disconnection is recorded from the worker instead.
func (h *hostedObject) Sever() error {
	report := func() error {
		h.engine.disconnected(h.id)
		return nil
	}
	if h.engine.owner == nil {
		return report()
	}
	if err := h.engine.owner.Call(h.engine.severContext(), report); err != nil {
		_ = report()
		return fmt.Errorf("report disconnection of %s: %w", h.id, err)
	}
	return nil
}
