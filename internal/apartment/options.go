package apartment

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultWakeCapacity bounds the number of undelivered wake signals.
	DefaultWakeCapacity = 10000

	// DefaultStopRetryInterval is the pause between attempts to post the quit
	// signal while the wake channel is full.
	DefaultStopRetryInterval = 100 * time.Millisecond
)

// options holds configuration for Start.
type options struct {
	name              string
	wakeCapacity      int
	stopRetryInterval time.Duration
	runtime           Runtime
	owner             *Mailbox
	logger            *slog.Logger
	fatal             func(error)
}

func defaultOptions() options {
	return options{
		name:              "apartment",
		wakeCapacity:      DefaultWakeCapacity,
		stopRetryInterval: DefaultStopRetryInterval,
		runtime:           NopRuntime{},
		logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		fatal: func(err error) {
			panic(err)
		},
	}
}

// Option configures an Apartment.
type Option func(*options) error

// WithName sets the name used in logs and metrics.
func WithName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("apartment: empty name")
		}
		o.name = name
		return nil
	}
}

// WithWakeCapacity sets how many wake signals may be pending at once. A
// submission that finds the wake channel full fails with ErrWakeQueueFull.
func WithWakeCapacity(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("apartment: wake capacity must be positive, got %d", n)
		}
		o.wakeCapacity = n
		return nil
	}
}

// WithStopRetryInterval sets the backoff between attempts to post the quit
// signal during shutdown.
func WithStopRetryInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("apartment: stop retry interval must be positive, got %s", d)
		}
		o.stopRetryInterval = d
		return nil
	}
}

// WithRuntime sets the per-context runtime that is initialized on the worker
// before it becomes ready and uninitialized during shutdown.
func WithRuntime(rt Runtime) Option {
	return func(o *options) error {
		if rt == nil {
			return fmt.Errorf("apartment: nil runtime")
		}
		o.runtime = rt
		return nil
	}
}

// WithOwner sets the mailbox of the goroutine that owns the apartment.
// Shutdown serves it while waiting for the worker.
func WithOwner(mb *Mailbox) Option {
	return func(o *options) error {
		o.owner = mb
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("apartment: nil logger")
		}
		o.logger = logger
		return nil
	}
}

// WithFatalHandler replaces the handler invoked on shutdown invariant
// violations. The default panics. The handler must not return normally in
// production use; if it does, Shutdown returns the violation as an error.
func WithFatalHandler(fn func(error)) Option {
	return func(o *options) error {
		if fn == nil {
			return fmt.Errorf("apartment: nil fatal handler")
		}
		o.fatal = fn
		return nil
	}
}
