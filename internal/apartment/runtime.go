package apartment

// Runtime is per-context state that a hosting layer needs on the worker,
// initialized before the apartment becomes ready and released during
// shutdown after every guarded resource has been severed. Both methods run on
// the worker goroutine.
type Runtime interface {
	Init() error
	Uninit()
}

// NopRuntime is a Runtime with no per-context state.
type NopRuntime struct{}

func (NopRuntime) Init() error { return nil }
func (NopRuntime) Uninit()     {}

// RuntimeFuncs adapts a pair of functions to Runtime. Nil fields are no-ops.
type RuntimeFuncs struct {
	InitFunc   func() error
	UninitFunc func()
}

func (r RuntimeFuncs) Init() error {
	if r.InitFunc == nil {
		return nil
	}
	return r.InitFunc()
}

func (r RuntimeFuncs) Uninit() {
	if r.UninitFunc != nil {
		r.UninitFunc()
	}
}
