package kind

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownKind is returned when resolving a name nobody registered.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrUnknownOp is returned by objects for operations they do not support.
	ErrUnknownOp = errors.New("unknown operation")

	// ErrBadArgs is returned when operation arguments cannot be decoded.
	ErrBadArgs = errors.New("invalid arguments")
)

// Object is a hosted object. Invoke performs one named operation.
type Object interface {
	Invoke(op string, args json.RawMessage) (json.RawMessage, error)
}

// Kind constructs objects of one type.
type Kind interface {
	New() (Object, error)
	Describe() Info
}

// Info describes a kind for listing.
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Ops         []string `json:"ops"`
}

// Registry holds the kinds a host can construct, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry creates an empty kind registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]Kind),
	}
}

// NewDefaultRegistry returns a registry holding the built-in kinds.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Counter{})
	r.Register(Register{})
	return r
}

// Register adds k under the name it describes, replacing any earlier kind of
// the same name.
func (r *Registry) Register(k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[k.Describe().Name] = k
}

// Resolve returns the kind registered under name.
func (r *Registry) Resolve(name string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// List returns information about all registered kinds, sorted by name
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.kinds))
	for _, k := range r.kinds {
		infos = append(infos, k.Describe())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// decodeArgs unmarshals args into v. Empty args leave v untouched.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return nil
}

func encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return b, nil
}
