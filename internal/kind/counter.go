package kind

import (
	"encoding/json"
	"fmt"
)

// Counter is the kind of integer counter objects.
type Counter struct{}

func (Counter) New() (Object, error) {
	return &counter{}, nil
}

func (Counter) Describe() Info {
	return Info{
		Name:        "counter",
		Description: "integer counter",
		Ops:         []string{"add", "get", "increment", "reset"},
	}
}

type counter struct {
	value int64
}

type counterValue struct {
	Value int64 `json:"value"`
}

func (c *counter) Invoke(op string, args json.RawMessage) (json.RawMessage, error) {
	switch op {
	case "increment":
		c.value++
	case "add":
		var in struct {
			Delta *int64 `json:"delta"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Delta == nil {
			return nil, fmt.Errorf("%w: delta is required", ErrBadArgs)
		}
		c.value += *in.Delta
	case "get":
	case "reset":
		c.value = 0
	default:
		return nil, fmt.Errorf("%w: counter has no %q", ErrUnknownOp, op)
	}
	return encode(counterValue{Value: c.value})
}
