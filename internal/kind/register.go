package kind

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Register is the kind of string key/value register objects.
type Register struct{}

func (Register) New() (Object, error) {
	return &register{values: make(map[string]string)}, nil
}

func (Register) Describe() Info {
	return Info{
		Name:        "register",
		Description: "string key/value register",
		Ops:         []string{"delete", "get", "keys", "set"},
	}
}

type register struct {
	values map[string]string
}

type registerArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type registerEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Found bool   `json:"found"`
}

func (r *register) Invoke(op string, args json.RawMessage) (json.RawMessage, error) {
	var in registerArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	switch op {
	case "set":
		if in.Key == "" {
			return nil, fmt.Errorf("%w: key is required", ErrBadArgs)
		}
		r.values[in.Key] = in.Value
		return encode(registerEntry{Key: in.Key, Value: in.Value, Found: true})
	case "get":
		v, ok := r.values[in.Key]
		return encode(registerEntry{Key: in.Key, Value: v, Found: ok})
	case "delete":
		v, ok := r.values[in.Key]
		delete(r.values, in.Key)
		return encode(registerEntry{Key: in.Key, Value: v, Found: ok})
	case "keys":
		keys := make([]string, 0, len(r.values))
		for k := range r.values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return encode(struct {
			Keys []string `json:"keys"`
		}{Keys: keys})
	default:
		return nil, fmt.Errorf("%w: register has no %q", ErrUnknownOp, op)
	}
}
