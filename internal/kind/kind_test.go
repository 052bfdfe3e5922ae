package kind_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/seantiz/apartment/internal/kind"
)

// stubKind is a minimal Kind for registry tests.
type stubKind struct {
	name string
}

func (s stubKind) New() (kind.Object, error) { return nil, errors.New("stub") }

func (s stubKind) Describe() kind.Info {
	return kind.Info{Name: s.name}
}

func TestRegistryRegisterAndList(t *testing.T) {
	reg := kind.NewRegistry()
	reg.Register(stubKind{name: "zeta"})
	reg.Register(stubKind{name: "alpha"})

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d kinds, want 2", len(list))
	}
	if list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("List() order = [%s %s], want [alpha zeta]", list[0].Name, list[1].Name)
	}
}

func TestRegistryResolveNotRegistered(t *testing.T) {
	reg := kind.NewRegistry()

	_, err := reg.Resolve("missing")
	if !errors.Is(err, kind.ErrUnknownKind) {
		t.Errorf("Resolve error = %v, want ErrUnknownKind", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := kind.NewDefaultRegistry()
	for _, name := range []string{"counter", "register"} {
		if _, err := reg.Resolve(name); err != nil {
			t.Errorf("Resolve(%q): %v", name, err)
		}
	}
}

func invoke(t *testing.T, obj kind.Object, op, args string) map[string]any {
	t.Helper()
	out, err := obj.Invoke(op, json.RawMessage(args))
	if err != nil {
		t.Fatalf("Invoke(%q, %s): %v", op, args, err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("decode result %s: %v", out, err)
	}
	return m
}

func TestCounterOps(t *testing.T) {
	obj, err := kind.Counter{}.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	invoke(t, obj, "increment", "")
	invoke(t, obj, "increment", "")
	if got := invoke(t, obj, "add", `{"delta":5}`)["value"]; got != 7.0 {
		t.Errorf("value after add = %v, want 7", got)
	}
	if got := invoke(t, obj, "reset", "")["value"]; got != 0.0 {
		t.Errorf("value after reset = %v, want 0", got)
	}
	if got := invoke(t, obj, "get", "")["value"]; got != 0.0 {
		t.Errorf("value = %v, want 0", got)
	}
}

func TestCounterRejectsBadInput(t *testing.T) {
	obj, _ := kind.Counter{}.New()

	if _, err := obj.Invoke("add", json.RawMessage(`{}`)); !errors.Is(err, kind.ErrBadArgs) {
		t.Errorf("add without delta error = %v, want ErrBadArgs", err)
	}
	if _, err := obj.Invoke("add", json.RawMessage(`not json`)); !errors.Is(err, kind.ErrBadArgs) {
		t.Errorf("add with malformed args error = %v, want ErrBadArgs", err)
	}
	if _, err := obj.Invoke("explode", nil); !errors.Is(err, kind.ErrUnknownOp) {
		t.Errorf("unknown op error = %v, want ErrUnknownOp", err)
	}
}

func TestRegisterOps(t *testing.T) {
	obj, _ := kind.Register{}.New()

	invoke(t, obj, "set", `{"key":"b","value":"2"}`)
	invoke(t, obj, "set", `{"key":"a","value":"1"}`)

	got := invoke(t, obj, "get", `{"key":"a"}`)
	if got["value"] != "1" || got["found"] != true {
		t.Errorf("get a = %v, want value 1 found", got)
	}

	keys := invoke(t, obj, "keys", "")["keys"].([]any)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("keys = %v, want [a b]", keys)
	}

	if got := invoke(t, obj, "delete", `{"key":"a"}`); got["found"] != true {
		t.Errorf("delete a = %v, want found", got)
	}
	if got := invoke(t, obj, "get", `{"key":"a"}`); got["found"] != false {
		t.Errorf("get after delete = %v, want not found", got)
	}
	if _, err := obj.Invoke("set", json.RawMessage(`{"value":"x"}`)); !errors.Is(err, kind.ErrBadArgs) {
		t.Errorf("set without key error = %v, want ErrBadArgs", err)
	}
}
