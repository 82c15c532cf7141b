package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

// fakeDoer records every request and serves canned bodies by method+path
type fakeDoer struct {
	calls     []string
	responses map[string]string
}

func (f *fakeDoer) serve(key string) (json.RawMessage, error) {
	f.calls = append(f.calls, key)
	if body, ok := f.responses[key]; ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeDoer) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	key := "GET " + path
	if len(params) > 0 {
		key += "?" + params.Encode()
	}
	return f.serve(key)
}

func (f *fakeDoer) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return f.serve("POST " + path)
}

func (f *fakeDoer) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return f.serve("PUT " + path)
}

func (f *fakeDoer) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return f.serve("DELETE " + path)
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		word string
		want Action
		ok   bool
	}{
		{"get", ActionGet, true},
		{"LIST", ActionList, true},
		{"find", ActionFind, true},
		{"create", ActionCreate, true},
		{"update", ActionUpdate, true},
		{"set", ActionUpdate, true},
		{"delete", ActionDelete, true},
		{"destroy", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseAction(tt.word)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseAction(%q) = (%q, %v), want (%q, %v)", tt.word, got, ok, tt.want, tt.ok)
		}
	}
}

func TestActionMutating(t *testing.T) {
	for _, a := range []Action{ActionCreate, ActionUpdate, ActionDelete} {
		if !a.Mutating() {
			t.Errorf("%s should be mutating", a)
		}
	}
	for _, a := range []Action{ActionGet, ActionList, ActionFind} {
		if a.Mutating() {
			t.Errorf("%s should not be mutating", a)
		}
	}
}

func TestUnsupportedOperationMakesNoCall(t *testing.T) {
	f := &fakeDoer{}
	reg := NewRegistry(f)

	// Ports are provisioned hardware records: create and delete are refused
	if _, err := reg.Create(context.Background(), "ports", map[string]any{}, ""); !errors.Is(err, ErrUnsupported) {
		t.Errorf("create ports: err = %v, want ErrUnsupported", err)
	}
	if _, err := reg.Delete(context.Background(), "ports", "ports-1", ""); !errors.Is(err, ErrUnsupported) {
		t.Errorf("delete ports: err = %v, want ErrUnsupported", err)
	}
	if _, err := reg.Update(context.Background(), "entitlements", "x", nil, ""); !errors.Is(err, ErrUnsupported) {
		t.Errorf("update entitlements: err = %v, want ErrUnsupported", err)
	}

	if len(f.calls) != 0 {
		t.Errorf("refused operations must not reach the network, got %v", f.calls)
	}
}

func TestUnknownType(t *testing.T) {
	reg := NewRegistry(&fakeDoer{})
	if _, err := reg.List(context.Background(), "starships", nil, ""); !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v, want ErrUnknownType", err)
	}
}

func TestPathTemplates(t *testing.T) {
	f := &fakeDoer{}
	reg := NewRegistry(f)
	ctx := context.Background()

	reg.List(ctx, "nodes", nil, "")
	reg.Find(ctx, "nodes", "nodes-7", "")
	reg.List(ctx, "smartgroups", nil, "")
	reg.List(ctx, "tags", nil, "nodes-7")
	reg.Delete(ctx, "smartgroups", "sg-2", "")

	want := []string{
		"GET nodes",
		"GET nodes/nodes-7",
		"GET nodes/smartgroups",
		"GET nodes/nodes-7/tags",
		"DELETE nodes/smartgroups/sg-2",
	}
	if fmt.Sprint(f.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", f.calls, want)
	}
}

func TestNestedCollectionRequiresParent(t *testing.T) {
	f := &fakeDoer{}
	reg := NewRegistry(f)

	if _, err := reg.List(context.Background(), "tags", nil, ""); !errors.Is(err, ErrParentRequired) {
		t.Errorf("err = %v, want ErrParentRequired", err)
	}
	if len(f.calls) != 0 {
		t.Error("parentless nested access must not reach the network")
	}
}

func TestSingletons(t *testing.T) {
	f := &fakeDoer{responses: map[string]string{
		"GET system/hostname": `{"hostname":{"hostname":"lantern"}}`,
	}}
	reg := NewRegistry(f)
	ctx := context.Background()

	raw, err := reg.GetSingleton(ctx, "hostname")
	if err != nil {
		t.Fatalf("GetSingleton: %v", err)
	}
	if string(raw) == "" {
		t.Error("empty singleton body")
	}

	if _, err := reg.UpdateSingleton(ctx, "hostname", map[string]any{}); err != nil {
		t.Errorf("UpdateSingleton hostname: %v", err)
	}
	if _, err := reg.UpdateSingleton(ctx, "version", nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("version is read-only, err = %v", err)
	}
	if _, err := reg.GetSingleton(ctx, "flux_capacitor"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v, want ErrUnknownType", err)
	}
}
