package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"testing"
)

// mutableDoer extends fakeDoer with per-path errors for batch tests
type mutableDoer struct {
	fakeDoer
	failPut    map[string]error
	failDelete map[string]error
}

func (m *mutableDoer) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	if err, ok := m.failPut[path]; ok {
		m.calls = append(m.calls, "PUT "+path)
		return nil, err
	}
	return m.fakeDoer.Put(ctx, path, body)
}

func (m *mutableDoer) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	if err, ok := m.failDelete[path]; ok {
		m.calls = append(m.calls, "DELETE "+path)
		return nil, err
	}
	return m.fakeDoer.Delete(ctx, path)
}

const registeredNodes = `{"nodes":[
	{"id":"nodes-1","name":"a","approved":0,"tag_list":{"tags":[]}},
	{"id":"nodes-2","name":"b","approved":0,"tag_list":{"tags":[]}},
	{"id":"nodes-3","name":"c","approved":0,"tag_list":{"tags":[]}}
]}`

func newTestHelper(d Doer) *Helper {
	return NewHelper(d, NewRegistry(d), "https://lantern.example.com")
}

func TestPending(t *testing.T) {
	f := &fakeDoer{responses: map[string]string{
		"GET nodes?config%3Astatus=Registered": `{"nodes":[
			{"id":"nodes-1","name":"new1","approved":0},
			{"id":"nodes-2","name":"done","approved":1},
			{"id":"nodes-3","name":"new2","approved":0}
		]}`,
	}}
	h := newTestHelper(f)

	pending, err := h.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	want := map[string]string{"new1": "nodes-1", "new2": "nodes-3"}
	if !reflect.DeepEqual(pending, want) {
		t.Errorf("Pending = %v, want %v", pending, want)
	}
}

func TestEnrolledSorted(t *testing.T) {
	f := &fakeDoer{responses: map[string]string{
		"GET nodes?config%3Astatus=Enrolled": `{"nodes":[
			{"id":"nodes-2","name":"Zulu"},
			{"id":"nodes-1","name":"alpha"},
			{"id":"nodes-3","name":"Mike"}
		]}`,
	}}
	h := newTestHelper(f)

	names, err := h.Enrolled(context.Background())
	if err != nil {
		t.Fatalf("Enrolled: %v", err)
	}
	want := []string{"alpha", "Mike", "Zulu"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Enrolled = %v, want %v (case-insensitive order)", names, want)
	}
}

func TestApproveNodesPartialBatch(t *testing.T) {
	m := &mutableDoer{
		fakeDoer: fakeDoer{responses: map[string]string{
			"GET nodes?config%3Astatus=Registered": registeredNodes,
		}},
		failPut: map[string]error{
			"nodes/nodes-2": errors.New("boom"),
		},
	}
	h := newTestHelper(m)

	approved, errs := h.ApproveNodes(context.Background(), []string{"a", "b", "c"})

	if !reflect.DeepEqual(approved, []string{"a", "c"}) {
		t.Errorf("approved = %v, want [a c]", approved)
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want exactly one", errs)
	}
	// The failure of b must not stop c: all three updates attempted
	puts := 0
	for _, call := range m.calls {
		if call == "PUT nodes/nodes-1" || call == "PUT nodes/nodes-2" || call == "PUT nodes/nodes-3" {
			puts++
		}
	}
	if puts != 3 {
		t.Errorf("update calls = %d, want 3 (no early abort)", puts)
	}
}

func TestDeleteNodesPartialBatch(t *testing.T) {
	m := &mutableDoer{
		fakeDoer: fakeDoer{responses: map[string]string{
			"GET nodes": registeredNodes,
		}},
		failDelete: map[string]error{
			"nodes/nodes-2": errors.New("boom"),
		},
	}
	h := newTestHelper(m)

	deleted, errs := h.DeleteNodes(context.Background(), []string{"a", "b", "c"})
	if !reflect.DeepEqual(deleted, []string{"a", "c"}) {
		t.Errorf("deleted = %v, want [a c]", deleted)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want exactly one", errs)
	}
}

func TestSummary(t *testing.T) {
	f := &fakeDoer{responses: map[string]string{
		"GET stats/nodes/connection_summary": `{"connectionSummary":[
			{"status":"connected","count":3},
			{"status":"pending","count":"1"},
			{"status":"disconnected","count":2}
		]}`,
	}}
	h := newTestHelper(f)

	s, err := h.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Connected != 3 || s.Pending != 1 || s.Disconnected != 2 {
		t.Errorf("Summary = %+v", s)
	}
}

func TestPortsMatchCaseInsensitive(t *testing.T) {
	f := &fakeDoer{responses: map[string]string{
		"GET nodes?port%3Alabel=router1": `{"nodes":[
			{"id":"nodes-1","name":"a","ports":[
				{"label":"Router1","mode":"consoleServer","proxied_ssh_url":"ssh://lhbot@gw:2222"},
				{"label":"other","mode":"consoleServer"}
			]}
		]}`,
	}}
	h := newTestHelper(f)

	ports, err := h.Ports(context.Background(), "router1")
	if err != nil {
		t.Fatalf("Ports: %v", err)
	}
	if len(ports) != 1 || ports[0].Label != "Router1" {
		t.Errorf("ports = %+v", ports)
	}
}

func TestObjectID(t *testing.T) {
	f := &fakeDoer{responses: map[string]string{
		"GET nodes": `{"nodes":[{"id":"nodes-5","name":"web01"}]}`,
	}}
	h := newTestHelper(f)

	id, err := h.ObjectID(context.Background(), "nodes", "web01", "", "")
	if err != nil {
		t.Fatalf("ObjectID: %v", err)
	}
	if id != "nodes-5" {
		t.Errorf("id = %q, want nodes-5", id)
	}

	if _, err := h.ObjectID(context.Background(), "nodes", "nope", "", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestObjectIDWithParent(t *testing.T) {
	f := &fakeDoer{responses: map[string]string{
		"GET nodes":             `{"nodes":[{"id":"nodes-5","name":"web01"}]}`,
		"GET nodes/nodes-5/tags": `{"tags":[{"id":"tags-9","name":"prod"}]}`,
	}}
	h := newTestHelper(f)

	id, err := h.ObjectID(context.Background(), "tags", "prod", "nodes", "web01")
	if err != nil {
		t.Fatalf("ObjectID: %v", err)
	}
	if id != "tags-9" {
		t.Errorf("id = %q, want tags-9", id)
	}
}

func TestSmartGroupNodes(t *testing.T) {
	query := `{"port":{"label":"db"}}`
	f := &fakeDoer{responses: map[string]string{
		"GET nodes/smartgroups": fmt.Sprintf(`{"smartgroups":[{"id":"sg-1","name":"Ops","query":%q}]}`, query),
		"GET nodes?json=" + url.QueryEscape(query): `{"nodes":[{"id":"nodes-2","name":"db02"},{"id":"nodes-1","name":"db01"}]}`,
	}}
	h := newTestHelper(f)

	// Name match is case-insensitive
	names, err := h.SmartGroupNodes(context.Background(), "ops")
	if err != nil {
		t.Fatalf("SmartGroupNodes: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"db01", "db02"}) {
		t.Errorf("names = %v", names)
	}
}

func TestIsEvaluation(t *testing.T) {
	f := &fakeDoer{responses: map[string]string{
		"GET system/licenses": `{"licenses":[{"id":"lic-1","raw":""}]}`,
	}}
	h := newTestHelper(f)
	if !h.IsEvaluation(context.Background()) {
		t.Error("empty raw licenses should mean evaluation mode")
	}

	f.responses["GET system/licenses"] = `{"licenses":[{"id":"lic-1","raw":"ABCDEF"}]}`
	if h.IsEvaluation(context.Background()) {
		t.Error("a real license should clear evaluation mode")
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		sec  int64
		want string
	}{
		{30, "30 seconds"},
		{90, "1 minutes"},
		{7200, "2 hours"},
		{172800, "2 days"},
	}
	for _, tt := range tests {
		if got := FormatSeconds(tt.sec); got != tt.want {
			t.Errorf("FormatSeconds(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}
