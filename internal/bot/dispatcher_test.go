package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/lanternops/lanternbot/internal/logger"
	"github.com/lanternops/lanternbot/internal/resource"
	"github.com/lanternops/lanternbot/pkg/types"
)

// fakeDoer serves canned responses and records every backend call
type fakeDoer struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]any
}

func (f *fakeDoer) record(method, path string, params url.Values) string {
	key := method + " " + path
	if len(params) > 0 {
		key += "?" + params.Encode()
	}
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	return key
}

func (f *fakeDoer) respond(key, bare string) (json.RawMessage, error) {
	if body, ok := f.responses[key]; ok {
		return json.Marshal(body)
	}
	if body, ok := f.responses[bare]; ok {
		return json.Marshal(body)
	}
	return nil, fmt.Errorf("no canned response for %s", key)
}

func (f *fakeDoer) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	key := f.record("GET", path, params)
	return f.respond(key, "GET "+path)
}

func (f *fakeDoer) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	key := f.record("POST", path, nil)
	return f.respond(key, key)
}

func (f *fakeDoer) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	key := f.record("PUT", path, nil)
	return f.respond(key, key)
}

func (f *fakeDoer) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	key := f.record("DELETE", path, nil)
	return f.respond(key, key)
}

func (f *fakeDoer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	log.SetOutput(io.Discard)
	return log
}

func testDispatcher(t *testing.T, doer *fakeDoer) *Dispatcher {
	t.Helper()
	reg := resource.NewRegistry(doer)
	helper := resource.NewHelper(doer, reg, "https://lantern.example.com")
	d, err := NewDispatcher(helper, testLogger(t), Options{
		BotName:      "lanternbot",
		AdminChannel: "lanternadmin",
	})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	return d
}

func command(intent, scope, channelName string) types.Command {
	return types.Command{
		ID:          "test-cmd",
		Intent:      intent,
		Scope:       scope,
		ChannelID:   "C1",
		ChannelName: channelName,
		UserID:      "U1",
		Username:    "alice",
	}
}

func TestBuiltinTableHasNoCollisions(t *testing.T) {
	testDispatcher(t, &fakeDoer{responses: map[string]any{}})
}

func TestAliasCollisionDetected(t *testing.T) {
	intents := []intent{
		{name: "one", aliases: []string{"go", "run"}},
		{name: "two", aliases: []string{"walk", "go"}},
	}
	if _, err := buildIntentTable(intents); err == nil {
		t.Fatal("expected collision error for duplicate alias")
	} else if !strings.Contains(err.Error(), `"go"`) {
		t.Errorf("error should name the colliding alias, got %v", err)
	}
}

func TestAdminIntentRefusedOutsideAdminChannel(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{}}
	d := testDispatcher(t, doer)

	for _, alias := range []string{"approve", "okay", "delete", "kill"} {
		reply, isHelp := d.Dispatch(context.Background(), command(alias, "node-a", "general"))
		if isHelp {
			t.Errorf("%s: refusal must not be help text", alias)
		}
		if reply != "This operation must take place at `lanternadmin` channel." {
			t.Errorf("%s: unexpected refusal %q", alias, reply)
		}
	}
	if doer.callCount() != 0 {
		t.Errorf("refused intents must make no backend calls, got %d", doer.callCount())
	}
}

func TestMutatingQueryRefusedOutsideAdminChannel(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{}}
	d := testDispatcher(t, doer)

	reply, isHelp := d.Dispatch(context.Background(), command("update", "node node-a", "general"))
	if isHelp {
		t.Error("refusal must not be help text")
	}
	want := "Actions other than `get`, `find` and `list` must take place at `lanternadmin` channel."
	if reply != want {
		t.Errorf("unexpected refusal %q", reply)
	}
	if doer.callCount() != 0 {
		t.Errorf("refused query must make no backend calls, got %d", doer.callCount())
	}
}

func TestApproveBatchReportsInInputOrder(t *testing.T) {
	registered := []map[string]any{
		{"id": "n1", "name": "a", "approved": 0},
		{"id": "n2", "name": "b", "approved": 0},
		{"id": "n3", "name": "c", "approved": 0},
	}
	doer := &fakeDoer{responses: map[string]any{
		"GET nodes?config%3Astatus=Registered": map[string]any{"nodes": registered},
		"PUT nodes/n1":                         map[string]any{"node": map[string]any{"id": "n1"}},
		// n2 has no canned response, so approving b fails
		"PUT nodes/n3": map[string]any{"node": map[string]any{"id": "n3"}},
	}}
	d := testDispatcher(t, doer)

	reply, _ := d.Dispatch(context.Background(), command("approve", "a b c", "lanternadmin"))

	lines := strings.Split(strings.TrimLeft(reply, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 result lines, got %d:\n%s", len(lines), reply)
	}
	for i, name := range []string{"a", "b", "c"} {
		if !strings.Contains(lines[i], "> "+name+" ") {
			t.Errorf("line %d should report node %s, got %q", i, name, lines[i])
		}
	}
	if !strings.Contains(lines[0], "Success") || !strings.Contains(lines[2], "Success") {
		t.Errorf("a and c should succeed:\n%s", reply)
	}
	if !strings.Contains(lines[1], "Error") {
		t.Errorf("b should fail:\n%s", reply)
	}
}

func TestPendingNewOnlyIdempotent(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{
		"GET nodes?config%3Astatus=Registered": map[string]any{"nodes": []map[string]any{
			{"id": "n1", "name": "node-a", "approved": 0},
		}},
	}}
	d := testDispatcher(t, doer)
	ctx := context.Background()

	first, err := d.CheckPending(ctx, true)
	if err != nil {
		t.Fatalf("first check failed: %v", err)
	}
	if !strings.Contains(first, "node-a") {
		t.Errorf("first check should announce node-a, got %q", first)
	}

	second, err := d.CheckPending(ctx, true)
	if err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if second != "" {
		t.Errorf("unchanged set with newOnly must yield no output, got %q", second)
	}

	// a plain pending command still reports the full set
	reply, _ := d.Dispatch(ctx, command("pending", "", "general"))
	if !strings.Contains(reply, "node-a") {
		t.Errorf("pending command should list the full set, got %q", reply)
	}
}

func TestQueryListNodes(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{
		"GET nodes": map[string]any{"nodes": []map[string]any{
			{"id": "n2", "name": "zulu"},
			{"id": "n1", "name": "alpha"},
		}},
	}}
	d := testDispatcher(t, doer)

	reply, isHelp := d.Dispatch(context.Background(), command("list", "nodes", "general"))
	if isHelp {
		t.Fatalf("list nodes should not degrade to help:\n%s", reply)
	}
	if reply != "\n> alpha\n> zulu" {
		t.Errorf("unexpected list rendering %q", reply)
	}
	if len(doer.calls) != 1 || doer.calls[0] != "GET nodes" {
		t.Errorf("expected a single collection fetch, got %v", doer.calls)
	}
}

func TestQueryFindWithParent(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{
		"GET nodes/smartgroups": map[string]any{"smartgroups": []map[string]any{
			{"id": "sg1", "name": "ops", "query": "{}"},
		}},
		"GET nodes": map[string]any{"nodes": []map[string]any{
			{"id": "n1", "name": "my-node-1"},
		}},
		"GET nodes/n1": map[string]any{"node": map[string]any{"id": "n1", "name": "my-node-1"}},
	}}
	d := testDispatcher(t, doer)

	reply, isHelp := d.Dispatch(context.Background(),
		command("find", "node my-node-1 from smartgroup ops", "general"))
	if isHelp {
		t.Fatalf("query should not degrade to help:\n%s", reply)
	}
	if !strings.Contains(reply, "my-node-1") {
		t.Errorf("reply should dump the found node, got %q", reply)
	}

	// the smartgroup's saved filter scopes the name resolution, then the
	// resolved id is fetched directly
	want := []string{
		"GET nodes/smartgroups",
		"GET nodes?json=" + url.QueryEscape("{}"),
		"GET nodes/n1",
	}
	if len(doer.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, doer.calls)
	}
	for i := range want {
		if doer.calls[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], doer.calls[i])
		}
	}
}

func TestQuerySmartGroupFilter(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{
		"GET nodes/smartgroups": map[string]any{"smartgroups": []map[string]any{
			{"id": "sg1", "name": "ops", "query": `{"status":"up"}`},
		}},
		"GET nodes?json=" + url.QueryEscape(`{"status":"up"}`): map[string]any{
			"nodes": []map[string]any{{"id": "n1", "name": "alpha"}},
		},
	}}
	d := testDispatcher(t, doer)

	reply, isHelp := d.Dispatch(context.Background(), command("list", "nodes in ops", "general"))
	if isHelp {
		t.Fatalf("filtered list should not degrade to help:\n%s", reply)
	}
	if !strings.Contains(reply, "alpha") {
		t.Errorf("reply should list the filtered nodes, got %q", reply)
	}
}

func TestUnmatchedCommandYieldsHelp(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{}}
	d := testDispatcher(t, doer)

	for _, text := range []string{"frobnicate", "list", "get"} {
		intentWord, scope := splitCommand(text)
		reply, isHelp := d.Dispatch(context.Background(), command(intentWord, scope, "general"))
		if !isHelp {
			t.Errorf("%q should degrade to help, got %q", text, reply)
		}
	}
	if doer.callCount() != 0 {
		t.Errorf("unparseable commands must make no backend calls, got %v", doer.calls)
	}
}

func TestQueryBackendFailureDegradesToHelp(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{}}
	d := testDispatcher(t, doer)

	_, isHelp := d.Dispatch(context.Background(), command("list", "nodes", "general"))
	if !isHelp {
		t.Error("backend failure during a query should degrade to help")
	}
}

func TestRestrictedCollectionMakesNoCall(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{}}
	d := testDispatcher(t, doer)

	// ports are read-only, so the mutation is rejected before any request
	// goes out, id resolution included
	reply, isHelp := d.Dispatch(context.Background(), command("update", "port rack1", "lanternadmin"))
	if !isHelp {
		t.Errorf("unsupported operation should degrade to help, got %q", reply)
	}
	if doer.callCount() != 0 {
		t.Errorf("unsupported operation must make no backend calls, got %v", doer.calls)
	}
}

func TestIntentTokenLinkMarkupStripped(t *testing.T) {
	d := testDispatcher(t, &fakeDoer{responses: map[string]any{}})

	// the workspace wraps URL-looking words in <url|label> markup, which
	// must not hide a matching intent word
	reply, _ := d.Dispatch(context.Background(),
		command("<http://help.example.com|help>", "", "general"))
	if reply != d.helpText() {
		t.Errorf("link-wrapped intent token should match the help intent, got %q", reply)
	}
}

func TestQueryUnscopableParentDegradesToHelp(t *testing.T) {
	doer := &fakeDoer{responses: map[string]any{}}
	d := testDispatcher(t, doer)

	// users are a root collection, so only a smartgroup can scope them
	reply, isHelp := d.Dispatch(context.Background(), command("list", "users from node n1", "general"))
	if !isHelp {
		t.Errorf("unscopable parent should degrade to help, got %q", reply)
	}
	if doer.callCount() != 0 {
		t.Errorf("unscopable parent must make no backend calls, got %v", doer.calls)
	}
}

func TestHelpListsEveryIntent(t *testing.T) {
	d := testDispatcher(t, &fakeDoer{responses: map[string]any{}})
	help := d.helpText()

	for _, it := range d.ordered {
		if !strings.Contains(help, it.usage) {
			t.Errorf("help text missing usage for %s", it.name)
		}
	}
	if !strings.Contains(help, "@lanternbot list nodes") {
		t.Error("help text missing query examples")
	}
}
