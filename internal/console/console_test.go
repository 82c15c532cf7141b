package console

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lanternops/lanternbot/internal/bot"
	"github.com/lanternops/lanternbot/internal/logger"
	"github.com/lanternops/lanternbot/internal/resource"
)

// cannedDoer serves fixed responses keyed by "METHOD path"
type cannedDoer struct {
	responses map[string]any
}

func (c *cannedDoer) reply(key string) (json.RawMessage, error) {
	if body, ok := c.responses[key]; ok {
		return json.Marshal(body)
	}
	return json.RawMessage(`{}`), nil
}

func (c *cannedDoer) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.reply("GET " + path)
}

func (c *cannedDoer) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.reply("POST " + path)
}

func (c *cannedDoer) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.reply("PUT " + path)
}

func (c *cannedDoer) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.reply("DELETE " + path)
}

func testModel(t *testing.T) *Model {
	t.Helper()

	log, err := logger.New(&logger.Config{Level: "error"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	log.SetOutput(io.Discard)

	doer := &cannedDoer{responses: map[string]any{
		"GET nodes": map[string]any{"nodes": []map[string]any{
			{"id": "n1", "name": "alpha"},
		}},
	}}
	reg := resource.NewRegistry(doer)
	helper := resource.NewHelper(doer, reg, "https://lantern.example.com")
	disp, err := bot.NewDispatcher(helper, log, bot.Options{
		BotName:      "lanternbot",
		AdminChannel: "lanternadmin",
	})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	return New(disp, "lanternbot", "lanternadmin")
}

func TestRunCommandDeliversReply(t *testing.T) {
	m := testModel(t)

	msg := m.runCommand("list nodes")()
	reply, ok := msg.(replyMsg)
	if !ok {
		t.Fatalf("expected replyMsg, got %T", msg)
	}
	if !strings.Contains(reply.text, "alpha") {
		t.Errorf("reply should list nodes, got %q", reply.text)
	}
}

func TestRunCommandRunsAsAdmin(t *testing.T) {
	m := testModel(t)

	// admin intents must not be refused locally
	msg := m.runCommand("approve ghost-node")()
	reply := msg.(replyMsg)
	if strings.Contains(reply.text, "must take place") {
		t.Errorf("console commands should carry admin privileges, got %q", reply.text)
	}
}

func TestEnterSubmitsCommand(t *testing.T) {
	m := testModel(t)
	m.textarea.SetValue("nodes")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model := updated.(Model)
	if !model.busy {
		t.Error("model should be busy after submitting")
	}
	if cmd == nil {
		t.Fatal("expected a command to run")
	}
	if len(model.history) != 1 || !model.history[0].fromUser {
		t.Errorf("history should record the operator line, got %+v", model.history)
	}
}

func TestEmptyInputIgnored(t *testing.T) {
	m := testModel(t)
	m.textarea.SetValue("   ")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model := updated.(Model)
	if model.busy || len(model.history) != 0 {
		t.Error("blank input should be ignored")
	}
}

func TestReplyAppendsHistory(t *testing.T) {
	m := testModel(t)
	m.busy = true
	m.history = append(m.history, entry{fromUser: true, text: "nodes"})

	updated, _ := m.Update(replyMsg{text: "> alpha"})
	model := updated.(Model)
	if model.busy {
		t.Error("reply should clear the busy flag")
	}
	if len(model.history) != 2 || model.history[1].fromUser {
		t.Errorf("reply should append a bot line, got %+v", model.history)
	}
}

func TestRenderHistory(t *testing.T) {
	m := testModel(t)
	m.history = []entry{
		{fromUser: true, text: "nodes"},
		{text: "> alpha"},
	}

	out := m.renderHistory()
	if !strings.Contains(out, "you:") {
		t.Errorf("missing operator prefix in %q", out)
	}
	if !strings.Contains(out, "lanternbot:") {
		t.Errorf("missing bot prefix in %q", out)
	}
}

func TestQuitOnCtrlC(t *testing.T) {
	m := testModel(t)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !updated.(Model).quitting {
		t.Error("ctrl+c should set quitting")
	}
	if cmd == nil {
		t.Error("ctrl+c should return tea.Quit")
	}
}
