package metrics

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollectorCommands(t *testing.T) {
	c := NewCollector()

	c.IncrementCommand("nodes")
	c.IncrementCommand("nodes")
	c.IncrementCommand("approve")
	c.IncrementCommandError("approve")

	commands := c.GetCommandsTotal()
	errors := c.GetCommandErrors()

	if commands["nodes"] != 2 {
		t.Errorf("Expected nodes=2, got %d", commands["nodes"])
	}
	if commands["approve"] != 1 {
		t.Errorf("Expected approve=1, got %d", commands["approve"])
	}
	if errors["approve"] != 1 {
		t.Errorf("Expected approve errors=1, got %d", errors["approve"])
	}
}

func TestCollectorAPITotals(t *testing.T) {
	c := NewCollector()

	c.IncrementAPIRequest()
	c.IncrementAPIRequest()
	c.IncrementAPIError()

	requests, apiErrors := c.GetAPITotals()
	if requests != 2 {
		t.Errorf("Expected requests=2, got %d", requests)
	}
	if apiErrors != 1 {
		t.Errorf("Expected errors=1, got %d", apiErrors)
	}
}

func TestWorkersBusyGauge(t *testing.T) {
	c := NewCollector()

	c.SetWorkersBusy(3)
	if c.GetWorkersBusy() != 3 {
		t.Errorf("Expected busy=3, got %d", c.GetWorkersBusy())
	}

	c.SetWorkersBusy(0)
	if c.GetWorkersBusy() != 0 {
		t.Errorf("Expected busy=0, got %d", c.GetWorkersBusy())
	}
}

func TestPrometheusFormat(t *testing.T) {
	c := NewCollector()

	c.IncrementCommand("nodes")
	c.IncrementCommand("nodes")
	c.IncrementAPIRequest()
	c.SetWorkersBusy(2)

	buf := &bytes.Buffer{}
	c.WritePrometheus(buf)
	output := buf.String()

	expectedLines := []string{
		"# HELP lanternbot_commands_total Commands handled by intent",
		"# TYPE lanternbot_commands_total counter",
		`lanternbot_commands_total{intent="nodes"} 2`,
		"# TYPE lanternbot_api_requests_total counter",
		"lanternbot_api_requests_total 1",
		"lanternbot_api_errors_total 0",
		"# TYPE lanternbot_workers_busy gauge",
		"lanternbot_workers_busy 2",
	}
	for _, line := range expectedLines {
		if !strings.Contains(output, line) {
			t.Errorf("Missing expected line: %s\nGot:\n%s", line, output)
		}
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.IncrementCommand("help")

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `lanternbot_commands_total{intent="help"} 1`) {
		t.Errorf("missing command counter in body:\n%s", rec.Body.String())
	}
}

func TestCollectorConcurrency(t *testing.T) {
	c := NewCollector()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.IncrementCommand("nodes")
				c.IncrementAPIRequest()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if got := c.GetCommandsTotal()["nodes"]; got != 1000 {
		t.Errorf("Expected nodes=1000, got %d", got)
	}
	requests, _ := c.GetAPITotals()
	if requests != 1000 {
		t.Errorf("Expected requests=1000, got %d", requests)
	}
}
