// Package metrics counts what the bot does: commands by intent, appliance
// API requests, and failures. The counters are exposed in Prometheus text
// format on an optional HTTP endpoint.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// Collector holds all metrics
type Collector struct {
	mu            sync.RWMutex
	commandsTotal map[string]*atomic.Int64 // by intent
	commandErrors map[string]*atomic.Int64 // by intent
	apiRequests   atomic.Int64
	apiErrors     atomic.Int64
	workersBusy   atomic.Int64
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		commandsTotal: make(map[string]*atomic.Int64),
		commandErrors: make(map[string]*atomic.Int64),
	}
}

func counterFor(mu *sync.RWMutex, m map[string]*atomic.Int64, key string) *atomic.Int64 {
	mu.Lock()
	defer mu.Unlock()
	counter, ok := m[key]
	if !ok {
		counter = &atomic.Int64{}
		m[key] = counter
	}
	return counter
}

// IncrementCommand counts one handled command for an intent
func (c *Collector) IncrementCommand(intent string) {
	counterFor(&c.mu, c.commandsTotal, intent).Add(1)
}

// IncrementCommandError counts one failed command for an intent
func (c *Collector) IncrementCommandError(intent string) {
	counterFor(&c.mu, c.commandErrors, intent).Add(1)
}

// IncrementAPIRequest counts one appliance API request
func (c *Collector) IncrementAPIRequest() {
	c.apiRequests.Add(1)
}

// IncrementAPIError counts one failed appliance API request
func (c *Collector) IncrementAPIError() {
	c.apiErrors.Add(1)
}

// SetWorkersBusy records how many command workers are running
func (c *Collector) SetWorkersBusy(n int) {
	c.workersBusy.Store(int64(n))
}

// GetCommandsTotal returns command counts by intent
func (c *Collector) GetCommandsTotal() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]int64)
	for intent, counter := range c.commandsTotal {
		result[intent] = counter.Load()
	}
	return result
}

// GetCommandErrors returns command error counts by intent
func (c *Collector) GetCommandErrors() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]int64)
	for intent, counter := range c.commandErrors {
		result[intent] = counter.Load()
	}
	return result
}

// GetAPITotals returns appliance request and error counts
func (c *Collector) GetAPITotals() (requests, errors int64) {
	return c.apiRequests.Load(), c.apiErrors.Load()
}

// GetWorkersBusy returns the busy-worker gauge
func (c *Collector) GetWorkersBusy() int64 {
	return c.workersBusy.Load()
}

// WritePrometheus writes all metrics in Prometheus text format
func (c *Collector) WritePrometheus(w io.Writer) {
	fmt.Fprintln(w, "# HELP lanternbot_commands_total Commands handled by intent")
	fmt.Fprintln(w, "# TYPE lanternbot_commands_total counter")
	commands := c.GetCommandsTotal()
	for _, intent := range sortedKeys(commands) {
		fmt.Fprintf(w, "lanternbot_commands_total{intent=%q} %d\n", intent, commands[intent])
	}

	fmt.Fprintln(w)

	fmt.Fprintln(w, "# HELP lanternbot_command_errors_total Failed commands by intent")
	fmt.Fprintln(w, "# TYPE lanternbot_command_errors_total counter")
	cmdErrors := c.GetCommandErrors()
	for _, intent := range sortedKeys(cmdErrors) {
		fmt.Fprintf(w, "lanternbot_command_errors_total{intent=%q} %d\n", intent, cmdErrors[intent])
	}

	fmt.Fprintln(w)

	requests, apiErrors := c.GetAPITotals()
	fmt.Fprintln(w, "# HELP lanternbot_api_requests_total Appliance API requests")
	fmt.Fprintln(w, "# TYPE lanternbot_api_requests_total counter")
	fmt.Fprintf(w, "lanternbot_api_requests_total %d\n", requests)
	fmt.Fprintln(w, "# HELP lanternbot_api_errors_total Failed appliance API requests")
	fmt.Fprintln(w, "# TYPE lanternbot_api_errors_total counter")
	fmt.Fprintf(w, "lanternbot_api_errors_total %d\n", apiErrors)

	fmt.Fprintln(w)

	fmt.Fprintln(w, "# HELP lanternbot_workers_busy Command workers currently running")
	fmt.Fprintln(w, "# TYPE lanternbot_workers_busy gauge")
	fmt.Fprintf(w, "lanternbot_workers_busy %d\n", c.GetWorkersBusy())
}

// sortedKeys returns sorted keys of a map
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		c.WritePrometheus(w)
	}
}

// Global collector instance
var defaultCollector = NewCollector()

// Default returns the default metrics collector
func Default() *Collector {
	return defaultCollector
}

// IncrementCommand counts a command on the default collector
func IncrementCommand(intent string) {
	defaultCollector.IncrementCommand(intent)
}

// IncrementCommandError counts a command failure on the default collector
func IncrementCommandError(intent string) {
	defaultCollector.IncrementCommandError(intent)
}

// IncrementAPIRequest counts an API request on the default collector
func IncrementAPIRequest() {
	defaultCollector.IncrementAPIRequest()
}

// IncrementAPIError counts an API failure on the default collector
func IncrementAPIError() {
	defaultCollector.IncrementAPIError()
}
