package bot

import (
	"context"
	"sync"

	"github.com/lanternops/lanternbot/pkg/types"
)

// pendingTracker remembers the last-seen set of nodes awaiting approval so
// the bot can tell newly registered nodes from ones it already announced
type pendingTracker struct {
	mu    sync.Mutex
	known map[string]string // name -> id
}

func newPendingTracker() *pendingTracker {
	return &pendingTracker{known: make(map[string]string)}
}

// update replaces the snapshot wholesale and returns the names present now
// that were absent before
func (t *pendingTracker) update(current map[string]string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []string
	for name := range current {
		if _, ok := t.known[name]; !ok {
			fresh = append(fresh, name)
		}
	}

	t.known = make(map[string]string, len(current))
	for name, id := range current {
		t.known[name] = id
	}
	return fresh
}

func (t *pendingTracker) snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.known))
	for name, id := range t.known {
		out[name] = id
	}
	return out
}

func (t *pendingTracker) seed(known map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known = make(map[string]string, len(known))
	for name, id := range known {
		t.known[name] = id
	}
}

// CheckPending fetches the pending-node set and formats a report. With
// newOnly set, an unchanged set yields an empty reply so periodic checks
// stay quiet when there is nothing to announce
func (d *Dispatcher) CheckPending(ctx context.Context, newOnly bool) (string, error) {
	current, err := d.helper.Pending(ctx)
	if err != nil {
		return "", err
	}

	fresh := d.pending.update(current)
	if newOnly && len(fresh) == 0 {
		return "", nil
	}

	if len(current) == 0 {
		return ":white_check_mark: No pending nodes to approve.", nil
	}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sortFold(names)
	return ":warning: There are some nodes waiting for approval.\n" +
		d.formatList(names, ""), nil
}

func (d *Dispatcher) handlePending(ctx context.Context, scope string, cmd types.Command) (string, error) {
	return d.CheckPending(ctx, false)
}
