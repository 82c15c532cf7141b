package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/lanternops/lanternbot/internal/logger"
	"github.com/lanternops/lanternbot/internal/resource"
	"github.com/lanternops/lanternbot/pkg/types"
)

// Options configures dispatch behavior
type Options struct {
	BotName       string
	AdminChannel  string
	ListThreshold int
	LineBudget    int
}

// Dispatcher routes a chat command to a built-in handler or, failing that,
// to the generic query tool. It holds no transport state, so the chat daemon
// and the local console share one implementation
type Dispatcher struct {
	helper  *resource.Helper
	log     *logger.Logger
	opts    Options
	ordered []intent
	table   map[string]*intent
	pending *pendingTracker
}

// NewDispatcher builds the intent table and validates it
func NewDispatcher(helper *resource.Helper, log *logger.Logger, opts Options) (*Dispatcher, error) {
	if opts.ListThreshold <= 0 {
		opts.ListThreshold = 10
	}
	if opts.LineBudget <= 0 {
		opts.LineBudget = 120
	}

	d := &Dispatcher{
		helper:  helper,
		log:     log,
		opts:    opts,
		pending: newPendingTracker(),
	}
	d.ordered = d.builtinIntents()
	table, err := buildIntentTable(d.ordered)
	if err != nil {
		return nil, err
	}
	d.table = table
	return d, nil
}

// Dispatch handles one command and returns the reply text. An empty reply
// means nothing should be posted. isHelp marks replies that are the help
// text, so callers can avoid logging the full message
func (d *Dispatcher) Dispatch(ctx context.Context, cmd types.Command) (reply string, isHelp bool) {
	if it, ok := d.table[Sanitize(cmd.Intent)]; ok {
		if it.admin && cmd.ChannelName != d.opts.AdminChannel {
			return fmt.Sprintf("This operation must take place at `%s` channel.",
				d.opts.AdminChannel), false
		}

		out, err := it.run(ctx, Sanitize(cmd.Scope), cmd)
		if err != nil {
			d.log.WithCommandID(cmd.ID).Error("intent %s failed: %v", it.name, err)
			return fmt.Sprintf(":x: Could not complete `%s`, please try again later.",
				it.name), false
		}
		return out, false
	}

	return d.queryTool(ctx, Sanitize(cmd.Raw()), cmd)
}

// formatList applies the configured list rendering
func (d *Dispatcher) formatList(items []string, title string) string {
	return FormatList(items, title, d.opts.ListThreshold, d.opts.LineBudget)
}

// PendingSnapshot exposes the tracked pending-node set for persistence
func (d *Dispatcher) PendingSnapshot() map[string]string {
	return d.pending.snapshot()
}

// SeedPending primes the pending-node tracker, typically from a snapshot
// saved before the last shutdown
func (d *Dispatcher) SeedPending(known map[string]string) {
	d.pending.seed(known)
}

// splitCommand separates the intent token from its scope
func splitCommand(text string) (intent, scope string) {
	text = strings.TrimSpace(text)
	intent, scope, _ = strings.Cut(text, " ")
	return intent, strings.TrimSpace(scope)
}
