package bot

import (
	"context"
	"fmt"

	"github.com/lanternops/lanternbot/pkg/types"
)

// handlerFunc runs one built-in command. scope is the sanitized remainder of
// the message after the intent token
type handlerFunc func(ctx context.Context, scope string, cmd types.Command) (string, error)

// intent is one built-in command registration. Admin intents may only run in
// the admin channel
type intent struct {
	name        string
	aliases     []string
	admin       bool
	usage       string
	description string
	run         handlerFunc
}

// builtinIntents declares the bot's command table. The table is built once at
// startup and never mutated
func (d *Dispatcher) builtinIntents() []intent {
	return []intent{
		{
			name: "monitor", aliases: []string{"monitor", "dashboard"},
			usage:       "monitor",
			description: "Shows a summary information about nodes and licenses.",
			run:         d.handleMonitor,
		},
		{
			name: "ssh", aliases: []string{"ssh", "sshlink"},
			usage:       "ssh <device>",
			description: "Gets a SSH link for a managed device.",
			run:         d.handlePortSSH,
		},
		{
			name: "web", aliases: []string{"web", "webterm", "weblink"},
			usage:       "web <device>",
			description: "Gets a web terminal link for a managed device.",
			run:         d.handlePortWeb,
		},
		{
			name: "con", aliases: []string{"con", "console", "gimme"},
			usage:       "con <device>",
			description: "Gets both a SSH link and a web terminal link for a managed device.",
			run:         d.handlePort,
		},
		{
			name: "devices", aliases: []string{"devices", "ports", "labels"},
			usage:       "devices",
			description: "Shows all the managed devices available.",
			run:         d.handlePortLabels,
		},
		{
			name: "status", aliases: []string{"status", "summary", "stats", "howzit"},
			usage:       "status",
			description: "Shows nodes enrollment summary.",
			run:         d.handleSummary,
		},
		{
			name: "gui", aliases: []string{"gui", "lantern", "lnweb", "webui"},
			usage:       "gui [<node>]",
			description: "Gets a link to the web UI, or to a node's proxied web UI.",
			run:         d.handleWebUI,
		},
		{
			name: "nodes", aliases: []string{"nodes", "enrolled"},
			usage:       "nodes",
			description: "Shows enrolled nodes.",
			run:         d.handleEnrolled,
		},
		{
			name: "pending", aliases: []string{"pending"},
			usage:       "pending",
			description: "Shows nodes awaiting approval.",
			run:         d.handlePending,
		},
		{
			name: "approve", aliases: []string{"approve", "okay"}, admin: true,
			usage:       "approve <node> [<node> ...]",
			description: "Approves a node or a whitespace separated list of nodes (admin only).",
			run:         d.handleApprove,
		},
		{
			name: "delete", aliases: []string{"delete", "kill"}, admin: true,
			usage:       "delete <node> [<node> ...]",
			description: "Unenrolls a node or a whitespace separated list of nodes (admin only).",
			run:         d.handleDelete,
		},
		{
			name: "smartgroups", aliases: []string{"smartgroups", "smart"},
			usage:       "smartgroups",
			description: "Shows the list of smartgroups.",
			run:         d.handleSmartGroups,
		},
		{
			name: "smartgroup-nodes", aliases: []string{"smartgroup-nodes", "smart-nodes", "smartgroupnodes"},
			usage:       "smartgroup-nodes <smartgroup>",
			description: "Shows the nodes belonging to a smartgroup.",
			run:         d.handleSmartGroupNodes,
		},
		{
			name: "help", aliases: []string{"help"},
			usage:       "help",
			description: "Shows this message.",
			run:         d.handleHelp,
		},
	}
}

// buildIntentTable indexes intents by alias. Two intents claiming the same
// alias is a configuration bug and fails startup
func buildIntentTable(intents []intent) (map[string]*intent, error) {
	table := make(map[string]*intent)
	for i := range intents {
		it := &intents[i]
		for _, alias := range it.aliases {
			if prev, ok := table[alias]; ok {
				return nil, fmt.Errorf("intent alias %q claimed by both %q and %q",
					alias, prev.name, it.name)
			}
			table[alias] = it
		}
	}
	return table, nil
}
