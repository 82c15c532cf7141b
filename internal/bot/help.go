package bot

import (
	"fmt"
	"strings"
)

// helpText renders the command reference: one table row per built-in intent
// plus the generic query grammar
func (d *Dispatcher) helpText() string {
	maxUsage, maxDesc := len("Commands"), len("Description")
	for _, it := range d.ordered {
		if len(it.usage) > maxUsage {
			maxUsage = len(it.usage)
		}
		if len(it.description) > maxDesc {
			maxDesc = len(it.description)
		}
	}

	at := "@" + d.opts.BotName
	var b strings.Builder
	b.WriteString("```\n")
	fmt.Fprintf(&b, "%s %-*s | %-*s\n",
		strings.Repeat(" ", len(at)), maxUsage, "Commands", maxDesc, "Description")
	for _, it := range d.ordered {
		fmt.Fprintf(&b, "%s %-*s | %-*s\n", at, maxUsage, it.usage, maxDesc, it.description)
	}
	b.WriteString("```\n")

	fmt.Fprintf(&b, `
It is also possible to query objects like:
`+"```"+`
%[1]s list nodes
%[1]s find node my-node-name
%[1]s list tags from node my-node-name
%[1]s list nodes in my-smartgroup
`+"```"+`

Generically:
`+"```"+`
%[1]s get <static-object>
%[1]s list <objects>
%[1]s find <object> <object-name>

%[1]s get <static-object> from <parent-object> <parent-object-name>
%[1]s list <objects> from <parent-object> <parent-object-name>
%[1]s find <object> <object-name> from <parent-object> <parent-object-name>
%[1]s list <objects> in <smartgroup>
`+"```"+`
`, at)

	return b.String()
}
