package bot

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FormatList renders a list of names for chat. Short lists get one item per
// line with a quote prefix; longer lists are packed into fixed-width columns
// fitted to the line budget
func FormatList(items []string, title string, threshold, budget int) string {
	if threshold <= 0 {
		threshold = 10
	}
	if budget <= 0 {
		budget = 120
	}

	if len(items) <= threshold {
		var b strings.Builder
		for _, item := range items {
			fmt.Fprintf(&b, "\n> %s", item)
		}
		return b.String()
	}

	maxLen := 0
	for _, item := range items {
		if len(item) > maxLen {
			maxLen = len(item)
		}
	}
	cols := budget / (maxLen + 1)
	if cols < 1 {
		cols = 1
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(title + ":")
	}
	b.WriteString("\n```")
	for i, item := range items {
		if i%cols == 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-*s ", maxLen, item)
	}
	b.WriteString("\n```")
	return b.String()
}

// DumpObject renders a backend response as an indented key/value listing
// wrapped in a code fence. Lists are represented by their first element
func DumpObject(raw json.RawMessage) string {
	var obj any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return string(raw)
	}
	var b strings.Builder
	dumpValue(&b, obj, 0)
	return "```" + b.String() + "\n```"
}

// sortFold orders names case-insensitively, matching the web UI
func sortFold(items []string) {
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i]) < strings.ToLower(items[j])
	})
}

func dumpValue(b *strings.Builder, v any, level int) {
	indent := strings.Repeat(" ", level)
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch child := val[k].(type) {
			case map[string]any:
				fmt.Fprintf(b, "\n%s%s:", indent, k)
				dumpValue(b, child, level+2)
			case []any:
				fmt.Fprintf(b, "\n%s%s:", indent, k)
				if len(child) > 0 {
					dumpValue(b, child[0], level+2)
				}
			default:
				fmt.Fprintf(b, "\n%s%s -> %v", indent, k, child)
			}
		}
	case []any:
		if len(val) > 0 {
			dumpValue(b, val[0], level)
		}
	default:
		fmt.Fprintf(b, "\n%s%v", indent, val)
	}
}
