package bot

import (
	"regexp"
	"strings"
)

// encodedToken matches the workspace's rich-text escapes, like
// <U123|alice> or <C456|general>. The part after the pipe is the
// human-readable form
var encodedToken = regexp.MustCompile(`^<.*\|(.*)>$`)

// Sanitize rewrites each whitespace token of a message to its plain form:
// <X|Y> becomes Y, anything else passes through unchanged
func Sanitize(line string) string {
	fields := strings.Fields(line)
	for i, f := range fields {
		if m := encodedToken.FindStringSubmatch(f); m != nil {
			fields[i] = m[1]
		}
	}
	return strings.Join(fields, " ")
}
