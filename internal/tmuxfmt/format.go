// Package tmuxfmt builds and parses tmux -F format strings.
package tmuxfmt

import "strings"

// FieldSeparator is the ASCII unit separator. Session names may contain tabs,
// underscores and spaces, so none of those are safe delimiters.
const FieldSeparator = "\x1f"

// Join builds a tmux format string from #{...} fields.
func Join(fields ...string) string {
	return strings.Join(fields, FieldSeparator)
}

// Field wraps a tmux format variable name as #{name}.
func Field(name string) string {
	return "#{" + name + "}"
}

// SplitLine splits one line of tmux output into at most maxParts fields.
// Older tmux builds escape the separator in -F output, so a literal tab or an
// escaped "\t" is accepted as a fallback.
func SplitLine(line string, maxParts int) []string {
	if maxParts <= 0 {
		return nil
	}
	if strings.Contains(line, FieldSeparator) {
		return strings.SplitN(line, FieldSeparator, maxParts)
	}
	if strings.Contains(line, "\t") {
		return strings.SplitN(line, "\t", maxParts)
	}
	if strings.Contains(line, `\t`) {
		return strings.SplitN(line, `\t`, maxParts)
	}
	// tmux < 3.1 prints control characters in -F output as octal escapes.
	if strings.Contains(line, `\037`) {
		return strings.SplitN(line, `\037`, maxParts)
	}
	return []string{line}
}
