package driver

import (
	"regexp"
	"strings"
)

var hasTextPattern = regexp.MustCompile(`^([a-zA-Z0-9_*-]*):has-text\("((?:[^"\\]|\\.)*)"\)$`)

// ParseHasText splits a tag:has-text("text") selector. ok is false for plain
// CSS.
func ParseHasText(selector string) (tag, text string, ok bool) {
	m := hasTextPattern.FindStringSubmatch(strings.TrimSpace(selector))
	if m == nil {
		return "", "", false
	}
	tag = m[1]
	if tag == "" {
		tag = "*"
	}
	return tag, Unquote(m[2]), true
}

// Quote escapes a value for use inside a double-quoted selector string.
func Quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// Unquote reverses Quote.
func Unquote(s string) string {
	return strings.NewReplacer(`\\`, `\`, `\"`, `"`).Replace(s)
}
