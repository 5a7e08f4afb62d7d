package crawler

import (
	"fmt"
	"strings"

	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/graph"
)

// Stability scores of derived selectors.
const (
	stabilityTestID  = 0.95
	stabilityLabel   = 0.8
	stabilityText    = 0.6
	stabilityGeneric = 0.3
)

const maxSelectorText = 30

// DeriveSelector picks a primary selector for an element: an explicit test id,
// else its aria-label, else a role plus text heuristic, else a generic role
// selector. Remaining derivable selectors become fallbacks.
func DeriveSelector(role, tag string, text string, attrs map[string]string) graph.SelectorStrategy {
	tag = strings.ToLower(tag)
	if tag == "" {
		tag = "*"
	}
	text = strings.TrimSpace(text)

	var candidates []graph.SelectorStrategy
	if v := attrs["data-testid"]; v != "" {
		candidates = append(candidates, graph.SelectorStrategy{
			Primary:   fmt.Sprintf(`[data-testid="%s"]`, driver.Quote(v)),
			Stability: stabilityTestID,
			Type:      graph.SelectorTestID,
		})
	}
	if v := attrs["aria-label"]; v != "" {
		candidates = append(candidates, graph.SelectorStrategy{
			Primary:   fmt.Sprintf(`[aria-label="%s"]`, driver.Quote(v)),
			Stability: stabilityLabel,
			Type:      graph.SelectorLabel,
		})
	}
	if sel := roleTextSelector(role, tag, text, attrs); sel != "" {
		candidates = append(candidates, graph.SelectorStrategy{
			Primary:   sel,
			Stability: stabilityText,
			Type:      graph.SelectorCSS,
		})
	}
	candidates = append(candidates, graph.SelectorStrategy{
		Primary:   genericRoleSelector(role, tag, attrs),
		Stability: stabilityGeneric,
		Type:      graph.SelectorRole,
	})

	best := candidates[0]
	best.Fallbacks = []string{}
	seen := map[string]bool{best.Primary: true}
	for _, c := range candidates[1:] {
		if !seen[c.Primary] {
			seen[c.Primary] = true
			best.Fallbacks = append(best.Fallbacks, c.Primary)
		}
	}
	if id := attrs["id"]; id != "" && isCSSIdent(id) && !seen["#"+id] {
		best.Fallbacks = append(best.Fallbacks, "#"+id)
	}
	return best
}

func roleTextSelector(role, tag, text string, attrs map[string]string) string {
	switch role {
	case "button", "link", "heading":
		if text == "" {
			return ""
		}
		return fmt.Sprintf(`%s:has-text("%s")`, tag, driver.Quote(truncate(text, maxSelectorText)))
	case "textbox":
		if v := attrs["name"]; v != "" {
			return fmt.Sprintf(`%s[name="%s"]`, tag, driver.Quote(v))
		}
		if v := attrs["placeholder"]; v != "" {
			return fmt.Sprintf(`%s[placeholder="%s"]`, tag, driver.Quote(v))
		}
	case "img":
		if v := attrs["alt"]; v != "" {
			return fmt.Sprintf(`%s[alt="%s"]`, tag, driver.Quote(v))
		}
	}
	return ""
}

func genericRoleSelector(role, tag string, attrs map[string]string) string {
	if attrs["role"] == role {
		return fmt.Sprintf(`[role="%s"]`, role)
	}
	return tag
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// isCSSIdent reports whether s can follow '#' without escaping.
func isCSSIdent(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	if len(s) > 1 && s[0] == '-' && s[1] >= '0' && s[1] <= '9' {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// describe converts an element's static description into a descriptor.
func describe(nodeID, role string, index int, info driver.ElementInfo) graph.ElementDescriptor {
	attrs := info.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	text := strings.TrimSpace(info.Text)
	sel := DeriveSelector(role, info.Tag, text, attrs)

	name := text
	if name == "" {
		name = attrs["aria-label"]
	}
	if name == "" {
		name = attrs["name"]
	}
	if name == "" && role == "img" {
		name = attrs["alt"]
	}

	return graph.ElementDescriptor{
		ID:          "el-" + graph.HashString(fmt.Sprintf("%s|%s|%d|%s", nodeID, role, index, sel.Primary)),
		Role:        role,
		Name:        name,
		Selector:    sel,
		Type:        role,
		Attributes:  attrs,
		Text:        text,
		Placeholder: attrs["placeholder"],
		Confidence:  sel.Stability,
	}
}
