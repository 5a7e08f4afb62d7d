package crawler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/graph"
)

const maxElementsPerRole = 20

// FormsScript returns every form with its controls in DOM order.
const FormsScript = `() => {
	const labelFor = (el) => {
		if (el.labels && el.labels.length) return el.labels[0].textContent.trim();
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (l) return l.textContent.trim();
		}
		const parent = el.closest('label');
		return parent ? parent.textContent.trim() : '';
	};
	const attr = (el, name) => el.hasAttribute(name) ? el.getAttribute(name) : null;
	return Array.from(document.querySelectorAll('form')).map((form, index) => {
		const submit = form.querySelector('button[type="submit"], input[type="submit"]') ||
			form.querySelector('button:not([type="button"])');
		const fields = Array.from(form.querySelectorAll('input, textarea, select'))
			.filter((el) => !['hidden', 'submit', 'button', 'reset', 'image'].includes(el.type))
			.map((el) => ({
				tag: el.tagName.toLowerCase(),
				type: el.type || 'text',
				name: el.name || '',
				id: el.id || '',
				placeholder: el.getAttribute('placeholder') || '',
				required: !!el.required,
				testId: el.getAttribute('data-testid') || '',
				ariaLabel: el.getAttribute('aria-label') || '',
				label: labelFor(el),
				minLength: attr(el, 'minlength'),
				maxLength: attr(el, 'maxlength'),
				min: attr(el, 'min'),
				max: attr(el, 'max'),
				pattern: attr(el, 'pattern'),
				step: attr(el, 'step'),
			}));
		return {
			index,
			id: form.id || '',
			testId: form.getAttribute('data-testid') || '',
			action: form.getAttribute('action') || '',
			method: (form.getAttribute('method') || 'POST').toUpperCase(),
			fields,
			submit: submit ? {
				tag: submit.tagName.toLowerCase(),
				text: (submit.textContent || submit.value || '').trim(),
				type: submit.getAttribute('type') || '',
				id: submit.id || '',
				testId: submit.getAttribute('data-testid') || '',
			} : null,
		};
	});
}`

// LinksScript returns every anchor's raw href and text.
const LinksScript = `() => Array.from(document.querySelectorAll('a[href]')).map((a) => ({
	href: a.getAttribute('href') || '',
	text: (a.textContent || '').trim().slice(0, 100),
	testId: a.getAttribute('data-testid') || '',
	ariaLabel: a.getAttribute('aria-label') || '',
}))`

// TitleScript returns the document title.
const TitleScript = `() => document.title`

// FrameworkScript detects common SPA frameworks by their DOM markers.
const FrameworkScript = `() => {
	if (document.querySelector('#__next')) return 'nextjs';
	if (document.querySelector('#__nuxt')) return 'nuxt';
	if (window.__REACT_DEVTOOLS_GLOBAL_HOOK__ || document.querySelector('[data-reactroot]')) return 'react';
	if (window.__VUE__ || document.querySelector('[data-v-app]')) return 'vue';
	if (window.ng || document.querySelector('[ng-version]') || document.querySelector('app-root')) return 'angular';
	if (document.querySelector('[class*="svelte-"]')) return 'svelte';
	return '';
}`

type rawForm struct {
	Index  int        `json:"index"`
	ID     string     `json:"id"`
	TestID string     `json:"testId"`
	Action string     `json:"action"`
	Method string     `json:"method"`
	Fields []rawField `json:"fields"`
	Submit *rawSubmit `json:"submit"`
}

type rawField struct {
	Tag         string  `json:"tag"`
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	ID          string  `json:"id"`
	Placeholder string  `json:"placeholder"`
	Required    bool    `json:"required"`
	TestID      string  `json:"testId"`
	AriaLabel   string  `json:"ariaLabel"`
	Label       string  `json:"label"`
	MinLength   *string `json:"minLength"`
	MaxLength   *string `json:"maxLength"`
	Min         *string `json:"min"`
	Max         *string `json:"max"`
	Pattern     *string `json:"pattern"`
	Step        *string `json:"step"`
}

type rawSubmit struct {
	Tag    string `json:"tag"`
	Text   string `json:"text"`
	Type   string `json:"type"`
	ID     string `json:"id"`
	TestID string `json:"testId"`
}

type rawLink struct {
	Href      string `json:"href"`
	Text      string `json:"text"`
	TestID    string `json:"testId"`
	AriaLabel string `json:"ariaLabel"`
}

// link is a same-origin link discovered on a page.
type link struct {
	url     string
	trigger graph.ElementDescriptor
}

func extractElements(ctx context.Context, page driver.Page, nodeID string) ([]graph.ElementDescriptor, error) {
	var out []graph.ElementDescriptor
	var firstErr error
	for _, role := range driver.Roles {
		found, err := page.LocateByRole(ctx, role)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("role %s: %w", role, err)
			}
			continue
		}
		for i, el := range found {
			if i >= maxElementsPerRole {
				break
			}
			info, err := el.Describe(ctx)
			if err != nil {
				continue
			}
			out = append(out, describe(nodeID, role, i, info))
		}
	}
	return out, firstErr
}

func extractForms(ctx context.Context, page driver.Page, nodeID string, deep bool) ([]graph.FormDescriptor, error) {
	var raw []rawForm
	if err := page.Evaluate(ctx, FormsScript, &raw); err != nil {
		return nil, fmt.Errorf("forms: %w", err)
	}
	forms := make([]graph.FormDescriptor, 0, len(raw))
	for _, rf := range raw {
		forms = append(forms, buildForm(nodeID, rf, deep))
	}
	return forms, nil
}

func extractLinks(ctx context.Context, page driver.Page, pageURL, baseURL string) ([]link, error) {
	var raw []rawLink
	if err := page.Evaluate(ctx, LinksScript, &raw); err != nil {
		return nil, fmt.Errorf("links: %w", err)
	}
	return buildLinks(raw, pageURL, baseURL), nil
}

func buildLinks(raw []rawLink, pageURL, baseURL string) []link {
	out := make([]link, 0, len(raw))
	for i, rl := range raw {
		href := strings.TrimSpace(rl.Href)
		if skipHref(href) {
			continue
		}
		abs, err := graph.Resolve(pageURL, href)
		if err != nil || !graph.SameOrigin(abs, baseURL) {
			continue
		}

		attrs := map[string]string{"href": href}
		if rl.TestID != "" {
			attrs["data-testid"] = rl.TestID
		}
		if rl.AriaLabel != "" {
			attrs["aria-label"] = rl.AriaLabel
		}
		trigger := describe(graph.NodeID(pageURL), "link", i, driver.ElementInfo{Tag: "a", Text: rl.Text, Attributes: attrs})
		if rl.TestID == "" && rl.AriaLabel == "" && strings.TrimSpace(rl.Text) == "" {
			trigger.Selector.Primary = fmt.Sprintf(`a[href="%s"]`, driver.Quote(href))
			trigger.Selector.Type = graph.SelectorCSS
			trigger.Selector.Stability = stabilityText
			trigger.Confidence = stabilityText
		}
		out = append(out, link{url: abs, trigger: trigger})
	}
	return out
}

func skipHref(href string) bool {
	lower := strings.ToLower(href)
	return href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "javascript:")
}

func buildForm(nodeID string, rf rawForm, deep bool) graph.FormDescriptor {
	formSel := graph.SelectorStrategy{Fallbacks: []string{}, Stability: 0.6, Type: graph.SelectorCSS}
	switch {
	case rf.TestID != "":
		formSel.Primary = fmt.Sprintf(`[data-testid="%s"]`, driver.Quote(rf.TestID))
		formSel.Stability = stabilityTestID
		formSel.Type = graph.SelectorTestID
	case rf.ID != "" && isCSSIdent(rf.ID):
		formSel.Primary = "#" + rf.ID
		formSel.Stability = 0.7
	default:
		formSel.Primary = fmt.Sprintf("form:nth-of-type(%d)", rf.Index+1)
		formSel.Stability = stabilityGeneric
	}

	method := strings.ToUpper(rf.Method)
	if method == "" {
		method = "POST"
	}

	form := graph.FormDescriptor{
		ID:              "form-" + graph.HashString(fmt.Sprintf("%s|%d|%s", nodeID, rf.Index, formSel.Primary)),
		Selector:        formSel,
		Fields:          make([]graph.FormField, 0, len(rf.Fields)),
		ValidationRules: []graph.ValidationRule{},
		Method:          method,
		Action:          rf.Action,
	}

	for i, f := range rf.Fields {
		field := buildField(formSel.Primary, i, f, deep)
		form.Fields = append(form.Fields, field)
		form.ValidationRules = append(form.ValidationRules, inferRules(field)...)
	}

	if rf.Submit != nil {
		form.SubmitButton = submitButton(nodeID, formSel.Primary, *rf.Submit)
	}
	return form
}

func buildField(formSelector string, index int, f rawField, deep bool) graph.FormField {
	tag := f.Tag
	if tag == "" {
		tag = "input"
	}

	var sel graph.SelectorStrategy
	var fallbacks []string
	switch {
	case f.TestID != "":
		sel = graph.SelectorStrategy{Primary: fmt.Sprintf(`[data-testid="%s"]`, driver.Quote(f.TestID)), Stability: stabilityTestID, Type: graph.SelectorTestID}
	case f.ID != "" && isCSSIdent(f.ID):
		sel = graph.SelectorStrategy{Primary: "#" + f.ID, Stability: 0.7, Type: graph.SelectorCSS}
	case f.Name != "":
		sel = graph.SelectorStrategy{Primary: fmt.Sprintf(`%s[name="%s"]`, tag, driver.Quote(f.Name)), Stability: stabilityText, Type: graph.SelectorCSS}
	case f.AriaLabel != "":
		sel = graph.SelectorStrategy{Primary: fmt.Sprintf(`[aria-label="%s"]`, driver.Quote(f.AriaLabel)), Stability: stabilityLabel, Type: graph.SelectorLabel}
	case f.Placeholder != "":
		sel = graph.SelectorStrategy{Primary: fmt.Sprintf(`%s[placeholder="%s"]`, tag, driver.Quote(f.Placeholder)), Stability: 0.5, Type: graph.SelectorCSS}
	default:
		sel = graph.SelectorStrategy{Primary: fmt.Sprintf("%s %s:nth-of-type(%d)", formSelector, tag, index+1), Stability: 0.2, Type: graph.SelectorCSS}
	}
	if f.ID != "" && isCSSIdent(f.ID) && sel.Primary != "#"+f.ID {
		fallbacks = append(fallbacks, "#"+f.ID)
	}
	if f.Name != "" {
		if byName := fmt.Sprintf(`%s[name="%s"]`, tag, driver.Quote(f.Name)); byName != sel.Primary {
			fallbacks = append(fallbacks, byName)
		}
	}
	if f.AriaLabel != "" {
		if byLabel := fmt.Sprintf(`[aria-label="%s"]`, driver.Quote(f.AriaLabel)); byLabel != sel.Primary {
			fallbacks = append(fallbacks, byLabel)
		}
	}
	if fallbacks == nil {
		fallbacks = []string{}
	}
	sel.Fallbacks = fallbacks

	name := f.Name
	if name == "" {
		name = f.ID
	}
	if name == "" {
		name = fmt.Sprintf("field-%s-%d", tag, index)
	}

	field := graph.FormField{
		Name:            name,
		Type:            fieldType(f.Type, tag),
		Selector:        sel,
		Required:        f.Required,
		Placeholder:     f.Placeholder,
		Label:           f.Label,
		Constraints:     &graph.FieldConstraints{},
		ValidationHints: []string{},
	}
	if deep {
		field.Constraints, field.ValidationHints = constraintsOf(f)
	}
	return field
}

func fieldType(typ, tag string) string {
	switch tag {
	case "select":
		return "select"
	case "textarea":
		return "text"
	}
	switch strings.ToLower(typ) {
	case "email", "password", "tel", "number", "url", "date", "checkbox", "radio":
		return strings.ToLower(typ)
	}
	return "text"
}

func constraintsOf(f rawField) (*graph.FieldConstraints, []string) {
	c := &graph.FieldConstraints{}
	hints := []string{}
	if f.Required {
		hints = append(hints, "required")
	}
	if n, ok := atoi(f.MinLength); ok {
		c.MinLength = &n
		hints = append(hints, "minlength")
	}
	if n, ok := atoi(f.MaxLength); ok {
		c.MaxLength = &n
		hints = append(hints, "maxlength")
	}
	if v, ok := atof(f.Min); ok {
		c.Min = &v
		hints = append(hints, "min")
	}
	if v, ok := atof(f.Max); ok {
		c.Max = &v
		hints = append(hints, "max")
	}
	if f.Pattern != nil && *f.Pattern != "" {
		c.Pattern = *f.Pattern
		hints = append(hints, "pattern")
	}
	if f.Step != nil && *f.Step != "" {
		c.Step = *f.Step
		hints = append(hints, "step")
	}
	if strings.EqualFold(f.Type, "email") || strings.EqualFold(f.Type, "url") {
		hints = append(hints, "type="+strings.ToLower(f.Type))
	}
	return c, hints
}

func inferRules(f graph.FormField) []graph.ValidationRule {
	var rules []graph.ValidationRule
	if f.Required {
		rules = append(rules, graph.ValidationRule{Field: f.Name, Rule: "required"})
	}
	if f.Type == "email" {
		rules = append(rules, graph.ValidationRule{Field: f.Name, Rule: "email"})
	}
	if c := f.Constraints; c != nil {
		if c.MinLength != nil {
			rules = append(rules, graph.ValidationRule{Field: f.Name, Rule: "minLength", Message: strconv.Itoa(*c.MinLength)})
		}
		if c.MaxLength != nil {
			rules = append(rules, graph.ValidationRule{Field: f.Name, Rule: "maxLength", Message: strconv.Itoa(*c.MaxLength)})
		}
		if c.Pattern != "" {
			rules = append(rules, graph.ValidationRule{Field: f.Name, Rule: "pattern", Message: c.Pattern})
		}
	}
	return rules
}

func submitButton(nodeID, formSelector string, s rawSubmit) *graph.ElementDescriptor {
	attrs := map[string]string{}
	if s.Type != "" {
		attrs["type"] = s.Type
	}
	if s.ID != "" {
		attrs["id"] = s.ID
	}
	if s.TestID != "" {
		attrs["data-testid"] = s.TestID
	}
	tag := s.Tag
	if tag == "" {
		tag = "button"
	}

	sel := graph.SelectorStrategy{Fallbacks: []string{}, Stability: 0.7, Type: graph.SelectorCSS}
	switch {
	case s.TestID != "":
		sel.Primary = fmt.Sprintf(`[data-testid="%s"]`, driver.Quote(s.TestID))
		sel.Stability = stabilityTestID
		sel.Type = graph.SelectorTestID
	case s.ID != "" && isCSSIdent(s.ID):
		sel.Primary = "#" + s.ID
	case s.Type == "submit":
		sel.Primary = fmt.Sprintf(`%s %s[type="submit"]`, formSelector, tag)
	case s.Text != "" && tag == "button":
		sel.Primary = fmt.Sprintf(`button:has-text("%s")`, driver.Quote(truncate(s.Text, maxSelectorText)))
		sel.Stability = stabilityText
	default:
		sel.Primary = formSelector + " " + tag
		sel.Stability = stabilityGeneric
	}
	if s.Text != "" && tag == "button" && !strings.Contains(sel.Primary, ":has-text") {
		sel.Fallbacks = append(sel.Fallbacks, fmt.Sprintf(`button:has-text("%s")`, driver.Quote(truncate(s.Text, maxSelectorText))))
	}

	name := s.Text
	if name == "" {
		name = "Submit"
	}
	return &graph.ElementDescriptor{
		ID:         "btn-" + graph.HashString(nodeID+"|"+formSelector+"|"+sel.Primary),
		Role:       "button",
		Name:       name,
		Selector:   sel,
		Type:       "button",
		Attributes: attrs,
		Text:       s.Text,
		Confidence: 0.9,
	}
}

func atoi(s *string) (int, bool) {
	if s == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(*s))
	return n, err == nil
}

func atof(s *string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*s), 64)
	return v, err == nil
}
