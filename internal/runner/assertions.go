package runner

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/plan"
)

// assertTimeout bounds element lookups made by assertions.
const assertTimeout = 3 * time.Second

const countScript = `(selector) => document.querySelectorAll(selector).length`

// checkAssertion evaluates a against the current page state.
func (r *Runner) checkAssertion(ctx context.Context, page driver.Page, a plan.Assertion) error {
	selector := a.Target.Primary()
	timeout := min(assertTimeout, r.opts.Timeout)

	switch a.Type {
	case plan.AssertURL:
		actual := page.URL()
		op := operatorOr(a.Operator, plan.OpContains)
		if !compare(actual, a.Expected, op) {
			return fmt.Errorf("assert url: %q does not %s %q", actual, op, a.Expected)
		}
		return nil

	case plan.AssertVisible:
		el, err := page.Locate(ctx, selector, timeout)
		if err != nil {
			return fmt.Errorf("assert visible %s: %w", selector, err)
		}
		visible, err := el.IsVisible(ctx)
		if err != nil {
			return fmt.Errorf("assert visible %s: %w", selector, err)
		}
		if !visible {
			return fmt.Errorf("assert visible %s: element is hidden", selector)
		}
		return nil

	case plan.AssertHidden:
		el, err := page.Locate(ctx, selector, timeout)
		if err != nil {
			return nil
		}
		if visible, err := el.IsVisible(ctx); err == nil && visible {
			return fmt.Errorf("assert hidden %s: element is visible", selector)
		}
		return nil

	case plan.AssertExists:
		if _, err := page.Locate(ctx, selector, timeout); err != nil {
			return fmt.Errorf("assert exists %s: %w", selector, err)
		}
		return nil

	case plan.AssertText:
		el, err := page.Locate(ctx, selector, timeout)
		if err != nil {
			return fmt.Errorf("assert text %s: %w", selector, err)
		}
		text, err := el.TextContent(ctx)
		if err != nil {
			return fmt.Errorf("assert text %s: %w", selector, err)
		}
		text = strings.TrimSpace(text)
		op := operatorOr(a.Operator, plan.OpContains)
		if !compare(text, a.Expected, op) {
			return fmt.Errorf("assert text %s: %q does not %s %q", selector, text, op, a.Expected)
		}
		return nil

	case plan.AssertValue:
		el, err := page.Locate(ctx, selector, timeout)
		if err != nil {
			return fmt.Errorf("assert value %s: %w", selector, err)
		}
		value, _, err := el.Attribute(ctx, "value")
		if err != nil {
			return fmt.Errorf("assert value %s: %w", selector, err)
		}
		op := operatorOr(a.Operator, plan.OpEquals)
		if !compare(value, a.Expected, op) {
			return fmt.Errorf("assert value %s: %q does not %s %q", selector, value, op, a.Expected)
		}
		return nil

	case plan.AssertAttribute:
		name, want, hasValue := strings.Cut(a.Expected, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("assert attribute %s: no attribute name in %q", selector, a.Expected)
		}
		el, err := page.Locate(ctx, selector, timeout)
		if err != nil {
			return fmt.Errorf("assert attribute %s: %w", selector, err)
		}
		value, ok, err := el.Attribute(ctx, name)
		if err != nil {
			return fmt.Errorf("assert attribute %s: %w", selector, err)
		}
		if !ok {
			return fmt.Errorf("assert attribute %s: %s is not set", selector, name)
		}
		op := operatorOr(a.Operator, plan.OpEquals)
		if hasValue && !compare(value, want, op) {
			return fmt.Errorf("assert attribute %s: %s=%q does not %s %q", selector, name, value, op, want)
		}
		return nil

	case plan.AssertCount:
		want, err := strconv.Atoi(strings.TrimSpace(a.Expected))
		if err != nil {
			return fmt.Errorf("assert count %s: expected %q is not a number", selector, a.Expected)
		}
		var n int
		if err := page.Evaluate(ctx, countScript, &n, selector); err != nil {
			return fmt.Errorf("assert count %s: %w", selector, err)
		}
		op := operatorOr(a.Operator, plan.OpEquals)
		if !compare(strconv.Itoa(n), strconv.Itoa(want), op) {
			return fmt.Errorf("assert count %s: %d does not %s %d", selector, n, op, want)
		}
		return nil

	default:
		return fmt.Errorf("unsupported assertion type %q", a.Type)
	}
}

func operatorOr(op, def plan.Operator) plan.Operator {
	if op == "" {
		return def
	}
	return op
}

// compare applies op to actual and expected. gt and lt compare numerically
// and fail on non-numeric input. An invalid pattern never matches.
func compare(actual, expected string, op plan.Operator) bool {
	switch op {
	case plan.OpEquals:
		return actual == expected
	case plan.OpContains:
		return strings.Contains(actual, expected)
	case plan.OpMatches:
		re, err := regexp.Compile(expected)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	case plan.OpGT, plan.OpLT:
		a, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		if err != nil {
			return false
		}
		e, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
		if err != nil {
			return false
		}
		if op == plan.OpGT {
			return a > e
		}
		return a < e
	}
	return false
}
