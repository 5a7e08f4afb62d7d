package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/v0xg/webprobe/internal/capture"
	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/healing"
	"github.com/v0xg/webprobe/internal/logger"
	"github.com/v0xg/webprobe/internal/plan"
)

const (
	// defaultWait is the pause of a wait step without target or timeout.
	defaultWait = time.Second
	// healProbeTimeout bounds each alternative selector probe.
	healProbeTimeout = 2 * time.Second
	pollInterval     = 100 * time.Millisecond
	highlightTimeout = 500 * time.Millisecond
)

// loadedScript resolves once the document has finished loading.
const loadedScript = `() => new Promise(resolve => {
	if (document.readyState === "complete") return resolve(true);
	window.addEventListener("load", () => resolve(true), { once: true });
})`

// executeStep performs one step of a flow.
func (r *Runner) executeStep(ctx context.Context, page driver.Page, tc plan.TestCase, step plan.Step, at *attempt, log logger.Interface) error {
	timeout := step.TimeoutOr(r.opts.Timeout)

	switch step.Action {
	case plan.ActionNavigate:
		return r.executeNavigate(ctx, page, step, timeout)
	case plan.ActionClick:
		return r.interact(ctx, page, tc, step, timeout, at, log, func(ctx context.Context, el driver.Element) error {
			return el.Click(ctx)
		})
	case plan.ActionFill:
		return r.interact(ctx, page, tc, step, timeout, at, log, func(ctx context.Context, el driver.Element) error {
			return el.Fill(ctx, step.Value)
		})
	case plan.ActionSelect:
		return r.interact(ctx, page, tc, step, timeout, at, log, func(ctx context.Context, el driver.Element) error {
			return el.SelectOption(ctx, step.Value)
		})
	case plan.ActionCheck:
		return r.interact(ctx, page, tc, step, timeout, at, log, func(ctx context.Context, el driver.Element) error {
			return el.Check(ctx)
		})
	case plan.ActionHover:
		return r.interact(ctx, page, tc, step, timeout, at, log, func(ctx context.Context, el driver.Element) error {
			return el.Hover(ctx)
		})
	case plan.ActionWait:
		return r.executeWait(ctx, page, tc, step, at, log)
	case plan.ActionScreenshot:
		return r.executeScreenshot(ctx, page, tc, step, at)
	default:
		return fmt.Errorf("unknown action type: %s", step.Action)
	}
}

func (r *Runner) executeNavigate(ctx context.Context, page driver.Page, step plan.Step, timeout time.Duration) error {
	target := step.Target.Primary()
	if target == "" {
		target = step.Value
	}
	if target == "" {
		return fmt.Errorf("navigate step %s has no url", step.ID)
	}

	url := target
	if !strings.Contains(target, "://") && r.opts.BaseURL != "" {
		resolved, err := graph.Resolve(r.opts.BaseURL, target)
		if err != nil {
			return err
		}
		url = resolved
	}

	waitUntil := r.opts.WaitUntil
	if step.Options != nil {
		switch w := driver.WaitUntil(step.Options.WaitFor); w {
		case driver.WaitLoad, driver.WaitDOMContentLoaded, driver.WaitNetworkIdle:
			waitUntil = w
		}
	}
	return withTimeout(ctx, timeout, func(ctx context.Context) error {
		return page.Navigate(ctx, url, waitUntil, timeout)
	})
}

// interact locates the step target, healing it when allowed, and applies fn.
func (r *Runner) interact(ctx context.Context, page driver.Page, tc plan.TestCase, step plan.Step, timeout time.Duration, at *attempt, log logger.Interface, fn func(context.Context, driver.Element) error) error {
	el, err := r.locate(ctx, page, tc, step, timeout, at, log)
	if err != nil {
		return err
	}
	if at.replay != nil {
		if box, err := el.Bounds(ctx); err == nil {
			at.mark = &box
		}
	}
	return withTimeout(ctx, timeout, func(ctx context.Context) error {
		if err := fn(ctx, el); err != nil {
			return fmt.Errorf("%s %s: %w", step.Action, step.Target.Primary(), err)
		}
		return nil
	})
}

// locate finds the element of a step. When the primary selector misses and
// the target is a descriptor, the healer probes alternatives. A failed heal
// reports the original lookup error.
func (r *Runner) locate(ctx context.Context, page driver.Page, tc plan.TestCase, step plan.Step, timeout time.Duration, at *attempt, log logger.Interface) (driver.Element, error) {
	target := step.Target
	selector := target.Primary()
	if selector == "" {
		return nil, fmt.Errorf("%s step %s has no target", step.Action, step.ID)
	}

	el, err := page.Locate(ctx, selector, timeout)
	if err == nil {
		return el, nil
	}
	lookupErr := fmt.Errorf("locate %s: %w", selector, err)
	if !r.canHeal(target) || ctx.Err() != nil {
		return nil, lookupErr
	}

	var healed driver.Element
	probe := min(healProbeTimeout, timeout)
	res, herr := r.healer.Heal(ctx, *target.Element, func(ctx context.Context, candidate string) bool {
		found, err := page.Locate(ctx, candidate, probe)
		if err != nil {
			return false
		}
		healed = found
		return true
	}, tc.ID+"/"+step.ID)
	r.metrics.ObserveHeal(herr == nil)
	if herr != nil {
		if !errors.Is(herr, healing.ErrExhausted) {
			log.Debug("Healing aborted", "step", step.ID, "error", herr)
		}
		return nil, lookupErr
	}

	log.Debug("Selector healed", "step", step.ID, "original", selector, "healed", res.Selector, "attempts", res.Attempts)
	at.healed = append(at.healed, plan.HealedTarget{
		StepID:   step.ID,
		Original: selector,
		Healed:   res.Selector,
	})
	return healed, nil
}

func (r *Runner) canHeal(t *plan.Target) bool {
	if r.healer == nil || !t.IsDescriptor() {
		return false
	}
	return t.Element.Confidence >= r.opts.HealThreshold
}

// executeWait waits for a target to reach a state. Without a target it waits
// for the document to load, or pauses when no load state is named.
func (r *Runner) executeWait(ctx context.Context, page driver.Page, tc plan.TestCase, step plan.Step, at *attempt, log logger.Interface) error {
	var state string
	if step.Options != nil {
		state = step.Options.WaitFor
	}

	if step.Target.Primary() == "" {
		switch driver.WaitUntil(state) {
		case driver.WaitLoad, driver.WaitDOMContentLoaded, driver.WaitNetworkIdle:
			timeout := step.TimeoutOr(r.opts.Timeout)
			return withTimeout(ctx, timeout, func(ctx context.Context) error {
				if err := page.Evaluate(ctx, loadedScript, nil); err != nil {
					return fmt.Errorf("wait for %s: %w", state, err)
				}
				return nil
			})
		}
		return sleep(ctx, step.TimeoutOr(defaultWait))
	}

	timeout := step.TimeoutOr(r.opts.Timeout)
	if state == "" {
		state = "visible"
	}

	switch state {
	case "hidden", "detached":
		return waitHidden(ctx, page, step.Target.Primary(), timeout)
	default:
		el, err := r.locate(ctx, page, tc, step, timeout, at, log)
		if err != nil {
			return err
		}
		if state == "attached" {
			return nil
		}
		return withTimeout(ctx, timeout, func(ctx context.Context) error {
			return pollUntil(ctx, func() (bool, error) {
				return el.IsVisible(ctx)
			}, fmt.Sprintf("waiting for %s to be visible", step.Target.Primary()))
		})
	}
}

func waitHidden(ctx context.Context, page driver.Page, selector string, timeout time.Duration) error {
	return withTimeout(ctx, timeout, func(ctx context.Context) error {
		return pollUntil(ctx, func() (bool, error) {
			el, err := page.Locate(ctx, selector, pollInterval)
			if err != nil {
				return true, nil
			}
			visible, err := el.IsVisible(ctx)
			if err != nil {
				return true, nil
			}
			return !visible, nil
		}, fmt.Sprintf("waiting for %s to be hidden", selector))
	})
}

func (r *Runner) executeScreenshot(ctx context.Context, page driver.Page, tc plan.TestCase, step plan.Step, at *attempt) error {
	shot, err := page.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	name := step.Value
	if name == "" {
		name = fmt.Sprintf("%s-%s", tc.ID, step.ID)
	}
	if !strings.HasSuffix(name, ".png") {
		name += ".png"
	}
	path, err := capture.WriteFile(at.dir, name, shot)
	if err != nil {
		return err
	}
	at.artifacts = append(at.artifacts, path)
	return nil
}

// withTimeout runs fn under a deadline of d. Expiry is reported as a
// timeout unless the parent context ended first.
func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(tctx)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", d, err)
	}
	return err
}

// pollUntil calls cond every pollInterval until it reports true or ctx ends.
func pollUntil(ctx context.Context, cond func() (bool, error), what string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := cond()
		if err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
