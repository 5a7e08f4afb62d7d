package runner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/v0xg/webprobe/internal/capture"
	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/knowledge"
	"github.com/v0xg/webprobe/internal/logger"
	"github.com/v0xg/webprobe/internal/plan"
	"github.com/v0xg/webprobe/internal/triage"
)

// stepError ties a failure to the step or assertion that raised it.
type stepError struct {
	stepID   string
	selector string
	err      error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// attempt holds the state of one pass over a test flow.
type attempt struct {
	dir       string
	steps     []plan.StepResult
	healed    []plan.HealedTarget
	artifacts []string
	replay    *capture.Replay
	// mark is the box of the element the last step acted on.
	mark      *image.Rectangle
}

// runTest executes tc on a fresh page, retrying the whole flow after a
// reload. The returned error is reserved for failures outside the test
// itself, such as a page that cannot be opened.
func (r *Runner) runTest(ctx context.Context, browser driver.Browser, tc plan.TestCase, dir string, log logger.Interface) (plan.TestResult, error) {
	log = log.With("test", tc.Name)
	res := plan.TestResult{
		TestID:    tc.ID,
		TestName:  tc.Name,
		StartTime: time.Now(),
		Artifacts: []string{},
	}

	page, err := browser.NewPage(ctx)
	if err != nil {
		return res, fmt.Errorf("open page for %s: %w", tc.Name, err)
	}
	defer page.Close()

	var (
		last    *attempt
		lastErr error
	)
	for try := 0; try <= r.opts.Retries; try++ {
		if try > 0 {
			log.Warn("Test failed, retrying", "attempt", try, "error", lastErr)
			if err := page.Reload(ctx); err != nil {
				log.Debug("Reload before retry failed", "error", err)
			}
			res.Retries = try
		}

		last = &attempt{dir: dir}
		if r.opts.ReplayOnFail {
			last.replay = &capture.Replay{}
		}
		lastErr = r.runAttempt(ctx, page, tc, last, log)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		r.recordFailure(ctx, tc, errorDetails(lastErr), log)
	}

	res.Steps = last.steps
	res.HealedSelector = last.healed
	res.Artifacts = append(res.Artifacts, last.artifacts...)
	switch {
	case lastErr == nil && res.Retries > 0:
		res.Status = plan.StatusFlaky
	case lastErr == nil:
		res.Status = plan.StatusPass
	default:
		res.Status = plan.StatusFail
		res.Error = r.describeFailure(ctx, page, tc, lastErr, last, dir, &res, log)
	}
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime).Milliseconds()

	r.learn(ctx, tc, res, log)
	if res.Status == plan.StatusFail {
		log.Warn("Test failed", "error", res.Error.Message, "type", res.Error.Type)
	} else {
		log.Info("Test passed", "status", res.Status, "retries", res.Retries)
	}
	return res, nil
}

// runAttempt runs the flow then the assertions, stopping at the first
// failure.
func (r *Runner) runAttempt(ctx context.Context, page driver.Page, tc plan.TestCase, at *attempt, log logger.Interface) error {
	for _, step := range tc.Flow {
		began := time.Now()
		err := r.executeStep(ctx, page, tc, step, at, log)
		sr := plan.StepResult{
			StepID:   step.ID,
			Action:   step.Action,
			Status:   plan.StatusPass,
			Duration: time.Since(began).Milliseconds(),
		}
		if err != nil {
			sr.Status = plan.StatusFail
			sr.Error = err.Error()
		}
		at.steps = append(at.steps, sr)
		r.captureFrame(ctx, page, at)
		if err != nil {
			return &stepError{stepID: step.ID, selector: step.Target.Primary(), err: err}
		}
	}

	for i, a := range tc.Assertions {
		if err := r.checkAssertion(ctx, page, a); err != nil {
			return &stepError{
				stepID:   fmt.Sprintf("assertion-%d", i),
				selector: a.Target.Primary(),
				err:      err,
			}
		}
	}
	return nil
}

func (r *Runner) captureFrame(ctx context.Context, page driver.Page, at *attempt) {
	if at.replay == nil {
		return
	}
	shot, err := page.Screenshot(ctx)
	if err != nil {
		return
	}
	if at.mark != nil {
		_ = at.replay.AddMarked(shot, *at.mark)
		at.mark = nil
		return
	}
	_ = at.replay.Add(shot)
}

// describeFailure classifies err and writes failure artifacts.
func (r *Runner) describeFailure(ctx context.Context, page driver.Page, tc plan.TestCase, err error, at *attempt, dir string, res *plan.TestResult, log logger.Interface) *plan.ErrorDetails {
	details := errorDetails(err)

	if r.opts.ScreenshotOnFail {
		shot, err := page.Screenshot(ctx)
		if err == nil {
			shot = highlightFailure(ctx, page, details.Selector, shot)
			var path string
			path, err = capture.WriteFile(dir, tc.ID+"-fail.png", shot)
			if err == nil {
				details.Screenshot = path
				res.Artifacts = append(res.Artifacts, path)
			}
		}
		if err != nil {
			log.Debug("Failure screenshot not captured", "error", err)
		}
	}

	if at.replay != nil && at.replay.Len() > 0 {
		path := filepath.Join(dir, tc.ID+"-replay.gif")
		if _, err := at.replay.Write(path, capture.ReplayOptions{}); err != nil {
			log.Debug("Replay not written", "error", err)
		} else {
			res.Artifacts = append(res.Artifacts, path)
		}
	}
	return details
}

// errorDetails classifies err and extracts the selector of the failing step.
func errorDetails(err error) *plan.ErrorDetails {
	msg := err.Error()
	errType := triage.Classify(msg)
	details := &plan.ErrorDetails{
		Message:      msg,
		Type:         string(errType),
		SuggestedFix: triage.SuggestFix(errType),
	}
	var se *stepError
	if errors.As(err, &se) {
		details.Selector = se.selector
	}
	return details
}

// highlightFailure outlines selector on shot when the element can still be
// found.
func highlightFailure(ctx context.Context, page driver.Page, selector string, shot []byte) []byte {
	if selector == "" {
		return shot
	}
	el, err := page.Locate(ctx, selector, highlightTimeout)
	if err != nil {
		return shot
	}
	box, err := el.Bounds(ctx)
	if err != nil {
		return shot
	}
	marked, err := capture.Highlight(shot, box)
	if err != nil {
		return shot
	}
	return marked
}

// learn records the outcome in the knowledge base, when one is open. A test
// that passed on retry counts as a passing run.
func (r *Runner) learn(ctx context.Context, tc plan.TestCase, res plan.TestResult, log logger.Interface) {
	kb := r.opts.Knowledge
	if kb == nil {
		return
	}
	if err := kb.RecordTestRun(ctx, tc.ID, tc.Name, res.Status != plan.StatusFail); err != nil {
		log.Warn("Failed to record test run", "error", err)
	}
}

// recordFailure stores one failed attempt in the knowledge base, when one is
// open. Every attempt is recorded, so failures of flaky tests reach triage.
func (r *Runner) recordFailure(ctx context.Context, tc plan.TestCase, details *plan.ErrorDetails, log logger.Interface) {
	kb := r.opts.Knowledge
	if kb == nil {
		return
	}
	if _, err := kb.RecordFailure(ctx, knowledge.TestFailure{
		TestID:       tc.ID,
		TestName:     tc.Name,
		Route:        testRoute(tc, r.opts.BaseURL),
		ErrorType:    details.Type,
		ErrorMessage: details.Message,
		Selector:     details.Selector,
		SuggestedFix: details.SuggestedFix,
	}); err != nil {
		log.Warn("Failed to record failure", "error", err)
	}
}

// testRoute returns the route of the first navigation of tc.
func testRoute(tc plan.TestCase, baseURL string) string {
	for _, s := range tc.Flow {
		if s.Action == plan.ActionNavigate && s.Target != nil {
			return graph.RouteOf(s.Target.Primary(), baseURL)
		}
	}
	return ""
}
