package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/v0xg/webprobe/internal/ai"
	"github.com/v0xg/webprobe/internal/coverage"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/knowledge"
	"github.com/v0xg/webprobe/internal/plan"
	"github.com/v0xg/webprobe/internal/triage"
)

// messageWidth truncates long error messages in tables.
const messageWidth = 80

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle("%s", title)
	return t
}

func printGraph(g *graph.Graph) {
	t := newTable(fmt.Sprintf("%s (%s)", g.AppName, g.BaseURL))
	t.AppendHeader(table.Row{"Route", "Name", "Elements", "Forms"})
	for _, n := range g.RouteNodes() {
		t.AppendRow(table.Row{n.Route, n.Name, len(n.Elements), len(n.Forms)})
	}
	t.AppendFooter(table.Row{"Total", "", g.Metadata.TotalElements, g.Metadata.TotalForms})
	t.Render()
}

func printCoverage(s coverage.Snapshot, goals plan.CoverageTarget) {
	t := newTable("Coverage")
	t.AppendHeader(table.Row{"Dimension", "Covered", "Total", "Coverage", "Goal"})
	ratio := func(name string, r coverage.Ratio, goal *float64) {
		t.AppendRow(table.Row{name, r.Covered, r.Total, fmt.Sprintf("%d%%", r.Percentage), percentGoal(goal)})
	}
	ratio("Routes", s.Routes.Ratio, goals.Routes)
	ratio("Elements", s.Elements, goals.Elements)
	ratio("Forms", s.Forms, goals.Forms)
	t.AppendRow(table.Row{"Assertions", s.Assertions, "", "", countGoal(goals.Assertions)})
	t.AppendRow(table.Row{"Flows", s.Flows, "", "", countGoal(goals.Flows)})
	t.Render()
}

func percentGoal(g *float64) string {
	if g == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *g)
}

func countGoal(g *int) string {
	if g == nil {
		return "-"
	}
	return fmt.Sprintf("≥ %d", *g)
}

func printRun(res *plan.RunResult) {
	t := newTable("Run " + res.RunID)
	t.AppendHeader(table.Row{"Suite", "Test", "Status", "Retries", "Duration", "Error"})
	for _, s := range res.Suites {
		for _, tr := range s.Tests {
			var msg string
			if tr.Error != nil {
				msg = fmt.Sprintf("[%s] %s", tr.Error.Type, truncate(tr.Error.Message, messageWidth))
			}
			if len(tr.HealedSelector) > 0 {
				msg = strings.TrimSpace(msg + fmt.Sprintf(" (healed %d selectors)", len(tr.HealedSelector)))
			}
			t.AppendRow(table.Row{s.SuiteName, tr.TestName, strings.ToUpper(string(tr.Status)), tr.Retries, fmt.Sprintf("%dms", tr.Duration), msg})
		}
	}
	sum := res.Summary
	t.AppendFooter(table.Row{
		"Total",
		sum.TotalTests,
		fmt.Sprintf("%d passed, %d failed, %d flaky", sum.Passed, sum.Failed, sum.Flaky),
		"",
		fmt.Sprintf("%dms", res.Duration),
		fmt.Sprintf("%.1f%% pass rate", sum.PassRate),
	})
	t.Render()
}

func printClusters(clusters []triage.FailureCluster) {
	if len(clusters) == 0 {
		fmt.Println("No unresolved failures.")
		return
	}
	for _, c := range clusters {
		t := newTable(fmt.Sprintf("%s (%d)", c.ErrorType, c.Count))
		t.AppendHeader(table.Row{"ID", "Test", "Route", "Selector", "Message"})
		for _, f := range c.Failures {
			t.AppendRow(table.Row{f.ID, f.TestName, f.Route, f.Selector, truncate(f.ErrorMessage, messageWidth)})
		}
		t.SetCaption("Suggested fix: %s", c.SuggestedFix)
		t.Render()
	}
}

func printFlaky(flaky []knowledge.FlakyTest) {
	if len(flaky) == 0 {
		return
	}
	t := newTable("Flaky tests")
	t.AppendHeader(table.Row{"Test", "Runs", "Failures", "Flakiness", "Last failure"})
	for _, f := range flaky {
		last := "-"
		if f.LastFailure != nil {
			last = f.LastFailure.Local().Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{f.TestName, f.TotalRuns, f.Failures, fmt.Sprintf("%.0f%%", f.FlakinessScore*100), last})
	}
	t.Render()
}

func printSignature(sig *knowledge.ElementSignature, attempts []knowledge.SelectorAttempt) {
	t := newTable(fmt.Sprintf("Element %s (%s)", sig.ElementID, sig.Role))
	t.AppendRow(table.Row{"Primary", sig.PrimarySelector})
	t.AppendRow(table.Row{"Alternatives", strings.Join(sig.AlternativeSelectors, "\n")})
	t.AppendRow(table.Row{"Successes", sig.SuccessCount})
	t.AppendRow(table.Row{"Failures", sig.FailCount})
	t.AppendRow(table.Row{"Last seen", sig.LastSeen.Local().Format("2006-01-02 15:04")})
	t.Render()

	if len(attempts) == 0 {
		return
	}
	at := newTable("Recent attempts")
	at.AppendHeader(table.Row{"Time", "Selector", "Result", "Context"})
	for _, a := range attempts {
		result := "miss"
		if a.Success {
			result = "hit"
		}
		at.AppendRow(table.Row{a.Timestamp.Local().Format("2006-01-02 15:04:05"), a.Selector, result, a.Context})
	}
	at.Render()
}

func printAdvice(advice []ai.Advice) {
	t := newTable("Advice")
	t.AppendHeader(table.Row{"Type", "Test", "Diagnosis", "Actions", "Confidence"})
	for _, a := range advice {
		t.AppendRow(table.Row{a.ErrorType, a.TestID, a.Diagnosis, strings.Join(a.Actions, "\n"), fmt.Sprintf("%.0f%%", a.Confidence*100)})
	}
	t.Render()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
