// Package triage classifies test failures by their error message, suggests
// remediations and clusters recorded failures for review.
package triage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/v0xg/webprobe/internal/knowledge"
)

// ErrorType is a failure category.
type ErrorType string

const (
	ErrorTimeout    ErrorType = "timeout"
	ErrorSelector   ErrorType = "selector"
	ErrorNavigation ErrorType = "navigation"
	ErrorDetached   ErrorType = "detached"
	ErrorOverlay    ErrorType = "overlay"
	ErrorAuth       ErrorType = "auth"
	ErrorNetwork    ErrorType = "network"
	ErrorAssertion  ErrorType = "assertion"
	ErrorUnknown    ErrorType = "unknown"
)

// clusterLimit bounds the failures fetched per type when clustering.
const clusterLimit = 50

// classificationRule maps message substrings to a type.
type classificationRule struct {
	errorType ErrorType
	keywords  []string
	fix       string
}

// classificationRules is evaluated in order; the first match wins.
var classificationRules = []classificationRule{
	{
		errorType: ErrorTimeout,
		keywords:  []string{"timeout", "timed out"},
		fix:       "Increase timeout or add explicit wait for element/network idle. Check if page is slow to load.",
	},
	{
		errorType: ErrorSelector,
		keywords:  []string{"selector", "not found", "no element"},
		fix:       "Selector may have changed. Enable auto-healing or update selector. Consider using data-testid or stable attributes.",
	},
	{
		errorType: ErrorNavigation,
		keywords:  []string{"navigation", "navigating"},
		fix:       "Add wait for navigation to complete (networkidle/load). Check if navigation triggers are stable.",
	},
	{
		errorType: ErrorDetached,
		keywords:  []string{"detached", "stale element"},
		fix:       "Element detached from DOM during action. Add retry logic or wait for DOM to stabilize.",
	},
	{
		errorType: ErrorOverlay,
		keywords:  []string{"overlay", "obscured", "covered"},
		fix:       "Element obscured by overlay/modal. Close overlay first or scroll element into view.",
	},
	{
		errorType: ErrorAuth,
		keywords:  []string{"auth", "unauthorized", "403", "401"},
		fix:       "Session expired or auth required. Refresh session, re-login, or check auth strategy.",
	},
	{
		errorType: ErrorNetwork,
		keywords:  []string{"network", "net::", "failed to fetch"},
		fix:       "Network request failed. Check API availability, add retry logic, or mock network responses.",
	},
	{
		errorType: ErrorAssertion,
		keywords:  []string{"expect", "assert"},
		fix:       "Assertion failed. Verify expected value is correct or update test data.",
	},
}

const unknownFix = "Unknown error. Review error message and test flow."

// Types lists the classifiable error types in rule order, excluding unknown.
func Types() []ErrorType {
	out := make([]ErrorType, 0, len(classificationRules))
	for _, r := range classificationRules {
		out = append(out, r.errorType)
	}
	return out
}

// Classify returns the type of the first rule whose keywords occur in
// message, case-insensitively.
func Classify(message string) ErrorType {
	msg := strings.ToLower(message)
	for _, rule := range classificationRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.errorType
			}
		}
	}
	return ErrorUnknown
}

// SuggestFix returns the remediation hint for an error type.
func SuggestFix(t ErrorType) string {
	for _, rule := range classificationRules {
		if rule.errorType == t {
			return rule.fix
		}
	}
	return unknownFix
}

// FailureSource lists unresolved failures by type.
type FailureSource interface {
	FailuresByType(ctx context.Context, errorType string, limit int) ([]knowledge.TestFailure, error)
}

// FailureCluster is a group of unresolved failures of one type.
type FailureCluster struct {
	ErrorType    ErrorType               `json:"errorType"`
	Count        int                     `json:"count"`
	Failures     []knowledge.TestFailure `json:"failures"`
	SuggestedFix string                  `json:"suggestedFix"`
}

// Cluster groups unresolved failures by type, largest cluster first. At
// most 50 failures are fetched per type; empty types are omitted.
func Cluster(ctx context.Context, src FailureSource) ([]FailureCluster, error) {
	var clusters []FailureCluster
	for _, t := range Types() {
		failures, err := src.FailuresByType(ctx, string(t), clusterLimit)
		if err != nil {
			return nil, fmt.Errorf("cluster %s failures: %w", t, err)
		}
		if len(failures) == 0 {
			continue
		}
		clusters = append(clusters, FailureCluster{
			ErrorType:    t,
			Count:        len(failures),
			Failures:     failures,
			SuggestedFix: SuggestFix(t),
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Count > clusters[j].Count
	})
	return clusters, nil
}
