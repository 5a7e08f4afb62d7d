package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore opens a store in a fresh directory with a clock that
// advances one second per call.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nested", "kb.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return store
}

func TestOpen_CreatesDirectory(t *testing.T) {
	store := openTestStore(t)

	_, err := os.Stat(store.Path())
	require.NoError(t, err)

	// Reopening runs the schema again without error.
	again, err := Open(context.Background(), store.Path())
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestSignatures_UpsertKeepsCounters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sig := ElementSignature{
		ID:                   "el-1",
		Role:                 "button",
		Text:                 "Save",
		Attributes:           map[string]string{"data-testid": "save"},
		PrimarySelector:      `[data-testid="save"]`,
		AlternativeSelectors: []string{`button:has-text("Save")`},
		Stability:            0.95,
	}
	require.NoError(t, store.UpsertSignature(ctx, sig))
	require.NoError(t, store.IncrementSuccess(ctx, "el-1"))
	require.NoError(t, store.IncrementSuccess(ctx, "el-1"))
	require.NoError(t, store.IncrementFail(ctx, "el-1"))

	sig.Text = "Save changes"
	sig.Role = "link"
	sig.AlternativeSelectors = []string{`[aria-label="Save"]`}
	require.NoError(t, store.UpsertSignature(ctx, sig))

	got, err := store.GetSignature(ctx, "el-1")
	require.NoError(t, err)
	assert.Equal(t, "el-1", got.ElementID)
	assert.Equal(t, "Save changes", got.Text)
	assert.Equal(t, "button", got.Role, "role is not a mutable field")
	assert.Equal(t, []string{`[aria-label="Save"]`}, got.AlternativeSelectors)
	assert.Equal(t, map[string]string{"data-testid": "save"}, got.Attributes)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, 1, got.FailCount)
	assert.InDelta(t, 0.95, got.Stability, 1e-9)
}

func TestSignatures_NotFound(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.GetSignature(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetSignatureByElementID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.IncrementSuccess(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, store.IncrementFail(ctx, "missing"), ErrNotFound)
}

func TestSignatures_ByElementIDNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSignature(ctx, ElementSignature{
		ID: "sig-old", ElementID: "el-9", PrimarySelector: "#old",
	}))
	require.NoError(t, store.UpsertSignature(ctx, ElementSignature{
		ID: "sig-new", ElementID: "el-9", PrimarySelector: "#new",
	}))

	got, err := store.GetSignatureByElementID(ctx, "el-9")
	require.NoError(t, err)
	assert.Equal(t, "sig-new", got.ID)
	assert.Empty(t, got.AlternativeSelectors)
}

func TestAttempts_RecentNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i, sel := range []string{"#a", "#b", "#c"} {
		require.NoError(t, store.RecordAttempt(ctx, SelectorAttempt{
			SignatureID: "el-1",
			Selector:    sel,
			Success:     i == 2,
			Context:     "test-1",
		}))
	}
	require.NoError(t, store.RecordAttempt(ctx, SelectorAttempt{SignatureID: "el-2", Selector: "#z"}))

	attempts, err := store.RecentAttempts(ctx, "el-1", 2)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "#c", attempts[0].Selector)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "#b", attempts[1].Selector)
	assert.False(t, attempts[1].Success)
	assert.Equal(t, "test-1", attempts[1].Context)

	all, err := store.RecentAttempts(ctx, "el-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFailures_ByTypeAndResolve(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.RecordFailure(ctx, TestFailure{
		TestID: "t1", TestName: "Login", Route: "/login",
		ErrorType: "timeout", ErrorMessage: "Timeout 3000ms exceeded",
	})
	require.NoError(t, err)
	second, err := store.RecordFailure(ctx, TestFailure{
		TestID: "t2", TestName: "Save", ErrorType: "timeout",
		ErrorMessage: "timed out", Selector: "#save", SuggestedFix: "wait",
	})
	require.NoError(t, err)
	_, err = store.RecordFailure(ctx, TestFailure{TestID: "t3", ErrorType: "selector", ErrorMessage: "not found"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	failures, err := store.FailuresByType(ctx, "timeout", 0)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, second, failures[0].ID)
	assert.Equal(t, "#save", failures[0].Selector)
	assert.Equal(t, "wait", failures[0].SuggestedFix)
	assert.Equal(t, "/login", failures[1].Route)

	require.NoError(t, store.MarkFailureResolved(ctx, second))
	failures, err = store.FailuresByType(ctx, "timeout", 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, first, failures[0].ID)

	assert.ErrorIs(t, store.MarkFailureResolved(ctx, 9999), ErrNotFound)
}

func TestRecordTestRun_Score(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordTestRun(ctx, "t1", "Checkout", false))
	require.NoError(t, store.RecordTestRun(ctx, "t1", "Checkout", true))

	// Two runs are below the minimum history.
	flaky, err := store.FlakyTests(ctx, 0.1, 0)
	require.NoError(t, err)
	assert.Empty(t, flaky)

	require.NoError(t, store.RecordTestRun(ctx, "t1", "Checkout", true))
	require.NoError(t, store.RecordTestRun(ctx, "t1", "Checkout", false))

	flaky, err = store.FlakyTests(ctx, 0.1, 0)
	require.NoError(t, err)
	require.Len(t, flaky, 1)
	got := flaky[0]
	assert.Equal(t, "t1", got.TestID)
	assert.Equal(t, 4, got.TotalRuns)
	assert.Equal(t, 2, got.Failures)
	assert.InDelta(t, 0.5, got.FlakinessScore, 1e-9)
	require.NotNil(t, got.LastFailure)
}

func TestRecordTestRun_PassKeepsLastFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, passed := range []bool{false, true, true} {
		require.NoError(t, store.RecordTestRun(ctx, "t1", "Checkout", passed))
	}
	flaky, err := store.FlakyTests(ctx, 0.3, 5)
	require.NoError(t, err)
	require.Len(t, flaky, 1)
	require.NotNil(t, flaky[0].LastFailure)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC), *flaky[0].LastFailure)
}

func TestFlakyTests_OrderAndThreshold(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	runs := map[string][]bool{
		"stable": {true, true, true, true},
		"mild":   {true, true, true, false},
		"bad":    {false, false, true},
	}
	for id, outcomes := range runs {
		for _, passed := range outcomes {
			require.NoError(t, store.RecordTestRun(ctx, id, id, passed))
		}
	}

	flaky, err := store.FlakyTests(ctx, 0.2, 10)
	require.NoError(t, err)
	require.Len(t, flaky, 2)
	assert.Equal(t, "bad", flaky[0].TestID)
	assert.Equal(t, "mild", flaky[1].TestID)

	flaky, err = store.FlakyTests(ctx, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, flaky, 1)
	assert.Equal(t, "bad", flaky[0].TestID)
}
