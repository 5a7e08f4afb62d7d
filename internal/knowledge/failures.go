package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TestFailure is one recorded test failure.
type TestFailure struct {
	ID           int64     `json:"id"`
	TestID       string    `json:"testId"`
	TestName     string    `json:"testName"`
	Route        string    `json:"route,omitempty"`
	ErrorType    string    `json:"errorType"`
	ErrorMessage string    `json:"errorMessage"`
	Selector     string    `json:"selector,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Resolved     bool      `json:"resolved"`
	SuggestedFix string    `json:"suggestedFix,omitempty"`
}

// FlakyTest is the pass/fail history of one test.
type FlakyTest struct {
	TestID         string     `json:"testId"`
	TestName       string     `json:"testName"`
	TotalRuns      int        `json:"totalRuns"`
	Failures       int        `json:"failures"`
	FlakinessScore float64    `json:"flakinessScore"`
	LastFailure    *time.Time `json:"lastFailure,omitempty"`
}

const failureColumns = `id, test_id, test_name, route, error_type, error_message,
	selector, timestamp, resolved, suggested_fix`

type failureRow struct {
	ID           int64  `db:"id"`
	TestID       string `db:"test_id"`
	TestName     string `db:"test_name"`
	Route        string `db:"route"`
	ErrorType    string `db:"error_type"`
	ErrorMessage string `db:"error_message"`
	Selector     string `db:"selector"`
	Timestamp    string `db:"timestamp"`
	Resolved     int    `db:"resolved"`
	SuggestedFix string `db:"suggested_fix"`
}

func (r failureRow) failure() TestFailure {
	return TestFailure{
		ID:           r.ID,
		TestID:       r.TestID,
		TestName:     r.TestName,
		Route:        r.Route,
		ErrorType:    r.ErrorType,
		ErrorMessage: r.ErrorMessage,
		Selector:     r.Selector,
		Timestamp:    parseTime(r.Timestamp),
		Resolved:     r.Resolved != 0,
		SuggestedFix: r.SuggestedFix,
	}
}

// RecordFailure appends a failure and returns its id.
func (s *Store) RecordFailure(ctx context.Context, f TestFailure) (int64, error) {
	ts := s.timestamp()
	if !f.Timestamp.IsZero() {
		ts = formatTime(f.Timestamp)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO test_failures (
			test_id, test_name, route, error_type, error_message,
			selector, timestamp, resolved, suggested_fix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TestID, f.TestName, f.Route, f.ErrorType, f.ErrorMessage,
		f.Selector, ts, boolToInt(f.Resolved), f.SuggestedFix,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record failure of %s: %w", f.TestID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get failure id: %w", err)
	}
	return id, nil
}

// FailuresByType returns up to limit unresolved failures of a type, newest
// first. A non-positive limit means 50.
func (s *Store) FailuresByType(ctx context.Context, errorType string, limit int) ([]TestFailure, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []failureRow
	query := `SELECT ` + failureColumns + ` FROM test_failures
		WHERE error_type = ? AND resolved = 0
		ORDER BY timestamp DESC, id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, errorType, limit); err != nil {
		return nil, fmt.Errorf("failed to list %s failures: %w", errorType, err)
	}
	failures := make([]TestFailure, 0, len(rows))
	for _, r := range rows {
		failures = append(failures, r.failure())
	}
	return failures, nil
}

// MarkFailureResolved flags a failure as resolved.
func (s *Store) MarkFailureResolved(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE test_failures SET resolved = 1 WHERE id = ?`, id)
	if err := execRequireRows(result, err, ErrNotFound); err != nil {
		return fmt.Errorf("failed to resolve failure %d: %w", id, err)
	}
	return nil
}

// RecordTestRun folds one run outcome into the test's flakiness history.
func (s *Store) RecordTestRun(ctx context.Context, testID, testName string, passed bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing struct {
		TotalRuns int `db:"total_runs"`
		Failures  int `db:"failures"`
	}
	err = tx.GetContext(ctx, &existing, `SELECT total_runs, failures FROM flaky_tests WHERE test_id = ?`, testID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		failures := 0
		var lastFailure any
		if !passed {
			failures = 1
			lastFailure = s.timestamp()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO flaky_tests (test_id, test_name, total_runs, failures, flakiness_score, last_failure)
			VALUES (?, ?, 1, ?, ?, ?)`,
			testID, testName, failures, float64(failures), lastFailure)
	case err != nil:
		return fmt.Errorf("failed to read run history of %s: %w", testID, err)
	default:
		total := existing.TotalRuns + 1
		failures := existing.Failures
		if !passed {
			failures++
		}
		score := float64(failures) / float64(total)
		if passed {
			_, err = tx.ExecContext(ctx, `
				UPDATE flaky_tests SET test_name = ?, total_runs = ?, failures = ?, flakiness_score = ?
				WHERE test_id = ?`,
				testName, total, failures, score, testID)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE flaky_tests SET test_name = ?, total_runs = ?, failures = ?, flakiness_score = ?, last_failure = ?
				WHERE test_id = ?`,
				testName, total, failures, score, s.timestamp(), testID)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to record run of %s: %w", testID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run of %s: %w", testID, err)
	}
	return nil
}

// FlakyTests returns tests with at least three runs whose flakiness score
// reaches threshold, most flaky first. Non-positive arguments fall back to
// a 0.1 threshold and a limit of 20.
func (s *Store) FlakyTests(ctx context.Context, threshold float64, limit int) ([]FlakyTest, error) {
	if threshold <= 0 {
		threshold = 0.1
	}
	if limit <= 0 {
		limit = 20
	}
	var rows []struct {
		TestID         string         `db:"test_id"`
		TestName       string         `db:"test_name"`
		TotalRuns      int            `db:"total_runs"`
		Failures       int            `db:"failures"`
		FlakinessScore float64        `db:"flakiness_score"`
		LastFailure    sql.NullString `db:"last_failure"`
	}
	query := `SELECT test_id, test_name, total_runs, failures, flakiness_score, last_failure
		FROM flaky_tests
		WHERE flakiness_score >= ? AND total_runs >= 3
		ORDER BY flakiness_score DESC, test_id ASC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, threshold, limit); err != nil {
		return nil, fmt.Errorf("failed to list flaky tests: %w", err)
	}

	out := make([]FlakyTest, 0, len(rows))
	for _, r := range rows {
		out = append(out, FlakyTest{
			TestID:         r.TestID,
			TestName:       r.TestName,
			TotalRuns:      r.TotalRuns,
			Failures:       r.Failures,
			FlakinessScore: r.FlakinessScore,
			LastFailure:    parseNullTime(r.LastFailure),
		})
	}
	return out, nil
}
