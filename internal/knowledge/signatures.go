package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ElementSignature is the learned identity of an element, keyed by its
// descriptor id.
type ElementSignature struct {
	ID                   string
	ElementID            string
	Role                 string
	Text                 string
	Attributes           map[string]string
	PrimarySelector      string
	AlternativeSelectors []string
	Stability            float64
	LastSeen             time.Time
	SuccessCount         int
	FailCount            int
}

// SelectorAttempt is a single try of a selector during healing.
type SelectorAttempt struct {
	ID          int64
	SignatureID string
	Selector    string
	Success     bool
	Timestamp   time.Time
	Context     string
}

const signatureColumns = `id, element_id, role, text, attributes, primary_selector,
	alternative_selectors, stability, last_seen, success_count, fail_count`

type signatureRow struct {
	ID                   string  `db:"id"`
	ElementID            string  `db:"element_id"`
	Role                 string  `db:"role"`
	Text                 string  `db:"text"`
	Attributes           string  `db:"attributes"`
	PrimarySelector      string  `db:"primary_selector"`
	AlternativeSelectors string  `db:"alternative_selectors"`
	Stability            float64 `db:"stability"`
	LastSeen             string  `db:"last_seen"`
	SuccessCount         int     `db:"success_count"`
	FailCount            int     `db:"fail_count"`
}

func (r signatureRow) signature() (*ElementSignature, error) {
	sig := &ElementSignature{
		ID:              r.ID,
		ElementID:       r.ElementID,
		Role:            r.Role,
		Text:            r.Text,
		PrimarySelector: r.PrimarySelector,
		Stability:       r.Stability,
		LastSeen:        parseTime(r.LastSeen),
		SuccessCount:    r.SuccessCount,
		FailCount:       r.FailCount,
	}
	if err := json.Unmarshal([]byte(r.Attributes), &sig.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.AlternativeSelectors), &sig.AlternativeSelectors); err != nil {
		return nil, fmt.Errorf("failed to decode alternative selectors of %s: %w", r.ID, err)
	}
	return sig, nil
}

// UpsertSignature inserts sig, or refreshes the mutable fields (text,
// attributes, selectors, stability, last seen) of an existing signature.
// Counters are never reset.
func (s *Store) UpsertSignature(ctx context.Context, sig ElementSignature) error {
	attrs := sig.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	alts := sig.AlternativeSelectors
	if alts == nil {
		alts = []string{}
	}
	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	altJSON, err := json.Marshal(alts)
	if err != nil {
		return fmt.Errorf("failed to encode alternative selectors: %w", err)
	}
	lastSeen := s.timestamp()
	if !sig.LastSeen.IsZero() {
		lastSeen = formatTime(sig.LastSeen)
	}
	elementID := sig.ElementID
	if elementID == "" {
		elementID = sig.ID
	}

	query := `
		INSERT INTO element_signatures (
			id, element_id, role, text, attributes, primary_selector,
			alternative_selectors, stability, last_seen, success_count, fail_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			attributes = excluded.attributes,
			primary_selector = excluded.primary_selector,
			alternative_selectors = excluded.alternative_selectors,
			stability = excluded.stability,
			last_seen = excluded.last_seen
	`
	_, err = s.db.ExecContext(ctx, query,
		sig.ID, elementID, sig.Role, sig.Text, string(attrJSON), sig.PrimarySelector,
		string(altJSON), sig.Stability, lastSeen, sig.SuccessCount, sig.FailCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert signature %s: %w", sig.ID, err)
	}
	return nil
}

// GetSignature returns the signature with the given id.
func (s *Store) GetSignature(ctx context.Context, id string) (*ElementSignature, error) {
	var row signatureRow
	query := `SELECT ` + signatureColumns + ` FROM element_signatures WHERE id = ?`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get signature %s: %w", id, err)
	}
	return row.signature()
}

// GetSignatureByElementID returns the most recently seen signature of an
// element.
func (s *Store) GetSignatureByElementID(ctx context.Context, elementID string) (*ElementSignature, error) {
	var row signatureRow
	query := `SELECT ` + signatureColumns + ` FROM element_signatures
		WHERE element_id = ? ORDER BY last_seen DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &row, query, elementID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get signature for element %s: %w", elementID, err)
	}
	return row.signature()
}

// IncrementSuccess bumps the success counter and last seen time.
func (s *Store) IncrementSuccess(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE element_signatures SET success_count = success_count + 1, last_seen = ? WHERE id = ?`,
		s.timestamp(), id)
	if err := execRequireRows(result, err, ErrNotFound); err != nil {
		return fmt.Errorf("failed to increment success of %s: %w", id, err)
	}
	return nil
}

// IncrementFail bumps the failure counter.
func (s *Store) IncrementFail(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE element_signatures SET fail_count = fail_count + 1 WHERE id = ?`, id)
	if err := execRequireRows(result, err, ErrNotFound); err != nil {
		return fmt.Errorf("failed to increment failures of %s: %w", id, err)
	}
	return nil
}

// RecordAttempt appends a selector attempt.
func (s *Store) RecordAttempt(ctx context.Context, a SelectorAttempt) error {
	ts := s.timestamp()
	if !a.Timestamp.IsZero() {
		ts = formatTime(a.Timestamp)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO selector_attempts (signature_id, selector, success, timestamp, context) VALUES (?, ?, ?, ?, ?)`,
		a.SignatureID, a.Selector, boolToInt(a.Success), ts, a.Context)
	if err != nil {
		return fmt.Errorf("failed to record selector attempt: %w", err)
	}
	return nil
}

// RecentAttempts returns up to limit attempts for a signature, newest first.
// A non-positive limit means 10.
func (s *Store) RecentAttempts(ctx context.Context, signatureID string, limit int) ([]SelectorAttempt, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []struct {
		ID          int64  `db:"id"`
		SignatureID string `db:"signature_id"`
		Selector    string `db:"selector"`
		Success     int    `db:"success"`
		Timestamp   string `db:"timestamp"`
		Context     string `db:"context"`
	}
	query := `SELECT id, signature_id, selector, success, timestamp, context
		FROM selector_attempts WHERE signature_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, signatureID, limit); err != nil {
		return nil, fmt.Errorf("failed to list selector attempts: %w", err)
	}

	attempts := make([]SelectorAttempt, 0, len(rows))
	for _, r := range rows {
		attempts = append(attempts, SelectorAttempt{
			ID:          r.ID,
			SignatureID: r.SignatureID,
			Selector:    r.Selector,
			Success:     r.Success != 0,
			Timestamp:   parseTime(r.Timestamp),
			Context:     r.Context,
		})
	}
	return attempts, nil
}
