// Package healing recovers from stale selectors by trying alternative
// selectors derived from an element descriptor, recording every attempt in
// the knowledge base.
package healing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/knowledge"
	"github.com/v0xg/webprobe/internal/logger"
)

// ErrExhausted is returned when no alternative selector matched.
var ErrExhausted = errors.New("healing: alternatives exhausted")

// maxTextLen bounds the text used in :has-text selectors.
const maxTextLen = 30

// Store is the subset of the knowledge base used for healing.
type Store interface {
	GetSignature(ctx context.Context, id string) (*knowledge.ElementSignature, error)
	UpsertSignature(ctx context.Context, sig knowledge.ElementSignature) error
	RecordAttempt(ctx context.Context, a knowledge.SelectorAttempt) error
	IncrementSuccess(ctx context.Context, id string) error
	IncrementFail(ctx context.Context, id string) error
}

// TryFunc reports whether selector locates the element on the live page.
type TryFunc func(ctx context.Context, selector string) bool

// Result describes a successful heal.
type Result struct {
	Selector string
	Attempts int
}

// Alternatives derives candidate selectors from an element, without
// duplicates, in derivation order.
func Alternatives(el graph.ElementDescriptor) []string {
	attrs := el.Attributes
	var out []string

	if v := attrs["aria-label"]; v != "" {
		out = append(out, fmt.Sprintf(`[aria-label="%s"]`, driver.Quote(v)))
	}
	if el.Role != "" && el.Name != "" {
		out = append(out, fmt.Sprintf(`[role="%s"][name="%s"]`, el.Role, driver.Quote(el.Name)))
	}
	if text := strings.TrimSpace(el.Text); text != "" && (el.Type == "button" || el.Type == "link") {
		out = append(out, fmt.Sprintf(`%s:has-text("%s")`, el.Type, driver.Quote(truncate(text, maxTextLen))))
	}
	if v := attrs["data-testid"]; v != "" {
		out = append(out, fmt.Sprintf(`[data-testid="%s"]`, driver.Quote(v)))
	}
	if v := attrs["data-test"]; v != "" {
		out = append(out, fmt.Sprintf(`[data-test="%s"]`, driver.Quote(v)))
	}
	if v := attrs["id"]; v != "" {
		out = append(out, "#"+v)
	}
	if el.Placeholder != "" {
		out = append(out, fmt.Sprintf(`[placeholder="%s"]`, driver.Quote(el.Placeholder)))
	}
	if v := attrs["name"]; v != "" && el.Type != "" {
		out = append(out, fmt.Sprintf(`%s[name="%s"]`, el.Type, driver.Quote(v)))
	}

	return dedupe(out)
}

// Rank orders selectors by expected stability: test id, then #id, then
// aria-label, role, text and everything else. Ties sort lexicographically so
// the result is deterministic.
func Rank(selectors []string) []string {
	ranked := append([]string(nil), selectors...)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i] < ranked[j]
	})
	return ranked
}

func score(selector string) int {
	switch {
	case strings.Contains(selector, "data-testid"):
		return 100
	case strings.HasPrefix(selector, "#"):
		return 90
	case strings.Contains(selector, "aria-label"):
		return 80
	case strings.Contains(selector, "[role="):
		return 70
	case strings.Contains(selector, ":has-text"):
		return 60
	default:
		return 40
	}
}

// Healer runs the healing loop against a knowledge base.
type Healer struct {
	store Store
	log   logger.Interface
}

// New returns a healer backed by store.
func New(store Store, log logger.Interface) *Healer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Healer{store: store, log: log}
}

// Heal tries the ranked alternatives of el until try succeeds. Stored
// alternatives of the element's signature take precedence over freshly
// derived ones; the failed primary selector is not retried. Every attempt is
// recorded with attemptCtx. On success the signature is refreshed with the
// working selector as primary.
func (h *Healer) Heal(ctx context.Context, el graph.ElementDescriptor, try TryFunc, attemptCtx string) (Result, error) {
	sigID := el.Identifier()
	if sigID == "" {
		return Result{}, ErrExhausted
	}

	sig, err := h.store.GetSignature(ctx, sigID)
	switch {
	case errors.Is(err, knowledge.ErrNotFound):
		sig = nil
	case err != nil:
		h.log.Warn("Failed to load element signature", "element", sigID, "error", err)
		sig = nil
	}

	var candidates []string
	if sig != nil && len(sig.AlternativeSelectors) > 0 {
		// A previously healed selector is stored as the signature primary.
		candidates = dedupe(append([]string{sig.PrimarySelector}, sig.AlternativeSelectors...))
	} else {
		candidates = Alternatives(el)
	}
	if sig == nil {
		// Counters need a row to update.
		sig = newSignature(el, candidates)
		if err := h.store.UpsertSignature(ctx, *sig); err != nil {
			h.log.Warn("Failed to store element signature", "element", sigID, "error", err)
		}
	}

	attempts := 0
	for _, sel := range Rank(candidates) {
		if sel == el.Selector.Primary {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempts}, err
		}
		attempts++
		ok := try(ctx, sel)
		if err := h.store.RecordAttempt(ctx, knowledge.SelectorAttempt{
			SignatureID: sigID,
			Selector:    sel,
			Success:     ok,
			Context:     attemptCtx,
		}); err != nil {
			h.log.Warn("Failed to record selector attempt", "element", sigID, "error", err)
		}
		if !ok {
			continue
		}

		if err := h.store.IncrementSuccess(ctx, sigID); err != nil {
			h.log.Warn("Failed to increment selector success", "element", sigID, "error", err)
		}
		h.refresh(ctx, *sig, el, sel, candidates)
		h.log.Info("Healed selector", "element", sigID, "from", el.Selector.Primary, "to", sel, "attempts", attempts)
		return Result{Selector: sel, Attempts: attempts}, nil
	}

	if err := h.store.IncrementFail(ctx, sigID); err != nil {
		h.log.Warn("Failed to increment selector failures", "element", sigID, "error", err)
	}
	h.log.Debug("Selector healing exhausted", "element", sigID, "attempts", attempts)
	return Result{Attempts: attempts}, ErrExhausted
}

// refresh moves the healed selector to primary and keeps the previous
// primary as an alternative.
func (h *Healer) refresh(ctx context.Context, sig knowledge.ElementSignature, el graph.ElementDescriptor, healed string, candidates []string) {
	alts := make([]string, 0, len(candidates)+1)
	for _, c := range candidates {
		if c != healed {
			alts = append(alts, c)
		}
	}
	if el.Selector.Primary != "" && el.Selector.Primary != healed {
		alts = append(alts, el.Selector.Primary)
	}

	sig.Text = el.Text
	sig.Attributes = el.Attributes
	sig.PrimarySelector = healed
	sig.AlternativeSelectors = dedupe(alts)
	sig.LastSeen = time.Time{}
	if err := h.store.UpsertSignature(ctx, sig); err != nil {
		h.log.Warn("Failed to refresh element signature", "element", sig.ID, "error", err)
	}
}

func newSignature(el graph.ElementDescriptor, alternatives []string) *knowledge.ElementSignature {
	return &knowledge.ElementSignature{
		ID:                   el.Identifier(),
		ElementID:            el.Identifier(),
		Role:                 el.Role,
		Text:                 el.Text,
		Attributes:           el.Attributes,
		PrimarySelector:      el.Selector.Primary,
		AlternativeSelectors: alternatives,
		Stability:            el.Selector.Stability,
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
