package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/v0xg/webprobe/internal/graph"
)

// TargetKind tags the variant held by a Target.
type TargetKind string

const (
	TargetRaw        TargetKind = "raw"
	TargetDescriptor TargetKind = "descriptor"
)

var errEmptyTarget = errors.New("empty target")

// Target is either a literal selector or an element descriptor. Descriptors
// carry fallback selectors and are eligible for healing.
//
// On the wire a raw target is a bare JSON string and a descriptor target is
// the element object.
type Target struct {
	Kind     TargetKind
	Selector string
	Element  *graph.ElementDescriptor
}

// Raw returns a literal selector target.
func Raw(selector string) *Target {
	return &Target{Kind: TargetRaw, Selector: selector}
}

// Descriptor returns an element target.
func Descriptor(el graph.ElementDescriptor) *Target {
	return &Target{Kind: TargetDescriptor, Element: &el}
}

// IsDescriptor reports whether the target carries an element descriptor.
func (t *Target) IsDescriptor() bool {
	return t != nil && t.Kind == TargetDescriptor && t.Element != nil
}

// Primary returns the selector to try first.
func (t *Target) Primary() string {
	if t == nil {
		return ""
	}
	if t.IsDescriptor() {
		return t.Element.Selector.Primary
	}
	return t.Selector
}

// Identifier returns the element id for descriptors and the selector for raw
// targets.
func (t *Target) Identifier() string {
	if t == nil {
		return ""
	}
	if t.IsDescriptor() {
		return t.Element.Identifier()
	}
	return t.Selector
}

// String implements fmt.Stringer.
func (t *Target) String() string {
	return t.Primary()
}

// MarshalJSON implements json.Marshaler.
func (t Target) MarshalJSON() ([]byte, error) {
	if t.Kind == TargetDescriptor && t.Element != nil {
		return json.Marshal(t.Element)
	}
	return json.Marshal(t.Selector)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Target) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errEmptyTarget
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode raw target: %w", err)
		}
		*t = Target{Kind: TargetRaw, Selector: s}
		return nil
	}
	var el graph.ElementDescriptor
	if err := json.Unmarshal(data, &el); err != nil {
		return fmt.Errorf("decode element target: %w", err)
	}
	*t = Target{Kind: TargetDescriptor, Element: &el}
	return nil
}
