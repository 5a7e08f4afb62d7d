package graph

import "encoding/json"

// CurrentVersion is the graph schema version written by this build.
const CurrentVersion = "6.1.0"

// legacyConstraints carries constraint attributes that older graphs stored
// directly on the field.
type legacyConstraints struct {
	MinLength *int     `json:"minLength"`
	MaxLength *int     `json:"maxLength"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	Pattern   *string  `json:"pattern"`
	Step      *string  `json:"step"`
}

// UnmarshalJSON decodes a field, keeping flat legacy constraint attributes
// so Migrate can fold them into Constraints.
func (f *FormField) UnmarshalJSON(data []byte) error {
	type plain FormField
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var legacy legacyConstraints
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}
	*f = FormField(p)
	if f.Constraints == nil {
		f.legacy = &legacy
	}
	return nil
}

// UnmarshalJSON accepts both rule objects and the bare message strings older
// graphs stored.
func (r *ValidationRule) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		*r = ValidationRule{Field: "unknown", Rule: "pattern", Message: msg}
		return nil
	}
	type plain ValidationRule
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ValidationRule(p)
	return nil
}

// Migrate upgrades g in place to CurrentVersion, backfilling form method and
// action, field constraints and validation hints, and validation rules.
// Migrating a current graph leaves it unchanged.
func Migrate(g *Graph) *Graph {
	g.Version = CurrentVersion
	if g.Signatures == nil {
		g.Signatures = map[string]Signature{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	for _, n := range g.Nodes {
		if n.Elements == nil {
			n.Elements = []ElementDescriptor{}
		}
		if n.Forms == nil {
			n.Forms = []FormDescriptor{}
		}
		for i := range n.Forms {
			migrateForm(&n.Forms[i])
		}
	}
	return g
}

func migrateForm(form *FormDescriptor) {
	if form.Method == "" {
		form.Method = "POST"
	}
	if form.ValidationRules == nil {
		form.ValidationRules = []ValidationRule{}
	}
	if form.Fields == nil {
		form.Fields = []FormField{}
	}
	for i := range form.Fields {
		field := &form.Fields[i]
		if field.Constraints == nil {
			field.Constraints = field.legacy.constraints()
		}
		field.legacy = nil
		if field.ValidationHints == nil {
			field.ValidationHints = []string{}
		}
	}
}

func (l *legacyConstraints) constraints() *FieldConstraints {
	c := &FieldConstraints{}
	if l == nil {
		return c
	}
	c.MinLength = l.MinLength
	c.MaxLength = l.MaxLength
	c.Min = l.Min
	c.Max = l.Max
	if l.Pattern != nil {
		c.Pattern = *l.Pattern
	}
	if l.Step != nil {
		c.Step = *l.Step
	}
	return c
}
