package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyGraph = `{
  "version": "5.2.0",
  "appName": "shop",
  "baseUrl": "http://shop",
  "timestamp": "2025-01-02T03:04:05Z",
  "nodes": [{
    "id": "n1",
    "type": "route",
    "route": "/signup",
    "name": "Signup",
    "elements": [],
    "forms": [{
      "id": "f1",
      "selector": {"primary": "form", "fallbacks": [], "stability": 0.5, "type": "css"},
      "fields": [
        {"name": "email", "type": "email", "selector": {"primary": "#email"}, "required": true, "maxLength": 40, "pattern": ".+@.+"},
        {"name": "age", "type": "number", "selector": {"primary": "#age"}, "required": false}
      ],
      "validationRules": ["email must be valid"]
    }],
    "metadata": {"firstSeen": "2025-01-02T03:04:05Z", "lastSeen": "2025-01-02T03:04:05Z", "visitCount": 1}
  }],
  "edges": [],
  "signatures": {},
  "metadata": {"totalNodes": 1, "totalEdges": 0, "totalElements": 0, "totalForms": 1, "crawlDuration": 10, "crawlMethod": "dynamic"}
}`

func TestMigrate_Backfills(t *testing.T) {
	var g Graph
	require.NoError(t, json.Unmarshal([]byte(legacyGraph), &g))

	Migrate(&g)

	assert.Equal(t, CurrentVersion, g.Version)
	form := g.Nodes[0].Forms[0]
	assert.Equal(t, "POST", form.Method)
	assert.Equal(t, "", form.Action)
	require.Len(t, form.ValidationRules, 1)
	assert.Equal(t, ValidationRule{Field: "unknown", Rule: "pattern", Message: "email must be valid"}, form.ValidationRules[0])

	for _, f := range form.Fields {
		assert.NotNil(t, f.Constraints, f.Name)
		assert.NotNil(t, f.ValidationHints, f.Name)
	}
	email := form.Fields[0].Constraints
	require.NotNil(t, email.MaxLength)
	assert.Equal(t, 40, *email.MaxLength)
	assert.Equal(t, ".+@.+", email.Pattern)
	assert.Nil(t, form.Fields[1].Constraints.MaxLength)
}

func TestMigrate_Idempotent(t *testing.T) {
	var g Graph
	require.NoError(t, json.Unmarshal([]byte(legacyGraph), &g))
	first, err := json.Marshal(Migrate(&g))
	require.NoError(t, err)

	var again Graph
	require.NoError(t, json.Unmarshal(first, &again))
	second, err := json.Marshal(Migrate(&again))
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
}

func TestSaveLoad(t *testing.T) {
	home := node("/", button("b1", "Save"))
	g := Build("app", "http://app", []*Node{home}, nil, "react", time.Second, CrawlDynamic)

	path := filepath.Join(t.TempDir(), "nested", "graph.json")
	require.NoError(t, Save(path, g))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, g.AppName, loaded.AppName)
	assert.Equal(t, g.Framework, loaded.Framework)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, home.Elements, loaded.Nodes[0].Elements)
}

func TestLoad_Legacy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyGraph), 0o644))

	g, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, g.Version)
	assert.Equal(t, "POST", g.Nodes[0].Forms[0].Method)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
